package interpreter

import (
	"errors"
	"time"

	"github.com/AK1699/Cognitest-AI-sub003/internal/logger"
	"github.com/AK1699/Cognitest-AI-sub003/internal/tracker"
	"github.com/AK1699/Cognitest-AI-sub003/pkg/domain"
	"github.com/AK1699/Cognitest-AI-sub003/pkg/protocol"
)

// Effects 一次消息折叠产生的副作用指令，由会话 actor 负责执行
type Effects struct {
	SessionReady   bool  // session_started：启动计时，触发排队的 execute_test
	SessionStopped bool  // session_stopped：冻结计时
	RunCompleted   bool  // test_execution_completed：通知完成回调
	RunStarted     bool  // test_execution_started
	Err            error // error 事件：向调用方透出

	// 步骤进入终态时置位，供审计分发
	StepDone   bool
	StepIndex  int
	StepStatus domain.StepStatus
}

// Interpreter 事件解释器，把入站协议消息折叠到会话状态上
// 同一会话内由 actor 按到达顺序串行调用，单条消息的处理是原子的；
// 未知 type 与缺失字段一律安全忽略，保持对远端协议演进的前向兼容
type Interpreter struct {
	log     logger.Logger
	pending *tracker.Tracker[domain.NetworkRequestEntry]
}

// New 创建事件解释器
func New(l logger.Logger) *Interpreter {
	if l == nil {
		l = logger.Nop()
	}
	return &Interpreter{
		log:     l,
		pending: tracker.New[domain.NetworkRequestEntry](60*time.Second, l),
	}
}

// Stop 释放解释器资源
func (it *Interpreter) Stop() {
	it.pending.Stop()
}

// Apply 处理单条入站消息
func (it *Interpreter) Apply(st *domain.SessionState, raw []byte) Effects {
	ev := protocol.Parse(raw)

	switch ev.Type {
	case protocol.EventScreenshot:
		st.Screenshot = ev.Str("data")
		if url := ev.Str("url"); url != "" {
			st.CurrentURL = url
		}

	case protocol.EventNavigation:
		url := ev.Str("url")
		st.CurrentURL = url
		st.URLBar = url

	case protocol.EventConsole:
		st.AppendConsole(domain.ConsoleLogEntry{
			Level:     ev.Str("level"),
			Text:      ev.Str("text"),
			Timestamp: it.eventTime(ev),
		})

	case protocol.EventNetwork:
		it.applyNetwork(st, ev)

	case protocol.EventSessionStarted:
		st.Status = domain.SessionRunning
		if st.StartedAt == 0 {
			st.StartedAt = time.Now().UnixMilli()
		}
		return Effects{SessionReady: true}

	case protocol.EventSessionStopped:
		st.Status = domain.SessionStopped
		if st.StoppedAt == 0 {
			st.StoppedAt = time.Now().UnixMilli()
		}
		return Effects{SessionStopped: true}

	case protocol.EventElementClicked, protocol.EventElementInfo:
		st.Selected = &domain.ElementInfo{
			Selector:   ev.Str("selector"),
			TagName:    ev.Str("tagName"),
			Text:       ev.Str("text"),
			Attributes: ev.StrMap("attributes"),
		}

	case protocol.EventTestExecutionStarted:
		it.applyExecutionStarted(st, ev)
		return Effects{RunStarted: true}

	case protocol.EventStepStarted:
		it.applyStepStarted(st, ev)

	case protocol.EventStepCompleted:
		if step := it.applyStepCompleted(st, ev); step != nil {
			return Effects{StepDone: true, StepIndex: step.Index, StepStatus: step.Status}
		}

	case protocol.EventHealingAttempt:
		it.applyHealingAttempt(st, ev)

	case protocol.EventHealingResult:
		it.applyHealingResult(st, ev)

	case protocol.EventSnippetStarted:
		it.applySnippetStarted(st, ev)

	case protocol.EventSubStepStarted:
		it.applySubStepStarted(st, ev)

	case protocol.EventSubStepCompleted:
		it.applySubStepCompleted(st, ev)

	case protocol.EventTestExecutionComplete:
		st.ExecutionActive = false
		return Effects{RunCompleted: true}

	case protocol.EventError:
		msg := ev.Str("message")
		if msg == "" {
			msg = "unknown session error"
		}
		// 仅清理在途标记，不把整个运行标记为失败：远端可能仍然可用
		if st.ExecutionActive {
			st.LastError = msg
		}
		st.ExecutionActive = false
		return Effects{Err: errors.New(msg)}

	case protocol.EventLogMessage:
		it.applyLogMessage(st, ev)

	case protocol.EventAPIResponse:
		if step := it.stepAt(st, ev); step != nil {
			step.APIStatus = int(ev.Int("status"))
		}

	default:
		// 前向兼容：未知消息类型直接忽略
		it.log.Debug("忽略未知消息类型", "session", string(st.ID), "type", ev.Type)
	}
	return Effects{}
}

// applyNetwork 处理网络事件：请求阶段入环形缓冲并登记追踪器，
// 响应阶段配对后回填状态码与大小
// 请求记录已被环形缓冲淘汰时，用追踪器中的登记恢复后重新入环，
// 保证迟到的响应不会丢失配对
func (it *Interpreter) applyNetwork(st *domain.SessionState, ev protocol.Event) {
	id := ev.Str("id")
	if ev.Exists("status") {
		pend, tracked := it.pending.Get(id)
		entry := st.FindNetwork(id)
		if entry == nil && tracked {
			st.AppendNetwork(pend)
			entry = st.FindNetwork(id)
		}
		if entry == nil {
			it.log.Debug("响应未找到对应请求", "session", string(st.ID), "requestID", id)
			return
		}
		entry.Status = int(ev.Int("status"))
		entry.Size = ev.Int("size")
		return
	}

	resourceType := ev.Str("resourceType")
	if resourceType == "" {
		resourceType = ev.Str("resource_type")
	}
	entry := domain.NetworkRequestEntry{
		ID:           id,
		URL:          ev.Str("url"),
		Method:       ev.Str("method"),
		ResourceType: resourceType,
		Timestamp:    it.eventTime(ev),
	}
	it.pending.Set(id, entry)
	st.AppendNetwork(entry)
}

// applyExecutionStarted 按 totalSteps 物化占位步骤并按下标合并预览
func (it *Interpreter) applyExecutionStarted(st *domain.SessionState, ev protocol.Event) {
	total := int(ev.Int("totalSteps"))
	if total < 0 {
		total = 0
	}
	if name := ev.Str("testName"); name != "" {
		st.TestName = name
	}

	steps := make([]domain.ExecutingStep, total)
	for i := range steps {
		steps[i] = domain.ExecutingStep{Index: i, Status: domain.StepPending}
		if i < len(st.Previews) {
			p := st.Previews[i]
			steps[i].Name = p.Name
			steps[i].Type = p.Type
			steps[i].Selector = p.Selector
			steps[i].Value = p.Value
			steps[i].URL = p.URL
			steps[i].ExpectedCount = p.ExpectedCount
			steps[i].Comparison = p.Comparison
			steps[i].VariableName = p.VariableName
			steps[i].Key = p.Key
			steps[i].CookieName = p.CookieName
		}
	}
	st.Steps = steps
	st.ExecutionActive = true
	st.LastError = ""
	it.log.Info("测试执行开始", "session", string(st.ID), "totalSteps", total, "testName", st.TestName)
}

// applyStepStarted 步骤进入 running，服务端字段覆盖预览值
func (it *Interpreter) applyStepStarted(st *domain.SessionState, ev protocol.Event) {
	step := it.stepAt(st, ev)
	if step == nil {
		return
	}
	// 乱序防御：终态步骤不再被任何后续事件改写
	if step.Status.IsTerminal() {
		it.log.Warn("忽略终态步骤的 step_started", "session", string(st.ID), "index", step.Index)
		return
	}
	step.Status = domain.StepRunning
	if v := ev.Str("stepName"); v != "" {
		step.Name = v
	}
	if v := ev.Str("stepType"); v != "" {
		step.Type = v
	}
	if v := ev.Str("selector"); v != "" {
		step.Selector = v
	}
	if v := ev.Str("url"); v != "" {
		step.URL = v
	}
	if v := ev.Str("value"); v != "" {
		step.Value = v
	}
}

// applyStepCompleted 步骤进入终态之一，成功时返回该步骤
func (it *Interpreter) applyStepCompleted(st *domain.SessionState, ev protocol.Event) *domain.ExecutingStep {
	step := it.stepAt(st, ev)
	if step == nil {
		return nil
	}
	if step.Status.IsTerminal() {
		it.log.Warn("忽略终态步骤的 step_completed", "session", string(st.ID), "index", step.Index)
		return nil
	}
	status := domain.StepStatus(ev.Str("status"))
	if !status.IsTerminal() {
		it.log.Warn("step_completed 状态非法，忽略", "session", string(st.ID), "index", step.Index, "status", string(status))
		return nil
	}
	step.Status = status
	if v := ev.Str("error"); v != "" {
		step.Error = v
	}
	return step
}

// applyHealingAttempt 记录自愈尝试，清空此前的策略与置信度
func (it *Interpreter) applyHealingAttempt(st *domain.SessionState, ev protocol.Event) {
	step := it.stepAt(st, ev)
	if step == nil {
		return
	}
	healing := &domain.HealingInfo{
		Status:  domain.HealingAttempting,
		Message: ev.Str("message"),
	}
	if sub := it.subStepAt(step, ev); sub != nil {
		sub.Healing = healing
		return
	}
	step.Healing = healing
}

// applyHealingResult 记录自愈结果
// 自愈失败仅作展示信息，步骤最终状态以其自身的 step_completed 为准
func (it *Interpreter) applyHealingResult(st *domain.SessionState, ev protocol.Event) {
	step := it.stepAt(st, ev)
	if step == nil {
		return
	}
	status := domain.HealingFailed
	if ev.Str("status") == string(domain.HealingHealed) {
		status = domain.HealingHealed
	}
	healing := &domain.HealingInfo{
		Status:     status,
		Message:    ev.Str("message"),
		Strategy:   ev.Str("strategy"),
		Confidence: ev.Float("confidence"),
		Original:   ev.Str("original"),
		Healed:     ev.Str("healed"),
		Reasoning:  ev.Str("reasoning"),
	}
	if sub := it.subStepAt(step, ev); sub != nil {
		sub.Healing = healing
		return
	}
	step.Healing = healing
}

// applySnippetStarted 为 call_snippet 步骤分配定长子步骤序列并自动展开
func (it *Interpreter) applySnippetStarted(st *domain.SessionState, ev protocol.Event) {
	step := it.stepAt(st, ev)
	if step == nil {
		return
	}
	total := int(ev.Int("totalSubSteps"))
	if total < 0 {
		total = 0
	}
	subs := make([]domain.SubStep, total)
	for i := range subs {
		subs[i] = domain.SubStep{Index: i, Status: domain.StepPending}
	}
	step.SubSteps = subs
	step.SnippetExpanded = true
}

// applySubStepStarted 子步骤进入 running
func (it *Interpreter) applySubStepStarted(st *domain.SessionState, ev protocol.Event) {
	step := it.stepAt(st, ev)
	if step == nil {
		return
	}
	sub := it.subStepAt(step, ev)
	if sub == nil || sub.Status.IsTerminal() {
		return
	}
	sub.Status = domain.StepRunning
	if v := ev.Str("name"); v != "" {
		sub.Name = v
	}
	if v := ev.Str("type"); v != "" {
		sub.Type = v
	}
	if v := ev.Str("selector"); v != "" {
		sub.Selector = v
	}
}

// applySubStepCompleted 子步骤进入终态（子步骤词汇不含 healed）
func (it *Interpreter) applySubStepCompleted(st *domain.SessionState, ev protocol.Event) {
	step := it.stepAt(st, ev)
	if step == nil {
		return
	}
	sub := it.subStepAt(step, ev)
	if sub == nil || sub.Status.IsTerminal() {
		return
	}
	status := domain.StepStatus(ev.Str("status"))
	switch status {
	case domain.StepPassed, domain.StepFailed, domain.StepSkipped:
		sub.Status = status
	default:
		it.log.Warn("子步骤完成状态非法，忽略", "session", string(st.ID), "status", string(status))
		return
	}
	if v := ev.Str("error"); v != "" {
		sub.Error = v
	}
}

// applyLogMessage 把自由文本同时挂到指定步骤并写入控制台缓冲
func (it *Interpreter) applyLogMessage(st *domain.SessionState, ev protocol.Event) {
	msg := ev.Str("message")
	if step := it.stepAt(st, ev); step != nil {
		step.LogMessage = msg
	}
	level := ev.Str("level")
	if level == "" {
		level = "info"
	}
	st.AppendConsole(domain.ConsoleLogEntry{
		Level:     level,
		Text:      msg,
		Timestamp: it.eventTime(ev),
	})
}

// stepAt 按 stepIndex 定位步骤，越界返回 nil
func (it *Interpreter) stepAt(st *domain.SessionState, ev protocol.Event) *domain.ExecutingStep {
	idx := int(ev.Int("stepIndex"))
	if !ev.Exists("stepIndex") || idx < 0 || idx >= len(st.Steps) {
		return nil
	}
	return &st.Steps[idx]
}

// subStepAt 按 subStepIndex 定位子步骤，未携带该字段或越界返回 nil
func (it *Interpreter) subStepAt(step *domain.ExecutingStep, ev protocol.Event) *domain.SubStep {
	if !ev.Exists("subStepIndex") {
		return nil
	}
	idx := int(ev.Int("subStepIndex"))
	if idx < 0 || idx >= len(step.SubSteps) {
		return nil
	}
	return &step.SubSteps[idx]
}

// eventTime 优先使用事件自带时间戳
func (it *Interpreter) eventTime(ev protocol.Event) int64 {
	if ts := ev.Int("timestamp"); ts > 0 {
		return ts
	}
	return time.Now().UnixMilli()
}
