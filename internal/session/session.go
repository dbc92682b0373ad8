package session

import (
	"sync"
	"time"

	"github.com/AK1699/Cognitest-AI-sub003/internal/audit"
	"github.com/AK1699/Cognitest-AI-sub003/internal/encoder"
	"github.com/AK1699/Cognitest-AI-sub003/internal/interpreter"
	"github.com/AK1699/Cognitest-AI-sub003/internal/logger"
	"github.com/AK1699/Cognitest-AI-sub003/internal/transport"
	"github.com/AK1699/Cognitest-AI-sub003/pkg/domain"
)

// DialFunc 建立底层会话通道；测试可注入假通道
type DialFunc func(onMessage func([]byte), onError func(error), onClose func()) transport.Channel

// Options 会话构造参数
type Options struct {
	ID      domain.SessionID
	Dial    DialFunc
	Launch  domain.LaunchConfig
	Logger  logger.Logger
	Auditor *audit.Auditor

	// OnRunCompleted 一次运行结束后携带状态快照回调（可用于切换界面等）
	OnRunCompleted func(domain.SessionState)

	// OnError 传输错误与协议 error 事件的统一出口
	OnError func(error)

	// OnClosed actor 事件循环退出后回调恰好一次
	// 在此之后不会再有任何事件分发，调用方可安全关闭订阅通道
	OnClosed func()
}

// execIntent 排队中的执行意图
type execIntent struct {
	flowID   domain.FlowID
	settings map[string]any
}

// Session 单个执行会话的 actor
// 全部可变状态归属于一个事件循环协程：入站消息与外部操作
// 都经由邮箱串行处理，单条消息的折叠对外原子可见
type Session struct {
	id     domain.SessionID
	log    logger.Logger
	interp *interpreter.Interpreter
	aud    *audit.Auditor
	opts   Options

	ch    transport.Channel
	state *domain.SessionState

	// 一次性排队执行意图：session_started 到达时恰好发送一次
	pendingExec *execIntent

	mailbox  chan func()
	done     chan struct{}
	stopOnce sync.Once
}

// New 创建会话 actor 并建立通道
// 本地乐观地进入 launching，待 session_started 确认后转为 running
func New(opts Options) *Session {
	l := opts.Logger
	if l == nil {
		l = logger.Nop()
	}
	s := &Session{
		id:      opts.ID,
		log:     l,
		interp:  interpreter.New(l),
		aud:     opts.Auditor,
		opts:    opts,
		state:   domain.NewSessionState(opts.ID),
		mailbox: make(chan func(), 256),
		done:    make(chan struct{}),
	}
	go s.loop()

	s.ch = opts.Dial(
		func(raw []byte) { s.post(func() { s.handleMessage(raw) }) },
		func(err error) { s.post(func() { s.handleTransportError(err) }) },
		func() { s.post(s.handleTransportClose) },
	)

	s.post(func() {
		if !s.ch.Connected() {
			return
		}
		s.state.Connected = true
		s.state.Status = domain.SessionLaunching
		s.ch.Send(encoder.Launch(s.opts.Launch))
		s.log.Info("会话已启动", "session", string(s.id), "browser", s.opts.Launch.BrowserType)
	})
	return s
}

// ID 返回会话ID
func (s *Session) ID() domain.SessionID { return s.id }

// loop actor 事件循环，所有状态修改都发生在这里
// done 关闭后不再执行邮箱中的剩余条目，退出前回调 OnClosed：
// 订阅通道的关闭因此严格晚于最后一次事件分发
func (s *Session) loop() {
	defer func() {
		if s.opts.OnClosed != nil {
			s.opts.OnClosed()
		}
	}()
	for {
		select {
		case <-s.done:
			return
		default:
		}
		select {
		case fn := <-s.mailbox:
			fn()
		case <-s.done:
			return
		}
	}
}

// post 向邮箱投递一个操作
func (s *Session) post(fn func()) {
	select {
	case s.mailbox <- fn:
	case <-s.done:
	}
}

// call 投递操作并同步等待结果
func (s *Session) call(fn func() error) error {
	res := make(chan error, 1)
	s.post(func() { res <- fn() })
	select {
	case err := <-res:
		return err
	case <-s.done:
		return domain.ErrSessionStopped
	}
}

// handleMessage 折叠一条入站消息并执行产生的副作用
func (s *Session) handleMessage(raw []byte) {
	eff := s.interp.Apply(s.state, raw)

	if eff.SessionReady && s.pendingExec != nil {
		// 一次性保护：即便 session_started 被错误地重复投递，
		// 排队的执行意图也只会发送一次
		intent := s.pendingExec
		s.pendingExec = nil
		s.sendExecute(intent)
	}

	if eff.RunStarted && s.aud != nil {
		s.aud.Record(s.id, audit.KindRunStarted, 0, "", s.state.TestName)
	}

	if eff.StepDone && s.aud != nil {
		s.aud.Record(s.id, audit.KindStepFinished, eff.StepIndex, eff.StepStatus, "")
	}

	if eff.RunCompleted {
		if s.aud != nil {
			s.aud.Record(s.id, audit.KindRunCompleted, 0, "", s.state.TestName)
		}
		if s.opts.OnRunCompleted != nil {
			s.opts.OnRunCompleted(s.state.Clone())
		}
	}

	if eff.SessionStopped {
		// 远端主动停止：结束在途运行并释放通道
		s.pendingExec = nil
		s.closeRun()
		s.ch.Close()
	}

	if eff.Err != nil {
		if s.aud != nil {
			s.aud.Record(s.id, audit.KindSessionError, 0, "", eff.Err.Error())
		}
		if s.opts.OnError != nil {
			s.opts.OnError(eff.Err)
		}
	}
}

// handleTransportError 传输错误只报告一次，会话不可恢复
func (s *Session) handleTransportError(err error) {
	s.state.Connected = false
	s.log.Warn("会话传输错误", "session", string(s.id), "error", err)
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

// handleTransportClose 通道关闭：会话进入终态并冻结计时
func (s *Session) handleTransportClose() {
	s.state.Connected = false
	if s.state.Status != domain.SessionStopped {
		s.state.Status = domain.SessionStopped
		if s.state.StoppedAt == 0 && s.state.StartedAt > 0 {
			s.state.StoppedAt = time.Now().UnixMilli()
		}
	}
	s.pendingExec = nil
	s.closeRun()
}

// closeRun 会话停止时结束仍然在途的运行并上报
// 此时未到终态的步骤保持原状，持久化侧据此判定 outcome 为 stopped
func (s *Session) closeRun() {
	if !s.state.ExecutionActive {
		return
	}
	s.state.ExecutionActive = false
	if s.aud != nil {
		s.aud.Record(s.id, audit.KindRunCompleted, 0, "", s.state.TestName)
	}
	if s.opts.OnRunCompleted != nil {
		s.opts.OnRunCompleted(s.state.Clone())
	}
}

// sendExecute 发送 execute_test 命令
func (s *Session) sendExecute(intent *execIntent) {
	s.ch.Send(encoder.ExecuteTest(intent.flowID, intent.settings))
	s.log.Info("已发送测试执行命令", "session", string(s.id), "flow", string(intent.flowID))
}

// ExecuteTest 请求执行存储的测试流程
// 会话尚未就绪时意图进入排队，session_started 到达后自动发送（恰好一次）
func (s *Session) ExecuteTest(flowID domain.FlowID, settings map[string]any, previews []domain.StepPreview) error {
	return s.call(func() error {
		if s.state.Status == domain.SessionStopped {
			return domain.ErrSessionStopped
		}
		s.state.Previews = previews
		s.state.FlowID = flowID

		intent := &execIntent{flowID: flowID, settings: settings}
		if s.state.Status == domain.SessionRunning {
			s.sendExecute(intent)
			return nil
		}
		if s.pendingExec != nil {
			return domain.ErrExecutionPending
		}
		s.pendingExec = intent
		s.log.Debug("会话未就绪，执行意图已排队", "session", string(s.id), "flow", string(flowID))
		return nil
	})
}

// Navigate 页面跳转
func (s *Session) Navigate(url string) error {
	return s.command(encoder.Navigate(url))
}

// Click 显示坐标点击，换算失败（落在页面图像之外）时丢弃
func (s *Session) Click(in domain.ClickInput) error {
	x, y, ok := encoder.MapToPage(in)
	if !ok {
		return domain.ErrClickOutOfPage
	}
	return s.command(encoder.Click(x, y))
}

// TypeText 输入文本
func (s *Session) TypeText(text string) error {
	return s.command(encoder.TypeText(text))
}

// PressKey 按下命名按键
func (s *Session) PressKey(key string) error {
	return s.command(encoder.Press(key))
}

// command 发送一条即发即弃命令
func (s *Session) command(msg []byte) error {
	return s.call(func() error {
		if s.state.Status == domain.SessionStopped {
			return domain.ErrSessionStopped
		}
		s.ch.Send(msg)
		return nil
	})
}

// Snapshot 返回当前状态的深拷贝
func (s *Session) Snapshot() domain.SessionState {
	res := make(chan domain.SessionState, 1)
	s.post(func() { res <- s.state.Clone() })
	select {
	case snap := <-res:
		return snap
	case <-s.done:
		return s.state.Clone()
	}
}

// Stop 停止会话：发出 stop 命令并关闭通道
// 终态与在途运行的收尾在本次调用内同步完成，
// 通道关闭回调随后到达时只是幂等的重放
func (s *Session) Stop() {
	_ = s.call(func() error {
		if s.state.Status != domain.SessionStopped {
			s.ch.Send(encoder.Stop())
		}
		s.ch.Close()
		s.handleTransportClose()
		return nil
	})
}

// Shutdown 终止 actor 并释放资源，仅在会话从注册表移除时调用
func (s *Session) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.interp.Stop()
	})
}
