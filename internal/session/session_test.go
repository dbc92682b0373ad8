package session_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/AK1699/Cognitest-AI-sub003/internal/audit"
	"github.com/AK1699/Cognitest-AI-sub003/internal/logger"
	"github.com/AK1699/Cognitest-AI-sub003/internal/session"
	"github.com/AK1699/Cognitest-AI-sub003/internal/transport"
	"github.com/AK1699/Cognitest-AI-sub003/pkg/domain"
)

// fakeChannel 进程内假通道，捕获全部出站报文
type fakeChannel struct {
	mu        sync.Mutex
	sent      [][]byte
	connected bool
	onClose   func()
}

func (f *fakeChannel) Send(msg []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return
	}
	f.sent = append(f.sent, msg)
}

func (f *fakeChannel) Close() {
	f.mu.Lock()
	wasConnected := f.connected
	f.connected = false
	f.mu.Unlock()
	if wasConnected && f.onClose != nil {
		f.onClose()
	}
}

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) sentActions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	actions := make([]string, 0, len(f.sent))
	for _, msg := range f.sent {
		actions = append(actions, gjson.GetBytes(msg, "action").String())
	}
	return actions
}

// harness 组装会话与假通道，暴露入站消息注入口
type harness struct {
	ses       *session.Session
	ch        *fakeChannel
	onMessage func([]byte)
}

func newHarness(t *testing.T, opts session.Options) *harness {
	t.Helper()
	h := &harness{ch: &fakeChannel{connected: true}}

	opts.ID = "s-test"
	opts.Logger = logger.Nop()
	opts.Dial = func(onMessage func([]byte), onError func(error), onClose func()) transport.Channel {
		h.onMessage = onMessage
		h.ch.onClose = onClose
		return h.ch
	}

	h.ses = session.New(opts)
	t.Cleanup(h.ses.Shutdown)
	return h
}

// inject 注入入站消息并等待 actor 处理完成
func (h *harness) inject(raw string) {
	h.onMessage([]byte(raw))
}

func TestLaunchIsFirstCommand(t *testing.T) {
	h := newHarness(t, session.Options{
		Launch: domain.LaunchConfig{BrowserType: "chromium", Headless: true},
	})

	// Snapshot 走同一邮箱，返回时启动命令必已发出
	st := h.ses.Snapshot()
	if st.Status != domain.SessionLaunching {
		t.Errorf("状态 = %q, 期望 launching", st.Status)
	}
	if !st.Connected {
		t.Error("通道打开后 Connected 应为 true")
	}

	actions := h.ch.sentActions()
	if len(actions) == 0 || actions[0] != "launch" {
		t.Fatalf("首条命令 = %v, 期望 launch", actions)
	}
}

func TestExecuteQueuedUntilSessionStarted(t *testing.T) {
	h := newHarness(t, session.Options{Launch: domain.LaunchConfig{BrowserType: "chromium"}})

	if err := h.ses.ExecuteTest("flow-1", nil, nil); err != nil {
		t.Fatalf("排队执行失败: %v", err)
	}

	// session_started 之前不应发出 execute_test
	for _, a := range h.ch.sentActions() {
		if a == "execute_test" {
			t.Fatal("会话未就绪时 execute_test 不应发出")
		}
	}

	h.inject(`{"type":"session_started"}`)
	h.ses.Snapshot()

	actions := h.ch.sentActions()
	count := 0
	for _, a := range actions {
		if a == "execute_test" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("execute_test 发送次数 = %d, 期望 1", count)
	}
}

func TestQueuedExecuteFiresExactlyOnce(t *testing.T) {
	h := newHarness(t, session.Options{Launch: domain.LaunchConfig{BrowserType: "chromium"}})

	if err := h.ses.ExecuteTest("flow-1", nil, nil); err != nil {
		t.Fatalf("排队执行失败: %v", err)
	}

	// 重复的 session_started 不应重发排队命令
	h.inject(`{"type":"session_started"}`)
	h.inject(`{"type":"session_started"}`)
	h.ses.Snapshot()

	count := 0
	for _, a := range h.ch.sentActions() {
		if a == "execute_test" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("execute_test 发送次数 = %d, 期望恰好 1", count)
	}
}

func TestDuplicateQueueRejected(t *testing.T) {
	h := newHarness(t, session.Options{Launch: domain.LaunchConfig{BrowserType: "chromium"}})

	if err := h.ses.ExecuteTest("flow-1", nil, nil); err != nil {
		t.Fatalf("首次排队失败: %v", err)
	}
	if err := h.ses.ExecuteTest("flow-2", nil, nil); !errors.Is(err, domain.ErrExecutionPending) {
		t.Errorf("重复排队应返回 ErrExecutionPending, 实际 %v", err)
	}
}

func TestExecuteImmediateWhenRunning(t *testing.T) {
	h := newHarness(t, session.Options{Launch: domain.LaunchConfig{BrowserType: "chromium"}})
	h.inject(`{"type":"session_started"}`)

	if err := h.ses.ExecuteTest("flow-1", map[string]any{"env": "prod"}, nil); err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	actions := h.ch.sentActions()
	if actions[len(actions)-1] != "execute_test" {
		t.Errorf("就绪会话的执行应立即发送: %v", actions)
	}
}

func TestPreviewsMergedAtExecutionStart(t *testing.T) {
	h := newHarness(t, session.Options{Launch: domain.LaunchConfig{BrowserType: "chromium"}})
	h.inject(`{"type":"session_started"}`)

	previews := []domain.StepPreview{{Name: "打开首页", Type: "navigate"}}
	if err := h.ses.ExecuteTest("flow-1", nil, previews); err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	h.inject(`{"type":"test_execution_started","totalSteps":1}`)
	st := h.ses.Snapshot()

	if len(st.Steps) != 1 || st.Steps[0].Name != "打开首页" {
		t.Errorf("预览未在执行开始时合并: %+v", st.Steps)
	}
	if st.FlowID != "flow-1" {
		t.Errorf("FlowID = %q", st.FlowID)
	}
}

func TestClickMapping(t *testing.T) {
	h := newHarness(t, session.Options{Launch: domain.LaunchConfig{BrowserType: "chromium"}})
	h.inject(`{"type":"session_started"}`)

	in := domain.ClickInput{
		DisplayX: 100, DisplayY: 100,
		DisplayW: 960, DisplayH: 540,
		ImageW: 1920, ImageH: 1080,
	}
	if err := h.ses.Click(in); err != nil {
		t.Fatalf("点击失败: %v", err)
	}

	h.ch.mu.Lock()
	last := h.ch.sent[len(h.ch.sent)-1]
	h.ch.mu.Unlock()
	if gjson.GetBytes(last, "x").Float() != 200 || gjson.GetBytes(last, "y").Float() != 200 {
		t.Errorf("点击坐标未换算: %s", last)
	}
}

func TestClickOutsidePageDiscarded(t *testing.T) {
	h := newHarness(t, session.Options{Launch: domain.LaunchConfig{BrowserType: "chromium"}})
	h.inject(`{"type":"session_started"}`)

	before := len(h.ch.sentActions())

	// 点击落在 contain 缩放的留白区域
	in := domain.ClickInput{
		DisplayX: 5, DisplayY: 270,
		DisplayW: 960, DisplayH: 540,
		ImageW: 1000, ImageH: 1000,
	}
	if err := h.ses.Click(in); !errors.Is(err, domain.ErrClickOutOfPage) {
		t.Errorf("期望 ErrClickOutOfPage, 实际 %v", err)
	}
	if len(h.ch.sentActions()) != before {
		t.Error("被丢弃的点击不应产生出站报文")
	}
}

func TestStopSendsCommandAndCloses(t *testing.T) {
	h := newHarness(t, session.Options{Launch: domain.LaunchConfig{BrowserType: "chromium"}})
	h.inject(`{"type":"session_started"}`)

	h.ses.Stop()

	actions := h.ch.sentActions()
	if actions[len(actions)-1] != "stop" {
		t.Errorf("停止应发出 stop 命令: %v", actions)
	}

	st := h.ses.Snapshot()
	if st.Status != domain.SessionStopped {
		t.Errorf("状态 = %q, 期望 stopped", st.Status)
	}
	if st.Connected {
		t.Error("通道关闭后 Connected 应为 false")
	}
}

func TestCommandsRejectedAfterStop(t *testing.T) {
	h := newHarness(t, session.Options{Launch: domain.LaunchConfig{BrowserType: "chromium"}})
	h.inject(`{"type":"session_started"}`)
	h.ses.Stop()

	if err := h.ses.Navigate("http://a.com"); !errors.Is(err, domain.ErrSessionStopped) {
		t.Errorf("停止后 Navigate 应返回 ErrSessionStopped, 实际 %v", err)
	}
	if err := h.ses.ExecuteTest("flow-1", nil, nil); !errors.Is(err, domain.ErrSessionStopped) {
		t.Errorf("停止后 ExecuteTest 应返回 ErrSessionStopped, 实际 %v", err)
	}
}

func TestStopMidRunFreezesElapsed(t *testing.T) {
	h := newHarness(t, session.Options{Launch: domain.LaunchConfig{BrowserType: "chromium"}})
	h.inject(`{"type":"session_started"}`)
	h.inject(`{"type":"test_execution_started","totalSteps":2}`)
	h.inject(`{"type":"step_started","stepIndex":0}`)
	h.inject(`{"type":"step_completed","stepIndex":0,"status":"passed"}`)

	h.ses.Stop()

	st := h.ses.Snapshot()
	if st.StoppedAt == 0 {
		t.Fatal("停止应冻结计时")
	}
	elapsed := st.ElapsedMS(time.Now().UnixMilli() + 60_000)
	if elapsed > 10_000 {
		t.Errorf("冻结后的耗时不应随时间增长: %d", elapsed)
	}
	if st.Steps[0].Status != domain.StepPassed {
		t.Error("停止后已有进度应保留")
	}
}

func TestOnRunCompletedSnapshot(t *testing.T) {
	var (
		mu   sync.Mutex
		snap *domain.SessionState
	)
	h := newHarness(t, session.Options{
		Launch: domain.LaunchConfig{BrowserType: "chromium"},
		OnRunCompleted: func(st domain.SessionState) {
			mu.Lock()
			snap = &st
			mu.Unlock()
		},
	})

	h.inject(`{"type":"session_started"}`)
	h.inject(`{"type":"test_execution_started","totalSteps":1,"testName":"冒烟"}`)
	h.inject(`{"type":"step_started","stepIndex":0}`)
	h.inject(`{"type":"step_completed","stepIndex":0,"status":"passed"}`)
	h.inject(`{"type":"test_execution_completed"}`)
	h.ses.Snapshot()

	mu.Lock()
	defer mu.Unlock()
	if snap == nil {
		t.Fatal("运行完成回调未触发")
	}
	if snap.TestName != "冒烟" || len(snap.Steps) != 1 {
		t.Errorf("回调快照不完整: %+v", snap)
	}
	if snap.Steps[0].Status != domain.StepPassed {
		t.Errorf("快照步骤状态 = %q", snap.Steps[0].Status)
	}
}

func TestStopMidRunRecordsInterruptedRun(t *testing.T) {
	var (
		mu    sync.Mutex
		snaps []domain.SessionState
	)
	h := newHarness(t, session.Options{
		Launch: domain.LaunchConfig{BrowserType: "chromium"},
		OnRunCompleted: func(st domain.SessionState) {
			mu.Lock()
			snaps = append(snaps, st)
			mu.Unlock()
		},
	})

	h.inject(`{"type":"session_started"}`)
	h.inject(`{"type":"test_execution_started","totalSteps":3}`)
	h.inject(`{"type":"step_started","stepIndex":0}`)
	h.inject(`{"type":"step_completed","stepIndex":0,"status":"passed"}`)

	h.ses.Stop()

	st := h.ses.Snapshot()
	if st.ExecutionActive {
		t.Error("停止后在途标记应清除")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(snaps) != 1 {
		t.Fatalf("运行完成回调触发次数 = %d, 期望 1", len(snaps))
	}
	if snaps[0].Status != domain.SessionStopped {
		t.Errorf("回调快照状态 = %q, 期望 stopped", snaps[0].Status)
	}
	if snaps[0].Steps[0].Status != domain.StepPassed {
		t.Error("回调快照应保留已完成步骤")
	}
}

func TestRemoteStopEndsRun(t *testing.T) {
	var (
		mu    sync.Mutex
		count int
	)
	h := newHarness(t, session.Options{
		Launch: domain.LaunchConfig{BrowserType: "chromium"},
		OnRunCompleted: func(domain.SessionState) {
			mu.Lock()
			count++
			mu.Unlock()
		},
	})

	h.inject(`{"type":"session_started"}`)
	h.inject(`{"type":"test_execution_started","totalSteps":2}`)
	h.inject(`{"type":"session_stopped"}`)
	st := h.ses.Snapshot()

	if st.Status != domain.SessionStopped {
		t.Errorf("状态 = %q, 期望 stopped", st.Status)
	}
	if st.ExecutionActive {
		t.Error("远端停止后在途标记应清除")
	}
	if h.ch.Connected() {
		t.Error("远端停止后通道应关闭")
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("运行完成回调触发次数 = %d, 随后的通道关闭不应重复上报", count)
	}
}

func TestShutdownClosesEventsAfterDispatch(t *testing.T) {
	events := make(chan domain.RunEvent, 8)
	closed := make(chan struct{})
	h := newHarness(t, session.Options{
		Launch:   domain.LaunchConfig{BrowserType: "chromium"},
		Auditor:  audit.New(events, logger.Nop()),
		OnClosed: func() { close(events); close(closed) },
	})

	h.inject(`{"type":"session_started"}`)
	h.inject(`{"type":"test_execution_started","totalSteps":3}`)

	h.ses.Stop()
	h.ses.Shutdown()

	// 停机后继续投递迟到消息，任何分发都必须早于通道关闭
	for i := 0; i < 200; i++ {
		h.inject(`{"type":"step_completed","stepIndex":1,"status":"passed"}`)
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("actor 退出后应回调 OnClosed")
	}

	// 通道已关闭，读尽缓冲应正常终止且含停止时的完成事件
	sawCompleted := false
	for evt := range events {
		if evt.Kind == audit.KindRunCompleted {
			sawCompleted = true
		}
	}
	if !sawCompleted {
		t.Error("停止在途运行应分发 run_completed")
	}
}

func TestAuditTrail(t *testing.T) {
	events := make(chan domain.RunEvent, 64)
	h := newHarness(t, session.Options{
		Launch:  domain.LaunchConfig{BrowserType: "chromium"},
		Auditor: audit.New(events, logger.Nop()),
	})

	h.inject(`{"type":"session_started"}`)
	h.inject(`{"type":"test_execution_started","totalSteps":1}`)
	h.inject(`{"type":"step_started","stepIndex":0}`)
	h.inject(`{"type":"step_completed","stepIndex":0,"status":"failed","error":"boom"}`)
	h.inject(`{"type":"test_execution_completed"}`)
	h.ses.Snapshot()

	kinds := make([]string, 0, 3)
	for len(events) > 0 {
		kinds = append(kinds, (<-events).Kind)
	}
	want := []string{audit.KindRunStarted, audit.KindStepFinished, audit.KindRunCompleted}
	if len(kinds) != len(want) {
		t.Fatalf("审计事件 = %v, 期望 %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("审计事件[%d] = %q, 期望 %q", i, kinds[i], want[i])
		}
	}
}
