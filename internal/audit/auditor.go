package audit

import (
	"time"

	"github.com/AK1699/Cognitest-AI-sub003/internal/logger"
	"github.com/AK1699/Cognitest-AI-sub003/pkg/domain"
)

// Auditor 审计与观察者，负责执行事件的记录与分发
type Auditor struct {
	enabled bool
	events  chan domain.RunEvent
	log     logger.Logger
}

// New 创建一个新的审计员
func New(events chan domain.RunEvent, l logger.Logger) *Auditor {
	if l == nil {
		l = logger.Nop()
	}
	return &Auditor{
		enabled: true,
		events:  events,
		log:     l,
	}
}

// SetEnabled 设置是否启用审计
func (a *Auditor) SetEnabled(enabled bool) {
	a.enabled = enabled
}

// IsEnabled 返回审计是否启用
func (a *Auditor) IsEnabled() bool {
	return a.enabled
}

// Record 记录一条执行事件
func (a *Auditor) Record(session domain.SessionID, kind string, stepIndex int, status domain.StepStatus, message string) {
	if !a.enabled {
		return
	}

	evt := domain.RunEvent{
		Session:   session,
		Kind:      kind,
		StepIndex: stepIndex,
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
	a.dispatch(evt)
}

// dispatch 分发事件到实时观察通道，通道满时丢弃
func (a *Auditor) dispatch(evt domain.RunEvent) {
	if a.events == nil {
		return
	}

	select {
	case a.events <- evt:
	default:
		// 通道满时丢弃，防止阻塞会话 actor
		a.log.Warn("审计事件分发通道已满，丢弃事件", "session", string(evt.Session), "kind", evt.Kind)
	}
}

// 审计事件种类
const (
	KindRunStarted   = "run_started"
	KindStepFinished = "step_finished"
	KindRunCompleted = "run_completed"
	KindSessionError = "session_error"
)
