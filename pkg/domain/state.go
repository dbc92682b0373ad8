package domain

// SessionState 单个会话的完整执行状态
// 仅由事件解释器在会话 actor 协程内修改，其余组件只读快照
type SessionState struct {
	ID         SessionID     `json:"id"`
	Status     SessionStatus `json:"status"`
	Connected  bool          `json:"connected"`
	CurrentURL string        `json:"currentUrl,omitempty"`
	URLBar     string        `json:"urlBar,omitempty"` // 可编辑地址栏文本，随 navigation 事件同步
	Screenshot string        `json:"screenshot,omitempty"`

	TestName        string          `json:"testName,omitempty"`
	FlowID          FlowID          `json:"flowId,omitempty"`
	Steps           []ExecutingStep `json:"steps,omitempty"`
	Previews        []StepPreview   `json:"-"`
	ExecutionActive bool            `json:"executionActive"`
	LastError       string          `json:"lastError,omitempty"`

	ConsoleLogs []ConsoleLogEntry     `json:"consoleLogs,omitempty"`
	NetworkLog  []NetworkRequestEntry `json:"networkLog,omitempty"`
	Selected    *ElementInfo          `json:"selected,omitempty"`

	// 计时：session_started 置位 StartedAt，停止时冻结 StoppedAt
	StartedAt int64 `json:"startedAt,omitempty"`
	StoppedAt int64 `json:"stoppedAt,omitempty"`
}

// NewSessionState 创建初始会话状态
func NewSessionState(id SessionID) *SessionState {
	return &SessionState{ID: id, Status: SessionIdle}
}

// AppendConsole 追加控制台日志，超出容量时最旧条目先被淘汰
func (s *SessionState) AppendConsole(e ConsoleLogEntry) {
	s.ConsoleLogs = append(s.ConsoleLogs, e)
	if len(s.ConsoleLogs) > MaxConsoleEntries {
		s.ConsoleLogs = s.ConsoleLogs[len(s.ConsoleLogs)-MaxConsoleEntries:]
	}
}

// AppendNetwork 追加网络请求条目，超出容量时最旧条目先被淘汰
func (s *SessionState) AppendNetwork(e NetworkRequestEntry) {
	s.NetworkLog = append(s.NetworkLog, e)
	if len(s.NetworkLog) > MaxNetworkEntries {
		s.NetworkLog = s.NetworkLog[len(s.NetworkLog)-MaxNetworkEntries:]
	}
}

// FindNetwork 从最新条目倒序查找指定请求ID的网络条目
func (s *SessionState) FindNetwork(id string) *NetworkRequestEntry {
	for i := len(s.NetworkLog) - 1; i >= 0; i-- {
		if s.NetworkLog[i].ID == id {
			return &s.NetworkLog[i]
		}
	}
	return nil
}

// ElapsedMS 返回会话已运行毫秒数（now 为当前 Unix 毫秒）
func (s *SessionState) ElapsedMS(now int64) int64 {
	if s.StartedAt == 0 {
		return 0
	}
	if s.StoppedAt > 0 {
		return s.StoppedAt - s.StartedAt
	}
	return now - s.StartedAt
}

// Clone 返回状态的深拷贝快照，供会话 actor 之外的读取方使用
func (s *SessionState) Clone() SessionState {
	out := *s
	out.Steps = make([]ExecutingStep, len(s.Steps))
	copy(out.Steps, s.Steps)
	for i := range out.Steps {
		if sub := s.Steps[i].SubSteps; sub != nil {
			out.Steps[i].SubSteps = make([]SubStep, len(sub))
			copy(out.Steps[i].SubSteps, sub)
		}
		if h := s.Steps[i].Healing; h != nil {
			hc := *h
			out.Steps[i].Healing = &hc
		}
	}
	out.ConsoleLogs = append([]ConsoleLogEntry(nil), s.ConsoleLogs...)
	out.NetworkLog = append([]NetworkRequestEntry(nil), s.NetworkLog...)
	if s.Selected != nil {
		sel := *s.Selected
		out.Selected = &sel
	}
	return out
}
