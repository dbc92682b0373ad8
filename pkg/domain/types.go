package domain

// SessionID 会话ID（客户端生成的不透明字符串，每次启动唯一）
type SessionID string

// FlowID 测试流程ID
type FlowID string

// SessionStatus 会话状态
type SessionStatus string

const (
	SessionIdle      SessionStatus = "idle"
	SessionLaunching SessionStatus = "launching" // launch 已发出、session_started 未到达的本地乐观状态
	SessionRunning   SessionStatus = "running"
	SessionPaused    SessionStatus = "paused"
	SessionStopped   SessionStatus = "stopped"
)

// StepStatus 步骤状态
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepPassed  StepStatus = "passed"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
	StepHealed  StepStatus = "healed" // 自愈后成功，区别于 passed
)

// IsTerminal 判断步骤状态是否为终态（终态一经进入不再被覆盖）
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepPassed, StepFailed, StepSkipped, StepHealed:
		return true
	}
	return false
}

// HealingStatus 自愈状态
type HealingStatus string

const (
	HealingAttempting HealingStatus = "attempting"
	HealingHealed     HealingStatus = "healed"
	HealingFailed     HealingStatus = "failed"
)

// HealingInfo 单个步骤的选择器自愈信息，仅在发生过自愈尝试时附带
type HealingInfo struct {
	Status     HealingStatus `json:"status"`
	Message    string        `json:"message,omitempty"`
	Strategy   string        `json:"strategy,omitempty"`
	Confidence float64       `json:"confidence,omitempty"` // [0,1]
	Original   string        `json:"original,omitempty"`
	Healed     string        `json:"healed,omitempty"`
	Reasoning  string        `json:"reasoning,omitempty"`
}

// ExecutingStep 一次运行中的顶层步骤
// 在 test_execution_started 声明 totalSteps 时以 pending 物化，
// 之后只被后续事件原地修改，运行期间不会增删或重排
type ExecutingStep struct {
	Index           int          `json:"index"`
	Name            string       `json:"name"`
	Type            string       `json:"type"`
	Status          StepStatus   `json:"status"`
	Selector        string       `json:"selector,omitempty"`
	Value           string       `json:"value,omitempty"`
	URL             string       `json:"url,omitempty"`
	ExpectedCount   int          `json:"expectedCount,omitempty"`
	Comparison      string       `json:"comparison,omitempty"`
	VariableName    string       `json:"variableName,omitempty"`
	Key             string       `json:"key,omitempty"`
	CookieName      string       `json:"cookieName,omitempty"`
	LogMessage      string       `json:"logMessage,omitempty"`
	APIStatus       int          `json:"apiStatus,omitempty"`
	Error           string       `json:"error,omitempty"`
	Healing         *HealingInfo `json:"healing,omitempty"`
	SubSteps        []SubStep    `json:"subSteps,omitempty"`
	SnippetExpanded bool         `json:"snippetExpanded,omitempty"`
}

// SubStep call_snippet 步骤的嵌套子步骤
// 状态词汇与顶层步骤一致但没有 healed 终态；子步骤仍可能携带自愈信息
type SubStep struct {
	Index    int          `json:"index"`
	Name     string       `json:"name"`
	Type     string       `json:"type"`
	Status   StepStatus   `json:"status"`
	Selector string       `json:"selector,omitempty"`
	Error    string       `json:"error,omitempty"`
	Healing  *HealingInfo `json:"healing,omitempty"`
}

// StepPreview 执行前由存储的流程定义推导出的步骤预览
// 仅用于在服务端权威 step_started 到达前预填充步骤信息
type StepPreview struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Selector      string `json:"selector,omitempty"`
	Value         string `json:"value,omitempty"`
	URL           string `json:"url,omitempty"`
	ExpectedCount int    `json:"expectedCount,omitempty"`
	Comparison    string `json:"comparison,omitempty"`
	VariableName  string `json:"variableName,omitempty"`
	Key           string `json:"key,omitempty"`
	CookieName    string `json:"cookieName,omitempty"`
}

// ConsoleLogEntry 控制台日志条目
type ConsoleLogEntry struct {
	Level     string `json:"level"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// NetworkRequestEntry 网络请求条目，响应阶段回填 Status/Size
type NetworkRequestEntry struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Method       string `json:"method"`
	ResourceType string `json:"resourceType,omitempty"`
	Status       int    `json:"status,omitempty"`
	Size         int64  `json:"size,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// ElementInfo 页面中被选中元素的检查器信息
type ElementInfo struct {
	Selector   string            `json:"selector"`
	TagName    string            `json:"tagName,omitempty"`
	Text       string            `json:"text,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// 环形缓冲容量上限
const (
	MaxConsoleEntries = 100
	MaxNetworkEntries = 50
)

// LaunchConfig 远端浏览器启动参数
type LaunchConfig struct {
	BrowserType string `json:"browserType"`
	Device      string `json:"device,omitempty"`
	URL         string `json:"url,omitempty"`
	Headless    bool   `json:"headless"`
	ProjectID   string `json:"projectId,omitempty"`
	RecordVideo bool   `json:"recordVideo"`
}

// ClickInput 显示坐标与图像几何，用于 contain 缩放下的坐标换算
type ClickInput struct {
	DisplayX float64 `json:"displayX"`
	DisplayY float64 `json:"displayY"`
	DisplayW float64 `json:"displayW"`
	DisplayH float64 `json:"displayH"`
	ImageW   float64 `json:"imageW"`
	ImageH   float64 `json:"imageH"`
}

// Viewport 视口尺寸
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DeviceInfo 设备预设，仅用于标记启动命令
type DeviceInfo struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Viewport Viewport `json:"viewport"`
	Type     string   `json:"type"`
}

// RunEvent 会话执行过程中对外分发的审计事件
type RunEvent struct {
	Session   SessionID  `json:"session"`
	Kind      string     `json:"kind"` // run_started / step_finished / run_completed / session_error
	StepIndex int        `json:"stepIndex,omitempty"`
	Status    StepStatus `json:"status,omitempty"`
	Message   string     `json:"message,omitempty"`
	Timestamp int64      `json:"timestamp"`
}

// RunQuery 历史运行查询条件
type RunQuery struct {
	SessionID string `json:"sessionId,omitempty"`
	FlowID    string `json:"flowId,omitempty"`
	Outcome   string `json:"outcome,omitempty"` // passed / failed / stopped
	StartTime int64  `json:"startTime,omitempty"`
	EndTime   int64  `json:"endTime,omitempty"`
	Offset    int    `json:"offset,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// RunSummary 历史运行摘要
type RunSummary struct {
	SessionID   string `json:"sessionId"`
	FlowID      string `json:"flowId"`
	TestName    string `json:"testName"`
	TotalSteps  int    `json:"totalSteps"`
	Passed      int    `json:"passed"`
	Failed      int    `json:"failed"`
	Skipped     int    `json:"skipped"`
	Healed      int    `json:"healed"`
	Outcome     string `json:"outcome"`
	StartedAt   int64  `json:"startedAt"`
	CompletedAt int64  `json:"completedAt"`
}
