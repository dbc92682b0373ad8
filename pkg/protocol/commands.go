package protocol

// 出站命令 action 取值，信封形如 {action: string, ...actionFields}
const (
	ActionLaunch      = "launch"
	ActionNavigate    = "navigate"
	ActionClick       = "click"
	ActionType        = "type"
	ActionPress       = "press"
	ActionExecuteTest = "execute_test"
	ActionStop        = "stop"
)
