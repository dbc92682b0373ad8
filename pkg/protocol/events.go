package protocol

import "github.com/tidwall/gjson"

// 入站消息 type 取值，信封形如 {type: string, ...typeFields}
const (
	EventScreenshot            = "screenshot"
	EventNavigation            = "navigation"
	EventConsole               = "console"
	EventNetwork               = "network"
	EventSessionStarted        = "session_started"
	EventSessionStopped        = "session_stopped"
	EventElementClicked        = "element_clicked"
	EventElementInfo           = "element_info"
	EventTestExecutionStarted  = "test_execution_started"
	EventStepStarted           = "step_started"
	EventStepCompleted         = "step_completed"
	EventHealingAttempt        = "healing_attempt"
	EventHealingResult         = "healing_result"
	EventSnippetStarted        = "snippet_started"
	EventSubStepStarted        = "snippet_substep_started"
	EventSubStepCompleted      = "snippet_substep_completed"
	EventTestExecutionComplete = "test_execution_completed"
	EventError                 = "error"
	EventLogMessage            = "log_message"
	EventAPIResponse           = "api_response"
)

// Event 入站消息的弱类型包装
// 远端协议独立演进，这里刻意不做严格 schema 校验：
// 缺失字段安全取零值，未知 type 由上层直接忽略
type Event struct {
	Type string
	Raw  []byte
}

// Parse 解析一条入站原始消息
func Parse(raw []byte) Event {
	return Event{Type: gjson.GetBytes(raw, "type").String(), Raw: raw}
}

// Str 读取字符串字段
func (e Event) Str(path string) string {
	return gjson.GetBytes(e.Raw, path).String()
}

// Int 读取整型字段
func (e Event) Int(path string) int64 {
	return gjson.GetBytes(e.Raw, path).Int()
}

// Float 读取浮点字段
func (e Event) Float(path string) float64 {
	return gjson.GetBytes(e.Raw, path).Float()
}

// Exists 判断字段是否存在
func (e Event) Exists(path string) bool {
	return gjson.GetBytes(e.Raw, path).Exists()
}

// StrMap 读取对象字段为字符串字典
func (e Event) StrMap(path string) map[string]string {
	res := gjson.GetBytes(e.Raw, path)
	if !res.IsObject() {
		return nil
	}
	m := make(map[string]string)
	res.ForEach(func(k, v gjson.Result) bool {
		m[k.String()] = v.String()
		return true
	})
	return m
}
