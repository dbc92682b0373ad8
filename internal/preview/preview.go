package preview

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/AK1699/Cognitest-AI-sub003/pkg/domain"
)

// 步骤预览解析器：由存储的流程定义同步推导出尽力而为的步骤列表，
// 让状态机在服务端确认步骤身份前就有名字可用。
// 预览永远是非权威的，step_started 到达后以服务端字段为准。

// 少数动作类型的习惯叫法，其余走通用的 snake_case 转标题规则
var nameOverrides = map[string]string{
	"assert_element_count": "Assert Count",
	"call_snippet":         "Call Snippet",
}

// Resolve 解析流程节点列表（JSON 数组）为步骤预览序列
func Resolve(nodesJSON []byte) []domain.StepPreview {
	nodes := gjson.ParseBytes(nodesJSON)
	if !nodes.IsArray() {
		return nil
	}

	previews := make([]domain.StepPreview, 0, len(nodes.Array()))
	nodes.ForEach(func(_, node gjson.Result) bool {
		previews = append(previews, resolveNode(node))
		return true
	})
	return previews
}

// resolveNode 解析单个节点
func resolveNode(node gjson.Result) domain.StepPreview {
	p := domain.StepPreview{
		Type:          resolveType(node),
		Selector:      resolveSelector(node),
		Value:         firstStr(node, "data.value", "value"),
		URL:           firstStr(node, "data.url", "url"),
		Comparison:    firstStr(node, "data.comparison", "comparison"),
		VariableName:  firstStr(node, "data.variableName", "data.variable_name", "variableName"),
		Key:           firstStr(node, "data.key", "key"),
		CookieName:    firstStr(node, "data.cookieName", "data.cookie_name", "cookieName"),
		ExpectedCount: int(node.Get("data.expectedCount").Int()),
	}
	if p.ExpectedCount == 0 {
		p.ExpectedCount = int(node.Get("data.expected_count").Int())
	}
	p.Name = resolveName(node, p.Type)
	return p
}

// resolveType 类型回退链：显式动作类型 → 通用 type → 节点 kind → "pending"
func resolveType(node gjson.Result) string {
	for _, path := range []string{"data.actionType", "data.action_type", "type", "kind"} {
		if v := node.Get(path).String(); v != "" {
			return v
		}
	}
	return "pending"
}

// resolveName 名称回退链：显式标签/描述/名称 → 由类型格式化
func resolveName(node gjson.Result, stepType string) string {
	if v := firstStr(node, "data.label", "data.description", "data.name", "label", "name"); v != "" {
		return v
	}
	return FormatStepName(stepType)
}

// resolveSelector 选择器：字符串直用，结构化对象依次取 primary / css / selector
func resolveSelector(node gjson.Result) string {
	for _, path := range []string{"data.selector", "selector"} {
		sel := node.Get(path)
		if !sel.Exists() {
			continue
		}
		if sel.Type == gjson.String {
			return sel.String()
		}
		if sel.IsObject() {
			for _, field := range []string{"primary", "css", "selector"} {
				if v := sel.Get(field).String(); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

// FormatStepName 把 snake_case 动作类型格式化为标题形式
func FormatStepName(stepType string) string {
	if stepType == "" {
		return "Pending"
	}
	if name, ok := nameOverrides[stepType]; ok {
		return name
	}
	parts := strings.Split(stepType, "_")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}

// firstStr 依次尝试多个路径，返回第一个非空字符串
func firstStr(node gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := node.Get(path).String(); v != "" {
			return v
		}
	}
	return ""
}
