package encoder

import (
	"encoding/json"
	"math"

	"github.com/tidwall/sjson"

	"github.com/AK1699/Cognitest-AI-sub003/pkg/domain"
	"github.com/AK1699/Cognitest-AI-sub003/pkg/protocol"
)

// 出站命令编码器：把用户/自动化意图翻译成远端期望的精确报文形态
// 报文通过 sjson 逐字段构造，保证字段名与远端协议一致

// envelope 构造命令信封
func envelope(action string) []byte {
	b, _ := sjson.SetBytes([]byte(`{}`), "action", action)
	return b
}

// Launch 启动远端浏览器，必须是通道打开后的第一条命令
func Launch(cfg domain.LaunchConfig) []byte {
	b := envelope(protocol.ActionLaunch)
	b, _ = sjson.SetBytes(b, "browserType", cfg.BrowserType)
	b, _ = sjson.SetBytes(b, "headless", cfg.Headless)
	b, _ = sjson.SetBytes(b, "recordVideo", cfg.RecordVideo)
	if cfg.Device != "" {
		b, _ = sjson.SetBytes(b, "device", cfg.Device)
	}
	if cfg.URL != "" {
		b, _ = sjson.SetBytes(b, "url", cfg.URL)
	}
	if cfg.ProjectID != "" {
		b, _ = sjson.SetBytes(b, "projectId", cfg.ProjectID)
	}
	return b
}

// Navigate 页面跳转
func Navigate(url string) []byte {
	b := envelope(protocol.ActionNavigate)
	b, _ = sjson.SetBytes(b, "url", url)
	return b
}

// Click 页面坐标点击（已完成缩放/偏移换算后的页面坐标）
func Click(x, y float64) []byte {
	b := envelope(protocol.ActionClick)
	b, _ = sjson.SetBytes(b, "x", x)
	b, _ = sjson.SetBytes(b, "y", y)
	return b
}

// TypeText 向远端页面焦点元素转发文本
func TypeText(text string) []byte {
	b := envelope(protocol.ActionType)
	b, _ = sjson.SetBytes(b, "text", text)
	return b
}

// Press 转发命名按键（Enter、Tab、Backspace、方向键等）
func Press(key string) []byte {
	b := envelope(protocol.ActionPress)
	b, _ = sjson.SetBytes(b, "key", key)
	return b
}

// ExecuteTest 对已启动的浏览器执行存储的测试流程
// 约束：仅在观察到 session_started 之后发送，由会话 actor 保证时序
func ExecuteTest(flowID domain.FlowID, settings map[string]any) []byte {
	b := envelope(protocol.ActionExecuteTest)
	b, _ = sjson.SetBytes(b, "flowId", string(flowID))
	if settings == nil {
		settings = map[string]any{}
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		raw = []byte(`{}`)
	}
	b, _ = sjson.SetRawBytes(b, "executionSettings", raw)
	return b
}

// Stop 终止会话
func Stop() []byte {
	return envelope(protocol.ActionStop)
}

// MapToPage 把 contain 缩放（等比缩放、居中）渲染下的显示坐标换算回页面坐标
// scale = min(displayW/imgW, displayH/imgH)，先减去居中偏移再除以 scale，
// 落在 [0, imgW]×[0, imgH] 之外的点击被丢弃
func MapToPage(in domain.ClickInput) (x, y float64, ok bool) {
	if in.ImageW <= 0 || in.ImageH <= 0 || in.DisplayW <= 0 || in.DisplayH <= 0 {
		return 0, 0, false
	}

	scale := math.Min(in.DisplayW/in.ImageW, in.DisplayH/in.ImageH)
	if scale <= 0 {
		return 0, 0, false
	}

	offsetX := (in.DisplayW - in.ImageW*scale) / 2
	offsetY := (in.DisplayH - in.ImageH*scale) / 2

	x = (in.DisplayX - offsetX) / scale
	y = (in.DisplayY - offsetY) / scale
	if x < 0 || y < 0 || x > in.ImageW || y > in.ImageH {
		return 0, 0, false
	}
	return x, y, true
}
