package model

import (
	"time"
)

// Setting 用户设置表
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`  // 设置键
	Value     string    `gorm:"type:text" json:"value"` // 设置值
	UpdatedAt time.Time `json:"updatedAt"`              // 更新时间
}

// 预定义的设置 Key
const (
	SettingKeyGatewayWSURL      = "gateway_ws_url"     // 会话通道基地址
	SettingKeyGatewayRESTURL    = "gateway_rest_url"   // 流程存储基地址
	SettingKeyEnvironment       = "environment"        // 选中的执行环境
	SettingKeyExecutionSettings = "execution_settings" // 执行设置 JSON
	SettingKeyLastDeviceID      = "last_device_id"     // 上次使用的设备预设
)

// RunRecord 运行历史表（存储客户端观察到的完整运行）
type RunRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SessionID   string    `gorm:"index" json:"sessionId"`
	FlowID      string    `gorm:"index" json:"flowId"`
	TestName    string    `json:"testName"`
	TotalSteps  int       `json:"totalSteps"`
	Passed      int       `json:"passed"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	Healed      int       `json:"healed"`
	Outcome     string    `gorm:"index" json:"outcome"`       // passed / failed / stopped
	StepsJSON   string    `gorm:"type:text" json:"stepsJson"` // 终态步骤列表 JSON
	StartedAt   int64     `gorm:"index" json:"startedAt"`
	CompletedAt int64     `json:"completedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}
