package api

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"github.com/AK1699/Cognitest-AI-sub003/internal/config"
	"github.com/AK1699/Cognitest-AI-sub003/internal/logger"
	"github.com/AK1699/Cognitest-AI-sub003/internal/service"
	"github.com/AK1699/Cognitest-AI-sub003/pkg/domain"
)

// Service 服务接口
type Service interface {
	// LaunchSession 启动远端浏览器会话
	LaunchSession(ctx context.Context, cfg domain.LaunchConfig) (domain.SessionID, error)

	// StopSession 停止会话
	StopSession(id domain.SessionID) error

	// ExecuteTest 在会话中执行存储的测试流程
	ExecuteTest(ctx context.Context, id domain.SessionID, flowID domain.FlowID, settings map[string]any) error

	// Navigate 页面跳转
	Navigate(id domain.SessionID, url string) error

	// Click 显示坐标点击
	Click(id domain.SessionID, in domain.ClickInput) error

	// TypeText 输入文本
	TypeText(id domain.SessionID, text string) error

	// PressKey 按下命名按键
	PressKey(id domain.SessionID, key string) error

	// SessionState 获取会话状态快照
	SessionState(id domain.SessionID) (domain.SessionState, error)

	// SubscribeEvents 订阅会话执行事件流
	SubscribeEvents(id domain.SessionID) (<-chan domain.RunEvent, error)

	// PreviewFlow 由流程定义推导步骤预览
	PreviewFlow(ctx context.Context, flowID domain.FlowID) ([]domain.StepPreview, error)

	// ListFlows 列出流程定义（原始 JSON 透传）
	ListFlows(ctx context.Context) (json.RawMessage, error)

	// CreateFlow 创建流程定义
	CreateFlow(ctx context.Context, flow json.RawMessage) (json.RawMessage, error)

	// UpdateFlow 更新流程定义
	UpdateFlow(ctx context.Context, id domain.FlowID, flow json.RawMessage) (json.RawMessage, error)

	// DeleteFlow 删除流程定义
	DeleteFlow(ctx context.Context, id domain.FlowID) error

	// QueryRuns 查询运行历史
	QueryRuns(ctx context.Context, q domain.RunQuery) ([]domain.RunSummary, int64, error)

	// Settings 获取全部项目级设置
	Settings(ctx context.Context) (map[string]string, error)

	// UpdateSettings 批量写入项目级设置
	UpdateSettings(ctx context.Context, entries map[string]string) error

	// ListDevices 列出设备预设
	ListDevices() []domain.DeviceInfo

	// Shutdown 停止所有会话并释放资源
	Shutdown()
}

// NewService 创建并返回服务接口实现
func NewService(cfg *config.Config, db *gorm.DB, l logger.Logger) Service {
	return service.New(cfg, db, l)
}
