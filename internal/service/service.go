package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/AK1699/Cognitest-AI-sub003/internal/audit"
	"github.com/AK1699/Cognitest-AI-sub003/internal/config"
	"github.com/AK1699/Cognitest-AI-sub003/internal/flows"
	"github.com/AK1699/Cognitest-AI-sub003/internal/logger"
	"github.com/AK1699/Cognitest-AI-sub003/internal/preview"
	"github.com/AK1699/Cognitest-AI-sub003/internal/session"
	"github.com/AK1699/Cognitest-AI-sub003/internal/storage/repo"
	"github.com/AK1699/Cognitest-AI-sub003/internal/transport"
	"github.com/AK1699/Cognitest-AI-sub003/pkg/domain"
)

type svc struct {
	mu       sync.Mutex
	sessions map[domain.SessionID]*managed
	cfg      *config.Config
	log      logger.Logger
	flows    *flows.Client
	runs     *repo.RunRepo
	settings *repo.SettingsRepo
}

// managed 注册表中的会话条目
type managed struct {
	ses    *session.Session
	events chan domain.RunEvent
}

// New 创建并返回服务层实例
// db 为 nil 时不持久化运行历史
func New(cfg *config.Config, db *gorm.DB, l logger.Logger) *svc {
	if l == nil {
		l = logger.Nop()
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &svc{
		sessions: make(map[domain.SessionID]*managed),
		cfg:      cfg,
		log:      l,
		flows: flows.NewClient(flows.Options{
			BaseURL: cfg.Gateway.RESTURL,
			Token:   cfg.Gateway.Token,
			Logger:  l,
		}),
	}
	if db != nil {
		s.runs = repo.NewRunRepo(db)
		s.settings = repo.NewSettingsRepo(db)
	}
	return s
}

// LaunchSession 创建会话并建立通道
// 本地乐观返回会话ID，远端浏览器是否真正可用以 session_started 为准
func (s *svc) LaunchSession(ctx context.Context, cfg domain.LaunchConfig) (domain.SessionID, error) {
	if cfg.BrowserType == "" {
		cfg.BrowserType = "chromium"
	}
	if cfg.Device == "" && s.settings != nil {
		cfg.Device = s.settings.GetLastDeviceID(ctx)
	}

	id := domain.SessionID(uuid.New().String())
	events := make(chan domain.RunEvent, 1024)
	aud := audit.New(events, s.log)

	dial := func(onMessage func([]byte), onError func(error), onClose func()) transport.Channel {
		return transport.Connect(ctx, transport.Options{
			BaseURL:   s.cfg.Gateway.WSURL,
			SessionID: id,
			OnMessage: onMessage,
			OnError:   onError,
			OnClose:   onClose,
			Logger:    s.log,
		})
	}

	ses := session.New(session.Options{
		ID:      id,
		Dial:    dial,
		Launch:  cfg,
		Logger:  s.log,
		Auditor: aud,
		OnRunCompleted: func(st domain.SessionState) {
			if s.runs != nil {
				s.runs.Record(&st)
			}
		},
		// actor 退出后关闭订阅通道：关闭严格晚于最后一次事件分发
		OnClosed: func() { close(events) },
	})

	s.mu.Lock()
	s.sessions[id] = &managed{ses: ses, events: events}
	s.mu.Unlock()

	if s.settings != nil && cfg.Device != "" {
		if err := s.settings.SetLastDeviceID(ctx, cfg.Device); err != nil {
			s.log.Warn("记录设备预设失败", "session", string(id), "error", err)
		}
	}

	s.log.Info("创建会话成功", "session", string(id), "browser", cfg.BrowserType, "device", cfg.Device)
	return id, nil
}

// StopSession 停止指定会话
// 会话保留在注册表中，停止后仍可读取终态快照
func (s *svc) StopSession(id domain.SessionID) error {
	s.mu.Lock()
	m, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}

	m.ses.Stop()
	s.log.Info("会话已停止", "session", string(id))
	return nil
}

// ExecuteTest 在会话中执行存储的测试流程
// 先尽力而为地解析步骤预览，预览失败不阻止执行
func (s *svc) ExecuteTest(ctx context.Context, id domain.SessionID, flowID domain.FlowID, settings map[string]any) error {
	s.mu.Lock()
	m, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}

	var previews []domain.StepPreview
	if flow, err := s.flows.GetTestFlow(ctx, flowID); err != nil {
		s.log.Warn("获取流程定义失败，跳过步骤预览", "session", string(id), "flow", string(flowID), "error", err)
	} else {
		previews = preview.Resolve(flow.Nodes)
	}

	return m.ses.ExecuteTest(flowID, settings, previews)
}

// Navigate 页面跳转
func (s *svc) Navigate(id domain.SessionID, url string) error {
	m, err := s.find(id)
	if err != nil {
		return err
	}
	return m.ses.Navigate(url)
}

// Click 显示坐标点击
func (s *svc) Click(id domain.SessionID, in domain.ClickInput) error {
	m, err := s.find(id)
	if err != nil {
		return err
	}
	return m.ses.Click(in)
}

// TypeText 输入文本
func (s *svc) TypeText(id domain.SessionID, text string) error {
	m, err := s.find(id)
	if err != nil {
		return err
	}
	return m.ses.TypeText(text)
}

// PressKey 按下命名按键
func (s *svc) PressKey(id domain.SessionID, key string) error {
	m, err := s.find(id)
	if err != nil {
		return err
	}
	return m.ses.PressKey(key)
}

// SessionState 获取会话状态快照
func (s *svc) SessionState(id domain.SessionID) (domain.SessionState, error) {
	m, err := s.find(id)
	if err != nil {
		return domain.SessionState{}, err
	}
	return m.ses.Snapshot(), nil
}

// SubscribeEvents 订阅会话执行事件流
func (s *svc) SubscribeEvents(id domain.SessionID) (<-chan domain.RunEvent, error) {
	m, err := s.find(id)
	if err != nil {
		return nil, err
	}
	return m.events, nil
}

// PreviewFlow 由流程定义推导步骤预览
func (s *svc) PreviewFlow(ctx context.Context, flowID domain.FlowID) ([]domain.StepPreview, error) {
	flow, err := s.flows.GetTestFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	return preview.Resolve(flow.Nodes), nil
}

// ListFlows 列出流程定义（原始 JSON 透传）
func (s *svc) ListFlows(ctx context.Context) (json.RawMessage, error) {
	return s.flows.ListTestFlows(ctx)
}

// CreateFlow 创建流程定义
func (s *svc) CreateFlow(ctx context.Context, flow json.RawMessage) (json.RawMessage, error) {
	return s.flows.CreateTestFlow(ctx, flow)
}

// UpdateFlow 更新流程定义
func (s *svc) UpdateFlow(ctx context.Context, id domain.FlowID, flow json.RawMessage) (json.RawMessage, error) {
	return s.flows.UpdateTestFlow(ctx, id, flow)
}

// DeleteFlow 删除流程定义
func (s *svc) DeleteFlow(ctx context.Context, id domain.FlowID) error {
	return s.flows.DeleteTestFlow(ctx, id)
}

// QueryRuns 查询运行历史
func (s *svc) QueryRuns(ctx context.Context, q domain.RunQuery) ([]domain.RunSummary, int64, error) {
	if s.runs == nil {
		return nil, 0, domain.ErrDatabaseNotInitialized
	}

	// 缓冲区数据对查询可见
	s.runs.Flush()

	records, total, err := s.runs.Query(q)
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]domain.RunSummary, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, domain.RunSummary{
			SessionID:   r.SessionID,
			FlowID:      r.FlowID,
			TestName:    r.TestName,
			TotalSteps:  r.TotalSteps,
			Passed:      r.Passed,
			Failed:      r.Failed,
			Skipped:     r.Skipped,
			Healed:      r.Healed,
			Outcome:     r.Outcome,
			StartedAt:   r.StartedAt,
			CompletedAt: r.CompletedAt,
		})
	}
	return summaries, total, nil
}

// Settings 获取全部项目级设置
func (s *svc) Settings(ctx context.Context) (map[string]string, error) {
	if s.settings == nil {
		return nil, domain.ErrDatabaseNotInitialized
	}
	return s.settings.GetAll(ctx)
}

// UpdateSettings 批量写入项目级设置
func (s *svc) UpdateSettings(ctx context.Context, entries map[string]string) error {
	if s.settings == nil {
		return domain.ErrDatabaseNotInitialized
	}
	return s.settings.SetMultiple(ctx, entries)
}

// ListDevices 列出设备预设
func (s *svc) ListDevices() []domain.DeviceInfo {
	devices := make([]domain.DeviceInfo, 0, len(s.cfg.Devices))
	for _, d := range s.cfg.Devices {
		devices = append(devices, d.ToDeviceInfo())
	}
	return devices
}

// Shutdown 停止所有会话并释放资源
func (s *svc) Shutdown() {
	s.mu.Lock()
	all := make([]*managed, 0, len(s.sessions))
	for id, m := range s.sessions {
		all = append(all, m)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, m := range all {
		m.ses.Stop()
		m.ses.Shutdown()
	}
	if s.runs != nil {
		s.runs.Stop()
	}
	s.log.Info("服务已关闭", "sessions", len(all))
}

// find 根据ID查找会话
func (s *svc) find(id domain.SessionID) (*managed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return m, nil
}
