package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	api "github.com/AK1699/Cognitest-AI-sub003/pkg/api"
	"github.com/AK1699/Cognitest-AI-sub003/pkg/domain"
)

// Server 提供控制面的 HTTP 接口入口
type Server struct {
	svc api.Service
}

// NewServer 创建 HTTP 接口服务
func NewServer(svc api.Service) *Server {
	return &Server{svc: svc}
}

// ServeHTTP 处理所有控制面 HTTP 请求
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest.withError(err))
		return
	}
	res := s.dispatch(r.Context(), &req)
	writeResponse(w, res)
}

// Request 表示通用请求结构
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id,omitempty"`
	Params json.RawMessage `json:"params"`
}

// Response 表示通用响应结构
type Response struct {
	ID     string       `json:"id,omitempty"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorObject `json:"error,omitempty"`
}

// ErrorObject 表示错误信息
type ErrorObject struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ApiError 表示内部错误类型
type ApiError struct {
	Code string
	Err  error
}

func (e ApiError) withError(err error) ApiError {
	return ApiError{Code: e.Code, Err: err}
}

var (
	// ErrInvalidRequest 无效请求
	ErrInvalidRequest = ApiError{Code: "invalid_request"}
	// ErrMethodNotFound 方法不存在
	ErrMethodNotFound = ApiError{Code: "method_not_found"}
	// ErrInvalidParams 参数错误
	ErrInvalidParams = ApiError{Code: "invalid_params"}
	// ErrInternal 内部错误
	ErrInternal = ApiError{Code: "internal"}
)

// sessionLaunchParams 会话创建参数
type sessionLaunchParams struct {
	BrowserType string `json:"browserType"`
	Device      string `json:"device,omitempty"`
	URL         string `json:"url,omitempty"`
	Headless    bool   `json:"headless"`
	ProjectID   string `json:"projectId,omitempty"`
	RecordVideo bool   `json:"recordVideo"`
}

// sessionOnlyParams 仅包含会话标识的参数
type sessionOnlyParams struct {
	SessionID string `json:"sessionId"`
}

// sessionExecuteParams 执行测试参数
type sessionExecuteParams struct {
	SessionID string         `json:"sessionId"`
	FlowID    string         `json:"flowId"`
	Settings  map[string]any `json:"executionSettings,omitempty"`
}

// navigateParams 页面跳转参数
type navigateParams struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// clickParams 显示坐标点击参数
type clickParams struct {
	SessionID string  `json:"sessionId"`
	DisplayX  float64 `json:"displayX"`
	DisplayY  float64 `json:"displayY"`
	DisplayW  float64 `json:"displayW"`
	DisplayH  float64 `json:"displayH"`
	ImageW    float64 `json:"imageW"`
	ImageH    float64 `json:"imageH"`
}

// typeParams 输入文本参数
type typeParams struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// pressParams 按键参数
type pressParams struct {
	SessionID string `json:"sessionId"`
	Key       string `json:"key"`
}

// flowOnlyParams 仅包含流程标识的参数
type flowOnlyParams struct {
	FlowID string `json:"flowId"`
}

// flowSaveParams 创建或更新流程定义的参数
type flowSaveParams struct {
	FlowID string          `json:"flowId,omitempty"`
	Flow   json.RawMessage `json:"flow"`
}

// settingsSetParams 批量写入设置的参数
type settingsSetParams struct {
	Settings map[string]string `json:"settings"`
}

// settingsGetResult 设置查询结果
type settingsGetResult struct {
	Settings map[string]string `json:"settings"`
}

// sessionLaunchResult 会话创建结果
type sessionLaunchResult struct {
	SessionID string `json:"sessionId"`
}

// runsQueryResult 运行历史查询结果
type runsQueryResult struct {
	Runs  []domain.RunSummary `json:"runs"`
	Total int64               `json:"total"`
}

// dispatch 根据 method 分发请求
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	var (
		result interface{}
		err    *ErrorObject
	)
	switch req.Method {
	case "session.launch":
		result, err = s.handleSessionLaunch(ctx, req.Params)
	case "session.stop":
		result, err = s.handleSessionStop(ctx, req.Params)
	case "session.execute":
		result, err = s.handleSessionExecute(ctx, req.Params)
	case "session.state":
		result, err = s.handleSessionState(ctx, req.Params)
	case "input.navigate":
		result, err = s.handleNavigate(ctx, req.Params)
	case "input.click":
		result, err = s.handleClick(ctx, req.Params)
	case "input.type":
		result, err = s.handleType(ctx, req.Params)
	case "input.press":
		result, err = s.handlePress(ctx, req.Params)
	case "flows.preview":
		result, err = s.handleFlowsPreview(ctx, req.Params)
	case "flows.list":
		result, err = s.handleFlowsList(ctx, req.Params)
	case "flows.create":
		result, err = s.handleFlowsCreate(ctx, req.Params)
	case "flows.update":
		result, err = s.handleFlowsUpdate(ctx, req.Params)
	case "flows.delete":
		result, err = s.handleFlowsDelete(ctx, req.Params)
	case "runs.query":
		result, err = s.handleRunsQuery(ctx, req.Params)
	case "settings.get":
		result, err = s.handleSettingsGet(ctx, req.Params)
	case "settings.set":
		result, err = s.handleSettingsSet(ctx, req.Params)
	case "devices.list":
		result, err = s.handleDevicesList(ctx, req.Params)
	default:
		err = toErrorObject(ErrMethodNotFound)
	}
	return &Response{ID: req.ID, Result: result, Error: err}
}

// writeResponse 写出统一响应
func writeResponse(w http.ResponseWriter, res *Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	_ = enc.Encode(res)
}

// writeError 写出错误响应
func writeError(w http.ResponseWriter, apiErr ApiError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	_ = enc.Encode(&Response{Error: toErrorObject(apiErr)})
}

// toErrorObject 转换错误为响应错误对象
func toErrorObject(e ApiError) *ErrorObject {
	msg := e.Code
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return &ErrorObject{Code: e.Code, Message: msg}
}

// handleSessionLaunch 处理会话创建
func (s *Server) handleSessionLaunch(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p sessionLaunchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	cfg := domain.LaunchConfig{
		BrowserType: p.BrowserType,
		Device:      p.Device,
		URL:         p.URL,
		Headless:    p.Headless,
		ProjectID:   p.ProjectID,
		RecordVideo: p.RecordVideo,
	}
	id, err := s.svc.LaunchSession(ctx, cfg)
	if err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return &sessionLaunchResult{SessionID: string(id)}, nil
}

// handleSessionStop 处理会话停止
func (s *Server) handleSessionStop(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	var p sessionOnlyParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.SessionID == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("sessionId is required")))
	}
	if err := s.svc.StopSession(domain.SessionID(p.SessionID)); err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return nil, nil
}

// handleSessionExecute 处理测试执行
func (s *Server) handleSessionExecute(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p sessionExecuteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.SessionID == "" || p.FlowID == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("sessionId and flowId are required")))
	}
	if err := s.svc.ExecuteTest(ctx, domain.SessionID(p.SessionID), domain.FlowID(p.FlowID), p.Settings); err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return nil, nil
}

// handleSessionState 处理会话状态查询
func (s *Server) handleSessionState(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	var p sessionOnlyParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.SessionID == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("sessionId is required")))
	}
	st, err := s.svc.SessionState(domain.SessionID(p.SessionID))
	if err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return &st, nil
}

// handleNavigate 处理页面跳转
func (s *Server) handleNavigate(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	var p navigateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.SessionID == "" || p.URL == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("sessionId and url are required")))
	}
	if err := s.svc.Navigate(domain.SessionID(p.SessionID), p.URL); err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return nil, nil
}

// handleClick 处理显示坐标点击
func (s *Server) handleClick(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	var p clickParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.SessionID == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("sessionId is required")))
	}
	if p.ImageW <= 0 || p.ImageH <= 0 || p.DisplayW <= 0 || p.DisplayH <= 0 {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("display and image geometry are required")))
	}
	in := domain.ClickInput{
		DisplayX: p.DisplayX,
		DisplayY: p.DisplayY,
		DisplayW: p.DisplayW,
		DisplayH: p.DisplayH,
		ImageW:   p.ImageW,
		ImageH:   p.ImageH,
	}
	if err := s.svc.Click(domain.SessionID(p.SessionID), in); err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return nil, nil
}

// handleType 处理输入文本
func (s *Server) handleType(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	var p typeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.SessionID == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("sessionId is required")))
	}
	if err := s.svc.TypeText(domain.SessionID(p.SessionID), p.Text); err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return nil, nil
}

// handlePress 处理按键
func (s *Server) handlePress(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	var p pressParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.SessionID == "" || p.Key == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("sessionId and key are required")))
	}
	if err := s.svc.PressKey(domain.SessionID(p.SessionID), p.Key); err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return nil, nil
}

// handleFlowsPreview 处理步骤预览解析
func (s *Server) handleFlowsPreview(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p flowOnlyParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.FlowID == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("flowId is required")))
	}
	previews, err := s.svc.PreviewFlow(ctx, domain.FlowID(p.FlowID))
	if err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return previews, nil
}

// handleFlowsList 处理流程定义列表查询
func (s *Server) handleFlowsList(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = params
	flows, err := s.svc.ListFlows(ctx)
	if err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return flows, nil
}

// handleFlowsCreate 处理流程定义创建
func (s *Server) handleFlowsCreate(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p flowSaveParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if len(p.Flow) == 0 {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("flow is required")))
	}
	created, err := s.svc.CreateFlow(ctx, p.Flow)
	if err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return created, nil
}

// handleFlowsUpdate 处理流程定义更新
func (s *Server) handleFlowsUpdate(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p flowSaveParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.FlowID == "" || len(p.Flow) == 0 {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("flowId and flow are required")))
	}
	updated, err := s.svc.UpdateFlow(ctx, domain.FlowID(p.FlowID), p.Flow)
	if err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return updated, nil
}

// handleFlowsDelete 处理流程定义删除
func (s *Server) handleFlowsDelete(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p flowOnlyParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.FlowID == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("flowId is required")))
	}
	if err := s.svc.DeleteFlow(ctx, domain.FlowID(p.FlowID)); err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return nil, nil
}

// handleSettingsGet 处理项目级设置查询
func (s *Server) handleSettingsGet(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = params
	settings, err := s.svc.Settings(ctx)
	if err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return &settingsGetResult{Settings: settings}, nil
}

// handleSettingsSet 处理项目级设置写入
func (s *Server) handleSettingsSet(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p settingsSetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if len(p.Settings) == 0 {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("settings is required")))
	}
	if err := s.svc.UpdateSettings(ctx, p.Settings); err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return nil, nil
}

// handleRunsQuery 处理运行历史查询
func (s *Server) handleRunsQuery(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var q domain.RunQuery
	if len(params) > 0 {
		if err := json.Unmarshal(params, &q); err != nil {
			return nil, toErrorObject(ErrInvalidParams.withError(err))
		}
	}
	runs, total, err := s.svc.QueryRuns(ctx, q)
	if err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return &runsQueryResult{Runs: runs, Total: total}, nil
}

// handleDevicesList 处理设备预设列表查询
func (s *Server) handleDevicesList(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	_ = params
	return s.svc.ListDevices(), nil
}
