package flows

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/AK1699/Cognitest-AI-sub003/internal/logger"
	"github.com/AK1699/Cognitest-AI-sub003/pkg/domain"
)

// Client 流程存储 REST 客户端
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     logger.Logger
}

// Options 客户端选项
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  logger.Logger
}

// NewClient 创建流程存储客户端
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		baseURL: opts.BaseURL,
		token:   opts.Token,
		http:    &http.Client{Timeout: opts.Timeout},
		log:     log,
	}
}

// TestFlow 流程定义（节点列表保持原始 JSON，交给预览解析器处理）
type TestFlow struct {
	ID    domain.FlowID
	Name  string
	Nodes []byte
}

// GetTestFlow 获取流程定义
func (c *Client) GetTestFlow(ctx context.Context, id domain.FlowID) (*TestFlow, error) {
	body, status, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/test-flows/%s", id), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, domain.ErrFlowNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("flow store returned status %d", status)
	}

	doc := gjson.ParseBytes(body)
	nodes := doc.Get("nodes")
	if !nodes.Exists() {
		nodes = doc.Get("data.nodes")
	}
	if !nodes.IsArray() {
		return nil, domain.ErrInvalidFlow
	}

	name := doc.Get("name").String()
	if name == "" {
		name = doc.Get("data.name").String()
	}

	return &TestFlow{
		ID:    id,
		Name:  name,
		Nodes: []byte(nodes.Raw),
	}, nil
}

// ListTestFlows 列出所有流程定义（原始 JSON 透传）
func (c *Client) ListTestFlows(ctx context.Context) ([]byte, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/test-flows", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("flow store returned status %d", status)
	}
	return body, nil
}

// CreateTestFlow 创建流程定义
func (c *Client) CreateTestFlow(ctx context.Context, flowJSON []byte) ([]byte, error) {
	body, status, err := c.do(ctx, http.MethodPost, "/test-flows", flowJSON)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("flow store returned status %d", status)
	}
	return body, nil
}

// UpdateTestFlow 更新流程定义
func (c *Client) UpdateTestFlow(ctx context.Context, id domain.FlowID, flowJSON []byte) ([]byte, error) {
	body, status, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/test-flows/%s", id), flowJSON)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, domain.ErrFlowNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("flow store returned status %d", status)
	}
	return body, nil
}

// DeleteTestFlow 删除流程定义
func (c *Client) DeleteTestFlow(ctx context.Context, id domain.FlowID) error {
	_, status, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/test-flows/%s", id), nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return domain.ErrFlowNotFound
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return fmt.Errorf("flow store returned status %d", status)
	}
	return nil
}

// do 发起请求并读取响应体
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("流程存储请求失败", "method", method, "path", path, "error", err)
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
