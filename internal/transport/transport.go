package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AK1699/Cognitest-AI-sub003/internal/logger"
	"github.com/AK1699/Cognitest-AI-sub003/pkg/domain"
)

// Channel 会话级双向通道的抽象，便于测试替换
type Channel interface {
	// Send 发送一条出站消息；通道未打开时静默丢弃
	Send(msg []byte)

	// Close 发起优雅关闭，可重复调用
	Close()

	// Connected 返回通道是否处于打开状态
	Connected() bool
}

// Options 通道建立参数
type Options struct {
	BaseURL   string // ws://host 形式的网关基地址
	SessionID domain.SessionID

	// OnMessage 按到达顺序逐条回调入站消息，由单一读协程串行调用
	OnMessage func(raw []byte)

	// OnError 连接失败或异常断开时回调一次
	OnError func(err error)

	// OnClose 通道关闭后回调一次（无论主动关闭还是对端断开）
	OnClose func()

	DialTimeout time.Duration
	Logger      logger.Logger
}

// Conn 基于 gorilla/websocket 的会话通道实现
// 每个 sessionId 一条通道，1:1 绑定远端浏览器进程；
// 不做自动重连，重试必须换新 sessionId 重新启动
type Conn struct {
	ws   *websocket.Conn
	opts Options
	log  logger.Logger

	mu        sync.Mutex // 串行化写操作
	open      bool
	closeOnce sync.Once
}

// URL 拼接会话通道地址
func URL(baseURL string, id domain.SessionID) string {
	return fmt.Sprintf("%s/ws/browser-session/%s", strings.TrimRight(baseURL, "/"), id)
}

// Connect 建立会话通道
// 连接失败不抛出错误，而是通过 OnError 回调报告一次，
// 返回的通道处于未打开状态（Send 为空操作）
func Connect(ctx context.Context, opts Options) *Conn {
	l := opts.Logger
	if l == nil {
		l = logger.Nop()
	}
	c := &Conn{opts: opts, log: l}

	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := URL(opts.BaseURL, opts.SessionID)
	ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, u, nil)
	if err != nil {
		l.Err(err, "会话通道连接失败", "session", string(opts.SessionID), "url", u)
		c.reportError(fmt.Errorf("%w: %v", domain.ErrEndpointUnreachable, err))
		c.closeOnce.Do(c.notifyClose)
		return c
	}

	c.ws = ws
	c.open = true
	l.Info("会话通道已建立", "session", string(opts.SessionID))
	go c.readLoop()
	return c
}

// Send 发送一条出站消息
// 通道未打开时静默丢弃：命令本就是 fire-and-forget，
// 调用方依赖投递前应自行检查 Connected
func (c *Conn) Send(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		c.log.Warn("出站消息写入失败", "session", string(c.opts.SessionID), "error", err)
	}
}

// Close 发起优雅关闭，幂等
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		wasOpen := c.open
		c.open = false
		c.mu.Unlock()

		if wasOpen {
			deadline := time.Now().Add(time.Second)
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = c.ws.Close()
			c.log.Info("会话通道已关闭", "session", string(c.opts.SessionID))
		}
		c.notifyClose()
	})
}

// Connected 返回通道是否打开
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// readLoop 单一读协程，保证入站消息按到达顺序投递
func (c *Conn) readLoop() {
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasOpen := c.open
			c.open = false
			c.mu.Unlock()

			// 主动关闭时读循环随之退出，不再重复报告
			if wasOpen {
				c.log.Warn("会话通道异常断开", "session", string(c.opts.SessionID), "error", err)
				c.reportError(fmt.Errorf("%w: %v", domain.ErrChannelClosed, err))
				_ = c.ws.Close()
				c.closeOnce.Do(c.notifyClose)
			}
			return
		}
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(msg)
		}
	}
}

// reportError 报告一次错误
func (c *Conn) reportError(err error) {
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}

// notifyClose 通知关闭
func (c *Conn) notifyClose() {
	if c.opts.OnClose != nil {
		c.opts.OnClose()
	}
}
