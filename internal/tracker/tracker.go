package tracker

import (
	"sync"
	"time"

	"github.com/AK1699/Cognitest-AI-sub003/internal/logger"
)

// entry 事务追踪条目
type entry[T any] struct {
	id        string
	startTime time.Time
	data      T
}

// Tracker 事务追踪器，负责管理请求/响应生命周期内的上下文
// 网络事件的请求阶段在此登记，响应阶段取出配对；
// 始终没有等到响应的条目由后台协程按超时清理
type Tracker[T any] struct {
	pool    sync.Map
	timeout time.Duration
	log     logger.Logger
	done    chan struct{}
}

// New 创建一个新的事务追踪器
func New[T any](timeout time.Duration, l logger.Logger) *Tracker[T] {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if l == nil {
		l = logger.Nop()
	}
	t := &Tracker[T]{
		timeout: timeout,
		log:     l,
		done:    make(chan struct{}),
	}
	go t.cleanupLoop()
	return t
}

// Set 存入事务关联数据
func (t *Tracker[T]) Set(id string, data T) {
	t.pool.Store(id, &entry[T]{
		id:        id,
		startTime: time.Now(),
		data:      data,
	})
}

// Get 获取并移除事务数据
func (t *Tracker[T]) Get(id string) (T, bool) {
	val, ok := t.pool.LoadAndDelete(id)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(*entry[T]).data, true
}

// Peek 仅获取事务数据而不移除
func (t *Tracker[T]) Peek(id string) (T, bool) {
	val, ok := t.pool.Load(id)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(*entry[T]).data, true
}

// Stop 停止追踪器，释放资源
func (t *Tracker[T]) Stop() {
	select {
	case <-t.done:
		return
	default:
		close(t.done)
	}
}

// cleanupLoop 定期清理过期事务的后台协程
func (t *Tracker[T]) cleanupLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			now := time.Now()
			t.pool.Range(func(key, value any) bool {
				e := value.(*entry[T])
				if now.Sub(e.startTime) > t.timeout {
					t.pool.Delete(key)
					t.log.Debug("清理过期事务数据", "id", key, "startTime", e.startTime)
				}
				return true
			})
		}
	}
}
