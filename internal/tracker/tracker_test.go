package tracker_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AK1699/Cognitest-AI-sub003/internal/logger"
	"github.com/AK1699/Cognitest-AI-sub003/internal/tracker"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
	}{
		{"正常超时", 30 * time.Second},
		{"零超时使用默认值", 0},
		{"负超时使用默认值", -1 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := tracker.New[string](tt.timeout, logger.Nop())
			defer tr.Stop()

			if tr == nil {
				t.Error("New() returned nil")
			}
		})
	}
}

func TestSetAndGet(t *testing.T) {
	tr := tracker.New[testData](5*time.Second, logger.Nop())
	defer tr.Stop()

	data := testData{Name: "req-1", Age: 42}
	tr.Set("id-1", data)

	got, ok := tr.Get("id-1")
	if !ok {
		t.Fatal("Get() 应返回已登记的数据")
	}
	if got != data {
		t.Errorf("Get() = %+v, 期望 %+v", got, data)
	}

	// Get 取出即移除
	if _, ok := tr.Get("id-1"); ok {
		t.Error("Get() 之后条目应已被移除")
	}
}

type testData struct {
	Name string
	Age  int
}

func TestGetMissing(t *testing.T) {
	tr := tracker.New[string](5*time.Second, logger.Nop())
	defer tr.Stop()

	if _, ok := tr.Get("nonexistent"); ok {
		t.Error("不存在的条目 Get() 应返回 false")
	}
}

func TestPeek(t *testing.T) {
	tr := tracker.New[string](5*time.Second, logger.Nop())
	defer tr.Stop()

	tr.Set("id-1", "value")

	if got, ok := tr.Peek("id-1"); !ok || got != "value" {
		t.Errorf("Peek() = %q, %v, 期望 value, true", got, ok)
	}

	// Peek 不移除条目
	if _, ok := tr.Peek("id-1"); !ok {
		t.Error("Peek() 之后条目应仍然存在")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := tracker.New[int](5*time.Second, logger.Nop())
	defer tr.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("id-%d", n)
			tr.Set(id, n)
			if got, ok := tr.Get(id); !ok || got != n {
				t.Errorf("并发读写 %s 失败: got=%d ok=%v", id, got, ok)
			}
		}(i)
	}
	wg.Wait()
}

func TestStopIdempotent(t *testing.T) {
	tr := tracker.New[string](5*time.Second, logger.Nop())
	tr.Stop()
	tr.Stop()
}
