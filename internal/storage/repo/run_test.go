package repo_test

import (
	"testing"
	"time"

	"github.com/AK1699/Cognitest-AI-sub003/internal/storage/db"
	"github.com/AK1699/Cognitest-AI-sub003/internal/storage/model"
	"github.com/AK1699/Cognitest-AI-sub003/internal/storage/repo"
	"github.com/AK1699/Cognitest-AI-sub003/pkg/domain"
)

// setupRunTestDB 创建用于 RunRepo 测试的内存数据库
func setupRunTestDB(t *testing.T) *repo.RunRepo {
	t.Helper()
	gdb, err := db.New(db.Options{
		Name:   ":memory:",
		Prefix: "test_",
	})
	if err != nil {
		t.Fatalf("创建内存数据库失败: %v", err)
	}

	if err := db.Migrate(gdb, &model.RunRecord{}); err != nil {
		t.Fatalf("迁移数据库失败: %v", err)
	}

	r := repo.NewRunRepo(gdb)
	t.Cleanup(r.Stop)
	return r
}

// runState 构造一个带终态步骤的会话状态
func runState(session, flow string, statuses ...domain.StepStatus) *domain.SessionState {
	st := domain.NewSessionState(domain.SessionID(session))
	st.FlowID = domain.FlowID(flow)
	st.TestName = "测试流程"
	st.StartedAt = time.Now().Add(-time.Minute).UnixMilli()
	st.StoppedAt = time.Now().UnixMilli()
	st.Status = domain.SessionRunning
	for i, s := range statuses {
		st.Steps = append(st.Steps, domain.ExecutingStep{Index: i, Status: s})
	}
	return st
}

func TestRecordAndQuery(t *testing.T) {
	r := setupRunTestDB(t)

	r.Record(runState("s-1", "flow-1", domain.StepPassed, domain.StepPassed, domain.StepHealed))
	r.Flush()

	records, total, err := r.Query(domain.RunQuery{SessionID: "s-1"})
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if total != 1 || len(records) != 1 {
		t.Fatalf("记录数 = %d/%d, 期望 1", len(records), total)
	}

	rec := records[0]
	if rec.TotalSteps != 3 || rec.Passed != 2 || rec.Healed != 1 {
		t.Errorf("统计不正确: %+v", rec)
	}
	if rec.Outcome != "passed" {
		t.Errorf("Outcome = %q, 期望 passed", rec.Outcome)
	}
	if rec.StepsJSON == "" {
		t.Error("应持久化终态步骤 JSON")
	}
}

func TestOutcomeFailed(t *testing.T) {
	r := setupRunTestDB(t)

	r.Record(runState("s-1", "flow-1", domain.StepPassed, domain.StepFailed))
	r.Flush()

	records, _, err := r.Query(domain.RunQuery{})
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if records[0].Outcome != "failed" {
		t.Errorf("Outcome = %q, 期望 failed", records[0].Outcome)
	}
}

func TestOutcomeStopped(t *testing.T) {
	r := setupRunTestDB(t)

	// 会话已停止且仍有未收尾的步骤
	st := runState("s-1", "flow-1", domain.StepPassed, domain.StepRunning, domain.StepPending)
	st.Status = domain.SessionStopped
	r.Record(st)
	r.Flush()

	records, _, err := r.Query(domain.RunQuery{})
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if records[0].Outcome != "stopped" {
		t.Errorf("Outcome = %q, 期望 stopped", records[0].Outcome)
	}
}

func TestQueryFilters(t *testing.T) {
	r := setupRunTestDB(t)

	r.Record(runState("s-1", "flow-a", domain.StepPassed))
	r.Record(runState("s-2", "flow-a", domain.StepFailed))
	r.Record(runState("s-2", "flow-b", domain.StepPassed))
	r.Flush()

	tests := []struct {
		name  string
		query domain.RunQuery
		want  int64
	}{
		{"按会话过滤", domain.RunQuery{SessionID: "s-2"}, 2},
		{"按流程过滤", domain.RunQuery{FlowID: "flow-a"}, 2},
		{"按结果过滤", domain.RunQuery{Outcome: "failed"}, 1},
		{"组合过滤", domain.RunQuery{SessionID: "s-2", FlowID: "flow-b"}, 1},
		{"无匹配", domain.RunQuery{SessionID: "ghost"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, total, err := r.Query(tt.query)
			if err != nil {
				t.Fatalf("查询失败: %v", err)
			}
			if total != tt.want {
				t.Errorf("total = %d, 期望 %d", total, tt.want)
			}
		})
	}
}

func TestQueryPagination(t *testing.T) {
	r := setupRunTestDB(t)

	for i := 0; i < 5; i++ {
		r.Record(runState("s-1", "flow-1", domain.StepPassed))
	}
	r.Flush()

	records, total, err := r.Query(domain.RunQuery{Limit: 2})
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, 期望 5", total)
	}
	if len(records) != 2 {
		t.Errorf("分页结果数 = %d, 期望 2", len(records))
	}
}

func TestDeleteBySession(t *testing.T) {
	r := setupRunTestDB(t)

	r.Record(runState("s-1", "flow-1", domain.StepPassed))
	r.Record(runState("s-2", "flow-1", domain.StepPassed))
	r.Flush()

	if err := r.DeleteBySession("s-1"); err != nil {
		t.Fatalf("删除失败: %v", err)
	}

	_, total, err := r.Query(domain.RunQuery{})
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if total != 1 {
		t.Errorf("剩余记录数 = %d, 期望 1", total)
	}
}

func TestCleanupOldRuns(t *testing.T) {
	r := setupRunTestDB(t)

	old := runState("s-old", "flow-1", domain.StepPassed)
	old.StartedAt = time.Now().AddDate(0, 0, -60).UnixMilli()
	r.Record(old)
	r.Record(runState("s-new", "flow-1", domain.StepPassed))
	r.Flush()

	deleted, err := r.CleanupOldRuns(30)
	if err != nil {
		t.Fatalf("清理失败: %v", err)
	}
	if deleted != 1 {
		t.Errorf("清理条数 = %d, 期望 1", deleted)
	}

	_, total, _ := r.Query(domain.RunQuery{})
	if total != 1 {
		t.Errorf("剩余记录数 = %d, 期望 1", total)
	}
}

func TestClearAll(t *testing.T) {
	r := setupRunTestDB(t)

	r.Record(runState("s-1", "flow-1", domain.StepPassed))
	r.Record(runState("s-2", "flow-1", domain.StepPassed))
	r.Flush()

	if err := r.ClearAll(); err != nil {
		t.Fatalf("清空失败: %v", err)
	}

	_, total, _ := r.Query(domain.RunQuery{})
	if total != 0 {
		t.Errorf("清空后记录数 = %d", total)
	}
}

func TestStopFlushesBuffer(t *testing.T) {
	gdb, err := db.New(db.Options{Name: ":memory:", Prefix: "test_"})
	if err != nil {
		t.Fatalf("创建内存数据库失败: %v", err)
	}
	if err := db.Migrate(gdb, &model.RunRecord{}); err != nil {
		t.Fatalf("迁移数据库失败: %v", err)
	}

	r := repo.NewRunRepo(gdb)
	r.Record(runState("s-1", "flow-1", domain.StepPassed))

	// Stop 前缓冲区内的数据应在停止时落库
	r.Stop()

	r2 := repo.NewRunRepo(gdb)
	defer r2.Stop()
	_, total, err := r2.Query(domain.RunQuery{})
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if total != 1 {
		t.Errorf("Stop 后记录数 = %d, 期望 1", total)
	}
}
