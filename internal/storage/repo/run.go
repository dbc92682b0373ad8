package repo

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/AK1699/Cognitest-AI-sub003/internal/storage/model"
	"github.com/AK1699/Cognitest-AI-sub003/pkg/domain"

	"gorm.io/gorm"
)

// RunRepo 运行历史仓库（只存储完整运行到数据库）
type RunRepo struct {
	BaseRepository[model.RunRecord]
	buffer    []model.RunRecord
	bufferMu  sync.Mutex
	batchSize int
	flushCh   chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewRunRepo 创建运行历史仓库实例
func NewRunRepo(db *gorm.DB) *RunRepo {
	r := &RunRepo{
		BaseRepository: *NewBaseRepository[model.RunRecord](db),
		buffer:         make([]model.RunRecord, 0, 100),
		batchSize:      50,
		flushCh:        make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
	}
	// 启动异步写入协程
	r.wg.Add(1)
	go r.asyncWriter()
	return r
}

// asyncWriter 异步批量写入协程
func (r *RunRepo) asyncWriter() {
	defer r.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			// 停止前刷新剩余数据
			r.flush()
			return
		case <-ticker.C:
			r.flush()
		case <-r.flushCh:
			r.flush()
		}
	}
}

// flush 刷新缓冲区到数据库
func (r *RunRepo) flush() {
	r.bufferMu.Lock()
	if len(r.buffer) == 0 {
		r.bufferMu.Unlock()
		return
	}
	toWrite := r.buffer
	r.buffer = make([]model.RunRecord, 0, 100)
	r.bufferMu.Unlock()

	// 批量插入
	if err := r.Db.CreateInBatches(toWrite, 100).Error; err != nil {
		// 记录错误但不阻塞
		_ = err
	}
}

// Stop 停止异步写入
func (r *RunRepo) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

// Record 记录一次完整运行（异步写入数据库）
func (r *RunRepo) Record(st *domain.SessionState) {
	var passed, failed, skipped, healed int
	for _, step := range st.Steps {
		switch step.Status {
		case domain.StepPassed:
			passed++
		case domain.StepFailed:
			failed++
		case domain.StepSkipped:
			skipped++
		case domain.StepHealed:
			healed++
		}
	}

	outcome := "passed"
	if failed > 0 {
		outcome = "failed"
	}
	if st.Status == domain.SessionStopped && passed+failed+skipped+healed < len(st.Steps) {
		outcome = "stopped"
	}

	// 序列化终态步骤列表
	stepsJSON, _ := json.Marshal(st.Steps)

	completedAt := time.Now().UnixMilli()
	if st.StoppedAt > 0 {
		completedAt = st.StoppedAt
	}

	record := model.RunRecord{
		SessionID:   string(st.ID),
		FlowID:      string(st.FlowID),
		TestName:    st.TestName,
		TotalSteps:  len(st.Steps),
		Passed:      passed,
		Failed:      failed,
		Skipped:     skipped,
		Healed:      healed,
		Outcome:     outcome,
		StepsJSON:   string(stepsJSON),
		StartedAt:   st.StartedAt,
		CompletedAt: completedAt,
		CreatedAt:   time.Now(),
	}

	r.bufferMu.Lock()
	r.buffer = append(r.buffer, record)
	needFlush := len(r.buffer) >= r.batchSize
	r.bufferMu.Unlock()

	if needFlush {
		select {
		case r.flushCh <- struct{}{}:
		default:
		}
	}
}

// Flush 立即触发一次刷新（等待写入完成）
func (r *RunRepo) Flush() {
	r.flush()
}

// Query 查询运行历史
func (r *RunRepo) Query(opts domain.RunQuery) ([]model.RunRecord, int64, error) {
	query := r.Db.Model(&model.RunRecord{})

	// 应用过滤条件
	if opts.SessionID != "" {
		query = query.Where("session_id = ?", opts.SessionID)
	}
	if opts.FlowID != "" {
		query = query.Where("flow_id = ?", opts.FlowID)
	}
	if opts.Outcome != "" {
		query = query.Where("outcome = ?", opts.Outcome)
	}
	if opts.StartTime > 0 {
		query = query.Where("started_at >= ?", opts.StartTime)
	}
	if opts.EndTime > 0 {
		query = query.Where("started_at <= ?", opts.EndTime)
	}

	// 计算总数
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}

	var records []model.RunRecord
	err := query.Order("started_at DESC").
		Offset(opts.Offset).
		Limit(opts.Limit).
		Find(&records).Error

	return records, total, err
}

// DeleteOldRuns 删除旧运行记录（数据清理）
func (r *RunRepo) DeleteOldRuns(beforeTimestamp int64) (int64, error) {
	result := r.Db.Where("started_at < ?", beforeTimestamp).Delete(&model.RunRecord{})
	return result.RowsAffected, result.Error
}

// DeleteBySession 删除指定会话的运行记录
func (r *RunRepo) DeleteBySession(sessionID string) error {
	return r.Db.Where("session_id = ?", sessionID).Delete(&model.RunRecord{}).Error
}

// CleanupOldRuns 根据保留天数清理旧运行记录
func (r *RunRepo) CleanupOldRuns(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 30 // 默认保留 30 天
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()
	return r.DeleteOldRuns(cutoff)
}

// ClearAll 清空所有运行记录
func (r *RunRepo) ClearAll() error {
	return r.Db.Where("1 = 1").Delete(&model.RunRecord{}).Error
}
