/*
 * @module service/store/store
 * @description 分析结果存储与执行日志的 GORM 实现
 * @architecture 数据访问层
 * @documentReference DESIGN.md
 * @stateFlow Begin(running) -> Finish(succeeded/failed)，结果在成功时写入
 * @rules 执行日志只追加，终态仅能写入一次（条件更新 status=running）；结果不可变，删除幂等
 * @dependencies gorm.io/gorm, clusterhub-service/service/models
 * @refs service/analysis
 */

package store

import (
	"clusterhub-service/service/meta"
	"clusterhub-service/service/models"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrAlreadyFinished 执行日志已处于终态
var ErrAlreadyFinished = errors.New("执行日志已结束")

// ResultStore 分析结果存储
type ResultStore struct {
	db *gorm.DB
}

// NewResultStore 创建结果存储
func NewResultStore(db *gorm.DB) *ResultStore {
	return &ResultStore{db: db}
}

// Put 保存结果并返回ID
func (s *ResultStore) Put(ctx context.Context, result *models.Result) (string, error) {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(result).Error; err != nil {
		return "", fmt.Errorf("保存分析结果失败: %w", err)
	}
	return result.ID, nil
}

// Get 获取结果
func (s *ResultStore) Get(ctx context.Context, id string) (*models.Result, error) {
	var result models.Result
	err := s.db.WithContext(ctx).First(&result, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: 结果 %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("查询分析结果失败: %w", err)
	}
	return &result, nil
}

// ResultFilter 结果列表过滤条件
type ResultFilter struct {
	DatasetID string
	Algorithm string
	Limit     int
}

// List 按创建时间倒序列出结果
func (s *ResultStore) List(ctx context.Context, filter ResultFilter) ([]models.Result, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if filter.DatasetID != "" {
		query = query.Where("dataset_id = ?", filter.DatasetID)
	}
	if filter.Algorithm != "" {
		query = query.Where("algorithm = ?", filter.Algorithm)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var results []models.Result
	if err := query.Find(&results).Error; err != nil {
		return nil, fmt.Errorf("查询分析结果列表失败: %w", err)
	}
	return results, nil
}

// Delete 删除结果，不存在时不报错
func (s *ResultStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Result{}).Error; err != nil {
		return fmt.Errorf("删除分析结果失败: %w", err)
	}
	return nil
}

// Count 结果总数
func (s *ResultStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Result{}).Count(&count).Error
	return count, err
}

// ExecutionLogStore 执行日志存储
type ExecutionLogStore struct {
	db *gorm.DB
}

// NewExecutionLogStore 创建执行日志存储
func NewExecutionLogStore(db *gorm.DB) *ExecutionLogStore {
	return &ExecutionLogStore{db: db}
}

// Begin 以 running 状态追加执行日志
func (s *ExecutionLogStore) Begin(ctx context.Context, entry *models.ExecutionLog) error {
	now := time.Now()
	entry.Status = meta.RunStatusRunning
	entry.StartTime = &now
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("写入执行日志失败: %w", err)
	}
	return nil
}

// Outcome 执行终态
type Outcome struct {
	Status       string
	ErrorCode    string
	ErrorMessage string
	ResultID     *string
	EndTime      time.Time
}

// Finish 写入终态。仅当日志仍为 running 时生效，否则返回 ErrAlreadyFinished
func (s *ExecutionLogStore) Finish(ctx context.Context, id string, outcome Outcome) error {
	if !meta.IsTerminalRunStatus(outcome.Status) {
		return fmt.Errorf("非终态状态: %s", outcome.Status)
	}
	if outcome.EndTime.IsZero() {
		outcome.EndTime = time.Now()
	}

	var entry models.ExecutionLog
	if err := s.db.WithContext(ctx).Select("id", "start_time").First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: 执行日志 %s", models.ErrNotFound, id)
		}
		return fmt.Errorf("查询执行日志失败: %w", err)
	}
	var durationMs int64
	if entry.StartTime != nil {
		durationMs = outcome.EndTime.Sub(*entry.StartTime).Milliseconds()
	}

	update := s.db.WithContext(ctx).Model(&models.ExecutionLog{}).
		Where("id = ? AND status = ?", id, meta.RunStatusRunning).
		Updates(map[string]interface{}{
			"status":        outcome.Status,
			"end_time":      outcome.EndTime,
			"duration_ms":   durationMs,
			"error_code":    outcome.ErrorCode,
			"error_message": outcome.ErrorMessage,
			"result_id":     outcome.ResultID,
		})
	if update.Error != nil {
		return fmt.Errorf("更新执行日志失败: %w", update.Error)
	}
	if update.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyFinished, id)
	}
	return nil
}

// Get 获取执行日志
func (s *ExecutionLogStore) Get(ctx context.Context, id string) (*models.ExecutionLog, error) {
	var entry models.ExecutionLog
	err := s.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: 执行日志 %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("查询执行日志失败: %w", err)
	}
	return &entry, nil
}

// List 按创建时间倒序列出执行日志，limit<=0 表示全部
func (s *ExecutionLogStore) List(ctx context.Context, limit int) ([]models.ExecutionLog, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var entries []models.ExecutionLog
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("查询执行日志列表失败: %w", err)
	}
	return entries, nil
}

// ListStale 列出开始时间早于 before 且仍为 running 的执行日志
func (s *ExecutionLogStore) ListStale(ctx context.Context, before time.Time) ([]models.ExecutionLog, error) {
	var entries []models.ExecutionLog
	err := s.db.WithContext(ctx).
		Where("status = ? AND start_time < ?", meta.RunStatusRunning, before).
		Order("start_time ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("查询超时执行日志失败: %w", err)
	}
	return entries, nil
}

// CountByStatus 按状态统计执行日志
func (s *ExecutionLogStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := s.db.WithContext(ctx).Model(&models.ExecutionLog{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}
