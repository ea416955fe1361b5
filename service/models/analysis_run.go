/*
 * @module service/models/analysis_run
 * @description 聚类分析执行日志与结果模型
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference DESIGN.md
 * @stateFlow running -> succeeded/failed（queued 仅存在于内存队列）
 * @rules 执行日志只追加，终态只写入一次；结果创建后不可变，不随数据集删除
 * @dependencies gorm.io/gorm, github.com/google/uuid, github.com/lib/pq
 * @refs service/store, service/analysis
 */

package models

import (
	"clusterhub-service/service/meta"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ExecutionLog 执行日志模型，ID 与运行ID一致
type ExecutionLog struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)" example:"550e8400-e29b-41d4-a716-446655440000"`
	DatasetID    string     `json:"dataset_id" gorm:"not null;type:varchar(36);index"`
	Algorithm    string     `json:"algorithm" gorm:"not null;size:50;index" example:"kmeans"`
	Request      JSONB      `json:"request" gorm:"type:jsonb"` // 运行请求快照
	Seed         int64      `json:"seed" gorm:"not null;default:0"`
	Status       string     `json:"status" gorm:"not null;size:20;index" example:"running"` // queued, running, succeeded, failed
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	DurationMs   int64      `json:"duration_ms" gorm:"default:0"`
	ErrorCode    string     `json:"error_code,omitempty" gorm:"size:50"`
	ErrorMessage string     `json:"error_message,omitempty" gorm:"type:text"`
	ResultID     *string    `json:"result_id,omitempty" gorm:"type:varchar(36)"`
	CreatedAt    time.Time  `json:"created_at" gorm:"not null;index"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (l *ExecutionLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// IsTerminal 判断是否已到达终态
func (l *ExecutionLog) IsTerminal() bool {
	return meta.IsTerminalRunStatus(l.Status)
}

// GetDuration 获取执行时长
func (l *ExecutionLog) GetDuration() time.Duration {
	if l.StartTime == nil {
		return 0
	}
	if l.EndTime == nil {
		return time.Since(*l.StartTime)
	}
	return l.EndTime.Sub(*l.StartTime)
}

// Result 聚类结果模型
type Result struct {
	ID             string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ExecutionLogID string         `json:"execution_log_id" gorm:"not null;type:varchar(36);uniqueIndex"`
	DatasetID      string         `json:"dataset_id" gorm:"not null;type:varchar(36);index"`
	Algorithm      string         `json:"algorithm" gorm:"not null;size:50"`
	Kind           string         `json:"kind" gorm:"not null;size:20;default:'clustering'"` // clustering, estimator
	Parameters     JSONB          `json:"parameters" gorm:"type:jsonb"`
	Assignments    IntArray       `json:"assignments" gorm:"type:jsonb"`
	RecordIDs      pq.StringArray `json:"record_ids" gorm:"type:text"`
	FeatureColumns pq.StringArray `json:"feature_columns" gorm:"type:text"`
	Indexes        Float64Map     `json:"indexes" gorm:"type:jsonb"`
	Curve          EstimateCurve  `json:"curve,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null;index"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (r *Result) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// ClusterCount 统计真实簇数量（不含噪声标签）
func (r *Result) ClusterCount() int {
	seen := make(map[int]struct{})
	for _, label := range r.Assignments {
		if label != meta.NoiseLabel {
			seen[label] = struct{}{}
		}
	}
	return len(seen)
}

// NoiseCount 统计噪声点数量
func (r *Result) NoiseCount() int {
	count := 0
	for _, label := range r.Assignments {
		if label == meta.NoiseLabel {
			count++
		}
	}
	return count
}
