/*
 * @module service/models/dataset
 * @description 数据集目录模型定义，包括数据集、属性、记录三类实体
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference DESIGN.md
 * @stateFlow 创建 -> 追加记录 -> 硬删除（记录 -> 属性 -> 数据集）
 * @rules 记录的取值键必须全部指向同一数据集下的属性
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/catalog
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Dataset 数据集模型
type Dataset struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)" example:"550e8400-e29b-41d4-a716-446655440000"`
	Name          string    `json:"name" gorm:"not null;size:255;index" example:"iris"`
	Label         string    `json:"label" gorm:"size:255" example:"Iris flowers"`
	Description   string    `json:"description" gorm:"size:1000"`
	AttributeType string    `json:"attribute_type" gorm:"not null;size:20;default:'numeric'" example:"numeric"` // numeric, categorical, mixed
	Deleted       bool      `json:"deleted" gorm:"not null;default:false;index"`
	CreatedAt     time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	// 关联关系
	Attributes []Attribute `json:"attributes,omitempty" gorm:"foreignKey:DatasetID"`
	Records    []Record    `json:"records,omitempty" gorm:"foreignKey:DatasetID"`

	// 统计字段，不落库
	RecordsCount int64 `json:"records_count" gorm:"-"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (d *Dataset) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// Attribute 数据集属性模型
type Attribute struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	DatasetID string    `json:"dataset_id" gorm:"not null;type:varchar(36);index"`
	Name      string    `json:"name" gorm:"not null;size:255"`
	Type      string    `json:"type" gorm:"not null;size:20" example:"numeric"` // numeric, integer, boolean, categorical, text
	Position  int       `json:"position" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (a *Attribute) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// Record 数据集记录模型，Values 以属性ID为键
type Record struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	DatasetID string    `json:"dataset_id" gorm:"not null;type:varchar(36);index"`
	Seq       int64     `json:"seq" gorm:"not null;default:0;index"`
	Values    JSONB     `json:"values" gorm:"type:jsonb"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
