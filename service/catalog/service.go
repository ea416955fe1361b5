/*
 * @module service/catalog/service
 * @description 数据集目录服务，管理数据集、属性与记录，为分析编排提供只读查询
 * @architecture 分层架构 - 业务服务层
 * @documentReference DESIGN.md
 * @stateFlow 创建数据集 -> 追加/导入记录 -> 查询 -> 硬删除（记录 -> 属性 -> 数据集）
 * @rules 记录取值键必须指向同一数据集的属性；软删除标记的数据集对外视为不存在；删除在事务内完成
 * @dependencies gorm.io/gorm, clusterhub-service/service/models
 * @refs service/analysis, api/controllers/dataset_controller.go
 */

package catalog

import (
	"clusterhub-service/service/meta"
	"clusterhub-service/service/models"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ErrInvalidDataset 数据集或记录内容不合法
var ErrInvalidDataset = errors.New("数据集内容无效")

// Service 数据集目录服务
type Service struct {
	db *gorm.DB
}

// NewService 创建数据集目录服务实例
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// AttributeInput 属性定义
type AttributeInput struct {
	Name string `json:"name" example:"sepal_length"`
	Type string `json:"type" example:"numeric"`
}

// DatasetInput 创建数据集的输入
type DatasetInput struct {
	Name        string           `json:"name" example:"iris"`
	Label       string           `json:"label" example:"Iris flowers"`
	Description string           `json:"description"`
	Attributes  []AttributeInput `json:"attributes"`
}

// Stats 目录统计
type Stats struct {
	Datasets   int64 `json:"datasets"`
	Records    int64 `json:"records"`
	Attributes int64 `json:"attributes"`
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", models.ErrNotFound, kind, id)
}

// GetDataset 获取未删除的数据集
func (s *Service) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	var dataset models.Dataset
	err := s.db.WithContext(ctx).Where("id = ? AND deleted = ?", id, false).First(&dataset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("数据集", id)
	}
	if err != nil {
		return nil, fmt.Errorf("查询数据集失败: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Record{}).Where("dataset_id = ?", id).Count(&dataset.RecordsCount).Error; err != nil {
		return nil, fmt.Errorf("统计记录数失败: %w", err)
	}
	return &dataset, nil
}

// ListDatasets 列出未删除的数据集及记录数
func (s *Service) ListDatasets(ctx context.Context) ([]models.Dataset, error) {
	var datasets []models.Dataset
	if err := s.db.WithContext(ctx).Where("deleted = ?", false).Order("created_at DESC").Find(&datasets).Error; err != nil {
		return nil, fmt.Errorf("查询数据集列表失败: %w", err)
	}
	if len(datasets) == 0 {
		return datasets, nil
	}

	ids := make([]string, len(datasets))
	for i, d := range datasets {
		ids[i] = d.ID
	}
	var counts []struct {
		DatasetID string
		Total     int64
	}
	err := s.db.WithContext(ctx).Model(&models.Record{}).
		Select("dataset_id, COUNT(*) AS total").
		Where("dataset_id IN ?", ids).
		Group("dataset_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("统计记录数失败: %w", err)
	}
	byID := make(map[string]int64, len(counts))
	for _, c := range counts {
		byID[c.DatasetID] = c.Total
	}
	for i := range datasets {
		datasets[i].RecordsCount = byID[datasets[i].ID]
	}
	return datasets, nil
}

// ListAttributes 按位置列出数据集属性
func (s *Service) ListAttributes(ctx context.Context, datasetID string) ([]models.Attribute, error) {
	if err := s.ensureExists(ctx, datasetID); err != nil {
		return nil, err
	}
	var attributes []models.Attribute
	if err := s.db.WithContext(ctx).Where("dataset_id = ?", datasetID).Order("position ASC, created_at ASC").Find(&attributes).Error; err != nil {
		return nil, fmt.Errorf("查询属性失败: %w", err)
	}
	return attributes, nil
}

// ListRecords 按写入顺序列出数据集记录，limit<=0 表示全部
func (s *Service) ListRecords(ctx context.Context, datasetID string, limit int) ([]models.Record, error) {
	if err := s.ensureExists(ctx, datasetID); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Where("dataset_id = ?", datasetID).Order("seq ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []models.Record
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("查询记录失败: %w", err)
	}
	return records, nil
}

func (s *Service) ensureExists(ctx context.Context, datasetID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Dataset{}).Where("id = ? AND deleted = ?", datasetID, false).Count(&count).Error; err != nil {
		return fmt.Errorf("查询数据集失败: %w", err)
	}
	if count == 0 {
		return notFound("数据集", datasetID)
	}
	return nil
}

// CreateDataset 创建数据集及其属性
func (s *Service) CreateDataset(ctx context.Context, input DatasetInput) (*models.Dataset, error) {
	if err := validateDatasetInput(input); err != nil {
		return nil, err
	}

	dataset := &models.Dataset{
		Name:          strings.TrimSpace(input.Name),
		Label:         input.Label,
		Description:   input.Description,
		AttributeType: classify(input.Attributes),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(dataset).Error; err != nil {
			return err
		}
		for i, a := range input.Attributes {
			attr := models.Attribute{
				DatasetID: dataset.ID,
				Name:      strings.TrimSpace(a.Name),
				Type:      a.Type,
				Position:  i,
				CreatedAt: time.Now(),
			}
			if err := tx.Create(&attr).Error; err != nil {
				return err
			}
			dataset.Attributes = append(dataset.Attributes, attr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("创建数据集失败: %w", err)
	}

	slog.Info("数据集已创建", "dataset_id", dataset.ID, "name", dataset.Name, "attributes", len(dataset.Attributes))
	return dataset, nil
}

func validateDatasetInput(input DatasetInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: 名称不能为空", ErrInvalidDataset)
	}
	if len(input.Attributes) == 0 {
		return fmt.Errorf("%w: 至少需要一个属性", ErrInvalidDataset)
	}
	seen := make(map[string]bool, len(input.Attributes))
	for _, a := range input.Attributes {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return fmt.Errorf("%w: 属性名称不能为空", ErrInvalidDataset)
		}
		if seen[name] {
			return fmt.Errorf("%w: 属性名称重复 %s", ErrInvalidDataset, name)
		}
		seen[name] = true
		if !meta.IsValidAttributeType(a.Type) {
			return fmt.Errorf("%w: 属性 %s 类型无效 %s", ErrInvalidDataset, name, a.Type)
		}
	}
	return nil
}

// classify 根据属性类型确定数据集分类
func classify(attributes []AttributeInput) string {
	numeric, other := 0, 0
	for _, a := range attributes {
		if meta.IsNumericAttributeType(a.Type) {
			numeric++
		} else {
			other++
		}
	}
	switch {
	case other == 0:
		return meta.DatasetAttributeTypeNumeric
	case numeric == 0:
		return meta.DatasetAttributeTypeCategorical
	default:
		return meta.DatasetAttributeTypeMixed
	}
}

// AddRecords 追加记录，行以属性名为键，nil 值视为缺失不写入
func (s *Service) AddRecords(ctx context.Context, datasetID string, rows []map[string]interface{}) (int, error) {
	attributes, err := s.ListAttributes(ctx, datasetID)
	if err != nil {
		return 0, err
	}
	byName := make(map[string]string, len(attributes))
	for _, a := range attributes {
		byName[a.Name] = a.ID
	}

	records := make([]models.Record, 0, len(rows))
	for i, row := range rows {
		values := models.JSONB{}
		for name, value := range row {
			id, ok := byName[name]
			if !ok {
				return 0, fmt.Errorf("%w: 第 %d 行包含未知属性 %s", ErrInvalidDataset, i+1, name)
			}
			if value != nil {
				values[id] = value
			}
		}
		records = append(records, models.Record{DatasetID: datasetID, Values: values, CreatedAt: time.Now()})
	}
	if len(records) == 0 {
		return 0, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq int64
		if err := tx.Model(&models.Record{}).Where("dataset_id = ?", datasetID).Select("COALESCE(MAX(seq), 0)").Scan(&seq).Error; err != nil {
			return err
		}
		for i := range records {
			seq++
			records[i].Seq = seq
		}
		if err := tx.CreateInBatches(records, 500).Error; err != nil {
			return err
		}
		return tx.Model(&models.Dataset{}).Where("id = ?", datasetID).Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return 0, fmt.Errorf("写入记录失败: %w", err)
	}
	return len(records), nil
}

// DeleteDataset 硬删除数据集：在同一事务内依次删除记录、属性和数据集本身。
// 历史分析结果不受影响
func (s *Service) DeleteDataset(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Dataset{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return notFound("数据集", id)
		}
		if err := tx.Where("dataset_id = ?", id).Delete(&models.Record{}).Error; err != nil {
			return err
		}
		if err := tx.Where("dataset_id = ?", id).Delete(&models.Attribute{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Dataset{}).Error
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return fmt.Errorf("删除数据集失败: %w", err)
	}
	slog.Info("数据集已删除", "dataset_id", id)
	return nil
}

// Stats 统计未删除数据集的数量及其记录、属性总数
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	db := s.db.WithContext(ctx)
	live := db.Model(&models.Dataset{}).Select("id").Where("deleted = ?", false)
	if err := db.Model(&models.Dataset{}).Where("deleted = ?", false).Count(&stats.Datasets).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Record{}).Where("dataset_id IN (?)", live).Count(&stats.Records).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Attribute{}).Where("dataset_id IN (?)", live).Count(&stats.Attributes).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
