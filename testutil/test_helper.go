/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @documentReference DESIGN.md
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性；内存库限制为单连接，保证各 goroutine 看到同一个库
 * @dependencies gorm, sqlite, testify
 * @refs service/models, service/database
 */

package testutil

import (
	"bytes"
	"clusterhub-service/service/database"
	"clusterhub-service/service/meta"
	"clusterhub-service/service/models"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		panic(fmt.Sprintf("failed to get test database pool: %v", err))
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &TestDB{DB: db}
}

// CleanDB 清理数据库
func (tdb *TestDB) CleanDB() {
	tables := []string{
		"results",
		"execution_logs",
		"records",
		"attributes",
		"datasets",
	}

	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// DatasetOption 数据集选项函数类型
type DatasetOption func(*models.Dataset)

// WithDeleted 标记为软删除
func WithDeleted() DatasetOption {
	return func(d *models.Dataset) {
		d.Deleted = true
	}
}

// CreateDataset 创建测试数据集，attributes 为 名称->类型 的有序列表
func (f *TestDataFactory) CreateDataset(attributes [][2]string, opts ...DatasetOption) (*models.Dataset, []models.Attribute) {
	dataset := &models.Dataset{
		Name:          "test_dataset_" + generateSuffix(),
		Label:         "测试数据集",
		Description:   "这是一个测试数据集",
		AttributeType: meta.DatasetAttributeTypeNumeric,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(dataset)
	}

	if err := f.DB.Create(dataset).Error; err != nil {
		panic(fmt.Sprintf("failed to create test dataset: %v", err))
	}

	attrs := make([]models.Attribute, 0, len(attributes))
	for i, a := range attributes {
		attr := models.Attribute{
			DatasetID: dataset.ID,
			Name:      a[0],
			Type:      a[1],
			Position:  i,
			CreatedAt: time.Now(),
		}
		if err := f.DB.Create(&attr).Error; err != nil {
			panic(fmt.Sprintf("failed to create test attribute: %v", err))
		}
		attrs = append(attrs, attr)
	}
	return dataset, attrs
}

// CreateRecords 按属性名写入记录，nil 值表示缺失
func (f *TestDataFactory) CreateRecords(datasetID string, attrs []models.Attribute, rows []map[string]interface{}) []models.Record {
	byName := make(map[string]string, len(attrs))
	for _, a := range attrs {
		byName[a.Name] = a.ID
	}

	var seq int64
	f.DB.Model(&models.Record{}).Where("dataset_id = ?", datasetID).Select("COALESCE(MAX(seq), 0)").Scan(&seq)

	records := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		seq++
		values := models.JSONB{}
		for name, v := range row {
			if v == nil {
				continue
			}
			id, ok := byName[name]
			if !ok {
				id = name
			}
			values[id] = v
		}
		records = append(records, models.Record{DatasetID: datasetID, Seq: seq, Values: values, CreatedAt: time.Now()})
	}
	if len(records) > 0 {
		if err := f.DB.Create(&records).Error; err != nil {
			panic(fmt.Sprintf("failed to create test records: %v", err))
		}
	}
	return records
}

// CreateNumericDataset 创建全数值数据集，列名为 x0, x1, ...
func (f *TestDataFactory) CreateNumericDataset(rows [][]float64, opts ...DatasetOption) *models.Dataset {
	dims := 0
	if len(rows) > 0 {
		dims = len(rows[0])
	}
	attributes := make([][2]string, dims)
	for d := range attributes {
		attributes[d] = [2]string{fmt.Sprintf("x%d", d), meta.AttributeTypeNumeric}
	}
	dataset, attrs := f.CreateDataset(attributes, opts...)

	maps := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		m := make(map[string]interface{}, dims)
		for d, v := range row {
			m[fmt.Sprintf("x%d", d)] = v
		}
		maps[i] = m
	}
	f.CreateRecords(dataset.ID, attrs, maps)
	return dataset
}

// BlobRows 生成围绕给定中心的高斯团，共 n 行
func BlobRows(seed int64, n int, std float64, centers ...[]float64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]float64, n)
	for i := range rows {
		center := centers[i%len(centers)]
		row := make([]float64, len(center))
		for d := range row {
			row[d] = center[d] + rng.NormFloat64()*std
		}
		rows[i] = row
	}
	return rows
}

// 辅助函数
func generateSuffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano()%100000)
}

// HTTPTestHelper HTTP测试辅助工具
type HTTPTestHelper struct{}

// NewHTTPTestHelper 创建HTTP测试辅助工具
func NewHTTPTestHelper() *HTTPTestHelper {
	return &HTTPTestHelper{}
}

// CreateJSONRequest 创建JSON请求
func (h *HTTPTestHelper) CreateJSONRequest(method, url string, body interface{}) (*http.Request, error) {
	var reqBody io.Reader

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// DecodeResponse 解析统一响应结构，data 字段解码到 out
func (h *HTTPTestHelper) DecodeResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, out interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, w.Body.String())

	var envelope struct {
		Status int             `json:"status"`
		Msg    string          `json:"msg"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	if out != nil && len(envelope.Data) > 0 {
		require.NoError(t, json.Unmarshal(envelope.Data, out))
	}
}

// DecodeRaw 解析未包装的JSON响应
func (h *HTTPTestHelper) DecodeRaw(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, out interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}
