package analysis

import (
	"clusterhub-service/service/models"
	"clusterhub-service/service/store"
	"context"
)

// DatasetSource 编排器读取数据集的最小接口，由 catalog.Service 实现
type DatasetSource interface {
	GetDataset(ctx context.Context, id string) (*models.Dataset, error)
	ListAttributes(ctx context.Context, datasetID string) ([]models.Attribute, error)
	ListRecords(ctx context.Context, datasetID string, limit int) ([]models.Record, error)
}

// ResultRepository 结果存储接口，由 store.ResultStore 实现
type ResultRepository interface {
	Put(ctx context.Context, result *models.Result) (string, error)
	Get(ctx context.Context, id string) (*models.Result, error)
	List(ctx context.Context, filter store.ResultFilter) ([]models.Result, error)
	Delete(ctx context.Context, id string) error
}

// RunLog 执行日志接口，由 store.ExecutionLogStore 实现
type RunLog interface {
	Begin(ctx context.Context, entry *models.ExecutionLog) error
	Finish(ctx context.Context, id string, outcome store.Outcome) error
	Get(ctx context.Context, id string) (*models.ExecutionLog, error)
	List(ctx context.Context, limit int) ([]models.ExecutionLog, error)
}
