package analysis

import (
	"clusterhub-service/service/catalog"
	"clusterhub-service/service/clustering"
	"clusterhub-service/service/meta"
	"clusterhub-service/service/models"
	"clusterhub-service/service/notify"
	"clusterhub-service/service/registry"
	"clusterhub-service/service/store"
	"clusterhub-service/testutil"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// recordingPublisher 记录发布的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.RunEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event notify.RunEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types(runID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.RunID == runID {
			out = append(out, e.Type)
		}
	}
	return out
}

// OrchestratorTestSuite 任务编排器测试套件
type OrchestratorTestSuite struct {
	suite.Suite
	testDB    *testutil.TestDB
	factory   *testutil.TestDataFactory
	results   *store.ResultStore
	logs      *store.ExecutionLogStore
	publisher *recordingPublisher
	orch      *Orchestrator
	ctx       context.Context
}

func (suite *OrchestratorTestSuite) SetupSuite() {
	suite.testDB = testutil.NewTestDB()
	suite.factory = testutil.NewTestDataFactory(suite.testDB.DB)
	suite.results = store.NewResultStore(suite.testDB.DB)
	suite.logs = store.NewExecutionLogStore(suite.testDB.DB)
	suite.ctx = context.Background()
}

func (suite *OrchestratorTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

func (suite *OrchestratorTestSuite) SetupTest() {
	suite.testDB.CleanDB()
	suite.orch = suite.newOrchestrator(registry.Default(), Options{Workers: 2, QueueSize: 16, RunTimeout: time.Minute})
	suite.orch.Start()
}

func (suite *OrchestratorTestSuite) TearDownTest() {
	suite.Require().NoError(suite.orch.Stop(suite.ctx))
}

func (suite *OrchestratorTestSuite) newOrchestrator(reg *registry.Registry, opts Options) *Orchestrator {
	suite.publisher = &recordingPublisher{}
	return NewOrchestrator(catalog.NewService(suite.testDB.DB), reg, suite.results, suite.logs, nil, suite.publisher, opts)
}

func (suite *OrchestratorTestSuite) blobDataset(n int) *models.Dataset {
	rows := testutil.BlobRows(7, n, 0.3, []float64{0, 0}, []float64{6, 6}, []float64{0, 6})
	return suite.factory.CreateNumericDataset(rows)
}

// runToEnd 提交并等待终态
func (suite *OrchestratorTestSuite) runToEnd(req RunRequest) *models.ExecutionLog {
	runID, err := suite.orch.Submit(suite.ctx, req)
	suite.Require().NoError(err)

	ctx, cancel := context.WithTimeout(suite.ctx, 30*time.Second)
	defer cancel()
	entry, err := suite.orch.Wait(ctx, runID)
	suite.Require().NoError(err)
	suite.Require().True(entry.IsTerminal(), "status=%s", entry.Status)
	return entry
}

func (suite *OrchestratorTestSuite) resultOf(entry *models.ExecutionLog) *models.Result {
	suite.Require().NotNil(entry.ResultID, "error=%s %s", entry.ErrorCode, entry.ErrorMessage)
	result, err := suite.orch.GetResult(suite.ctx, *entry.ResultID)
	suite.Require().NoError(err)
	return result
}

func (suite *OrchestratorTestSuite) TestKMeansSucceeds() {
	dataset := suite.blobDataset(100)

	entry := suite.runToEnd(RunRequest{
		DatasetID:  dataset.ID,
		Algorithm:  "kmeans",
		Parameters: map[string]interface{}{"n_clusters": 3, "seed": 42},
	})
	suite.Equal(meta.RunStatusSucceeded, entry.Status)
	suite.Equal(int64(42), entry.Seed)
	suite.NotNil(entry.StartTime)
	suite.NotNil(entry.EndTime)

	result := suite.resultOf(entry)
	suite.Equal(entry.ID, result.ExecutionLogID)
	suite.Len(result.Assignments, 100)
	suite.Len(result.RecordIDs, 100)
	for _, label := range result.Assignments {
		suite.Contains([]int{0, 1, 2}, label)
	}
	silhouette, ok := result.Indexes[meta.IndexSilhouette]
	suite.True(ok)
	suite.GreaterOrEqual(silhouette, -1.0)
	suite.LessOrEqual(silhouette, 1.0)
	suite.Equal(3, result.ClusterCount())

	suite.Eventually(func() bool {
		types := suite.publisher.types(entry.ID)
		return len(types) == 3
	}, 2*time.Second, 10*time.Millisecond)
	suite.Equal([]string{meta.EventRunQueued, meta.EventRunStarted, meta.EventRunSucceeded}, suite.publisher.types(entry.ID))
}

func (suite *OrchestratorTestSuite) TestDeterministicWithSeed() {
	dataset := suite.blobDataset(60)
	cases := map[string]map[string]interface{}{
		"kmeans":            {"n_clusters": 3},
		"mini_batch_kmeans": {"n_clusters": 3, "batch_size": 20},
		"birch":             {"n_clusters": 3},
		"hierarchical":      {"n_clusters": 3, "linkage": meta.LinkageAverage},
		"spectral":          {"n_clusters": 3},
		"mean_shift":        {},
		"dbscan":            {"eps": 1.0},
		"optics":            {"max_eps": 2.0},
		"elbow":             {"k_min": 2, "k_max": 5},
		"silhouette":        {"k_min": 2, "k_max": 5},
		"gap_statistic":     {"k_min": 1, "k_max": 4, "n_refs": 3},
	}
	for _, entry := range registry.Default().List("") {
		suite.Contains(cases, entry.Name, "缺少确定性用例")
	}

	for algorithm, params := range cases {
		params["seed"] = 3
		req := RunRequest{DatasetID: dataset.ID, Algorithm: algorithm, Parameters: params}

		first := suite.resultOf(suite.runToEnd(req))
		second := suite.resultOf(suite.runToEnd(req))
		suite.NotEqual(first.ID, second.ID, algorithm)
		suite.Equal(first.Assignments, second.Assignments, algorithm)
		suite.Equal(first.Indexes, second.Indexes, algorithm)
		suite.Equal(first.Curve, second.Curve, algorithm)
	}
}

func (suite *OrchestratorTestSuite) TestSeedOutOfRangeRejected() {
	dataset := suite.blobDataset(30)

	for _, seed := range []float64{1e19, -1e19} {
		entry := suite.runToEnd(RunRequest{
			DatasetID:  dataset.ID,
			Algorithm:  "kmeans",
			Parameters: map[string]interface{}{"n_clusters": 3, "seed": seed},
		})
		suite.Equal(meta.RunStatusFailed, entry.Status)
		suite.Equal(meta.ErrorCodeInvalidParameter, entry.ErrorCode, entry.ErrorMessage)
		suite.Nil(entry.ResultID)
		suite.GreaterOrEqual(entry.Seed, int64(0), "记录的种子不应是溢出后的值")
	}
}

func (suite *OrchestratorTestSuite) TestSeedRecordedWhenAbsent() {
	dataset := suite.blobDataset(30)
	seed := int64(1234)
	suite.Require().NoError(suite.orch.Stop(suite.ctx))
	suite.orch = suite.newOrchestrator(registry.Default(), Options{Workers: 1, DefaultSeed: &seed})
	suite.orch.Start()

	entry := suite.runToEnd(RunRequest{DatasetID: dataset.ID, Algorithm: "mini_batch_kmeans", Parameters: map[string]interface{}{"n_clusters": 3}})
	suite.Equal(seed, entry.Seed)
	result := suite.resultOf(entry)
	suite.EqualValues(seed, result.Parameters["seed"])
}

func (suite *OrchestratorTestSuite) TestSubmitUnknownDatasetFailsFast() {
	_, err := suite.orch.Submit(suite.ctx, RunRequest{DatasetID: "missing", Algorithm: "kmeans"})
	suite.Require().Error(err)
	suite.True(errors.Is(err, ErrNotFound))
	suite.Equal(meta.ErrorCodeNotFound, CodeOf(err))

	runs, err := suite.logs.List(suite.ctx, 10)
	suite.Require().NoError(err)
	suite.Empty(runs, "数据集不存在时不写执行日志")
}

func (suite *OrchestratorTestSuite) TestEmptyDataset() {
	dataset := suite.factory.CreateNumericDataset([][]float64{{1, 2}})

	entry := suite.runToEnd(RunRequest{DatasetID: dataset.ID, Algorithm: "kmeans", Parameters: map[string]interface{}{"n_clusters": 1}})
	suite.Equal(meta.RunStatusFailed, entry.Status)
	suite.Equal(meta.ErrorCodeEmptyDataset, entry.ErrorCode)
	suite.Nil(entry.ResultID)

	count, err := suite.results.Count(suite.ctx)
	suite.Require().NoError(err)
	suite.Zero(count)
}

func (suite *OrchestratorTestSuite) TestInvalidParameterBeforeFeatures() {
	// 数据集中存在类型不符的取值，参数错误应先被发现
	dataset, attrs := suite.factory.CreateDataset([][2]string{{"x", meta.AttributeTypeNumeric}})
	suite.factory.CreateRecords(dataset.ID, attrs, []map[string]interface{}{{"x": "bad"}, {"x": 1.0}, {"x": 2.0}})

	cases := []RunRequest{
		{DatasetID: dataset.ID, Algorithm: "kmeans"},
		{DatasetID: dataset.ID, Algorithm: "dbscan", Parameters: map[string]interface{}{"eps": -1}},
		{DatasetID: dataset.ID, Algorithm: "hierarchical", Parameters: map[string]interface{}{"n_clusters": 2, "linkage": "median"}},
		{DatasetID: dataset.ID, Algorithm: "kmeans", Parameters: map[string]interface{}{"n_clusters": 2}, Indexes: []string{"dunn"}},
		{DatasetID: dataset.ID, Algorithm: "no_such_algorithm"},
	}
	for _, req := range cases {
		entry := suite.runToEnd(req)
		suite.Equal(meta.RunStatusFailed, entry.Status, req.Algorithm)
		suite.Equal(meta.ErrorCodeInvalidParameter, entry.ErrorCode, entry.ErrorMessage)
	}

	entry := suite.runToEnd(RunRequest{DatasetID: dataset.ID, Algorithm: "kmeans", Parameters: map[string]interface{}{"n_clusters": 2}})
	suite.Equal(meta.ErrorCodeFeatureExtraction, entry.ErrorCode)
}

func (suite *OrchestratorTestSuite) TestTooManyClustersIsAlgorithmFailure() {
	dataset := suite.factory.CreateNumericDataset([][]float64{{0}, {1}, {2}})
	entry := suite.runToEnd(RunRequest{DatasetID: dataset.ID, Algorithm: "kmeans", Parameters: map[string]interface{}{"n_clusters": 5}})
	suite.Equal(meta.RunStatusFailed, entry.Status)
	suite.Equal(meta.ErrorCodeAlgorithmFailure, entry.ErrorCode)
}

func (suite *OrchestratorTestSuite) TestDBSCANAllNoise() {
	rows := [][]float64{{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 4}}
	dataset := suite.factory.CreateNumericDataset(rows)

	entry := suite.runToEnd(RunRequest{
		DatasetID:  dataset.ID,
		Algorithm:  "dbscan",
		Parameters: map[string]interface{}{"eps": 0.01, "min_samples": 10},
	})
	suite.Equal(meta.RunStatusSucceeded, entry.Status)

	result := suite.resultOf(entry)
	suite.Equal([]int{meta.NoiseLabel, meta.NoiseLabel, meta.NoiseLabel, meta.NoiseLabel, meta.NoiseLabel}, []int(result.Assignments))
	_, ok := result.Indexes[meta.IndexSilhouette]
	suite.False(ok, "前置条件不满足时不输出轮廓系数")
	suite.Equal(5, result.NoiseCount())
}

func (suite *OrchestratorTestSuite) TestSilhouetteEstimatorRejectsKOne() {
	dataset := suite.blobDataset(30)

	entry := suite.runToEnd(RunRequest{DatasetID: dataset.ID, Algorithm: "silhouette", Parameters: map[string]interface{}{"k": 1}})
	suite.Equal(meta.RunStatusFailed, entry.Status)
	suite.Equal(meta.ErrorCodeInvalidParameter, entry.ErrorCode)
	suite.Nil(entry.ResultID)

	stored, err := suite.logs.Get(suite.ctx, entry.ID)
	suite.Require().NoError(err)
	suite.Equal(meta.RunStatusFailed, stored.Status)

	results, err := suite.orch.ListResults(suite.ctx, store.ResultFilter{})
	suite.Require().NoError(err)
	suite.Empty(results)
}

func (suite *OrchestratorTestSuite) TestEstimatorRecordsCurve() {
	dataset := suite.blobDataset(90)

	entry := suite.runToEnd(RunRequest{
		DatasetID:  dataset.ID,
		Algorithm:  "silhouette",
		Parameters: map[string]interface{}{"k_min": 2, "k_max": 5, "seed": 3},
	})
	result := suite.resultOf(entry)
	suite.Equal(meta.AlgorithmKindEstimator, result.Kind)
	suite.Len(result.Curve, 4)
	suite.Equal(2, result.Curve[0].K)
	suite.Equal(5, result.Curve[3].K)
	suite.Equal(3.0, result.Indexes[meta.IndexSuggestedK])
	suite.Empty(result.Assignments)
}

func (suite *OrchestratorTestSuite) TestConcurrentRunsOnSameDataset() {
	dataset := suite.blobDataset(60)

	ids := make([]string, 2)
	for i, req := range []RunRequest{
		{DatasetID: dataset.ID, Algorithm: "kmeans", Parameters: map[string]interface{}{"n_clusters": 3}},
		{DatasetID: dataset.ID, Algorithm: "hierarchical", Parameters: map[string]interface{}{"n_clusters": 3}},
	} {
		id, err := suite.orch.Submit(suite.ctx, req)
		suite.Require().NoError(err)
		ids[i] = id
	}

	resultIDs := make(map[string]bool)
	for _, id := range ids {
		entry, err := suite.orch.Wait(suite.ctx, id)
		suite.Require().NoError(err)
		suite.Equal(meta.RunStatusSucceeded, entry.Status)
		result := suite.resultOf(entry)
		resultIDs[result.ID] = true
	}
	suite.Len(resultIDs, 2)

	results, err := suite.orch.ListResults(suite.ctx, store.ResultFilter{DatasetID: dataset.ID})
	suite.Require().NoError(err)
	suite.Len(results, 2)
}

func (suite *OrchestratorTestSuite) TestDeleteResultIdempotent() {
	dataset := suite.blobDataset(30)
	result := suite.resultOf(suite.runToEnd(RunRequest{DatasetID: dataset.ID, Algorithm: "kmeans", Parameters: map[string]interface{}{"n_clusters": 3}}))

	suite.NoError(suite.orch.DeleteResult(suite.ctx, result.ID))
	suite.NoError(suite.orch.DeleteResult(suite.ctx, result.ID))
	_, err := suite.orch.GetResult(suite.ctx, result.ID)
	suite.True(errors.Is(err, models.ErrNotFound))

	_, err = catalog.NewService(suite.testDB.DB).GetDataset(suite.ctx, dataset.ID)
	suite.NoError(err, "删除结果不影响数据集")
}

func (suite *OrchestratorTestSuite) TestResultOutlivesDataset() {
	dataset := suite.blobDataset(30)
	result := suite.resultOf(suite.runToEnd(RunRequest{DatasetID: dataset.ID, Algorithm: "birch", Parameters: map[string]interface{}{"n_clusters": 3}}))

	suite.Require().NoError(catalog.NewService(suite.testDB.DB).DeleteDataset(suite.ctx, dataset.ID))
	got, err := suite.orch.GetResult(suite.ctx, result.ID)
	suite.Require().NoError(err)
	suite.Equal(dataset.ID, got.DatasetID)
}

func (suite *OrchestratorTestSuite) TestDatasetDeletedDuringRun() {
	catalogService := catalog.NewService(suite.testDB.DB)
	var datasetID string

	// 算法执行期间删除数据集
	reg := registry.New()
	suite.Require().NoError(reg.Register(&registry.Entry{
		Name: "dropping",
		Kind: meta.AlgorithmKindClustering,
		Run: func(ctx context.Context, x clustering.Matrix, p registry.Params, seed int64) (*registry.Output, error) {
			if err := catalogService.DeleteDataset(ctx, datasetID); err != nil {
				return nil, err
			}
			return &registry.Output{Labels: make([]int, len(x))}, nil
		},
	}))
	suite.Require().NoError(suite.orch.Stop(suite.ctx))
	suite.orch = suite.newOrchestrator(reg, Options{Workers: 1, RunTimeout: time.Minute})
	suite.orch.Start()

	dataset := suite.blobDataset(10)
	datasetID = dataset.ID

	entry := suite.runToEnd(RunRequest{DatasetID: dataset.ID, Algorithm: "dropping"})
	suite.Equal(meta.RunStatusSucceeded, entry.Status, entry.ErrorMessage)

	_, err := catalogService.GetDataset(suite.ctx, dataset.ID)
	suite.True(errors.Is(err, models.ErrNotFound))

	result := suite.resultOf(entry)
	suite.Equal(dataset.ID, result.DatasetID)
	suite.Len(result.Assignments, 10)
}

func (suite *OrchestratorTestSuite) TestTimeoutAndPanic() {
	reg := registry.New()
	suite.Require().NoError(reg.Register(&registry.Entry{
		Name: "slow",
		Kind: meta.AlgorithmKindClustering,
		Run: func(ctx context.Context, x clustering.Matrix, p registry.Params, seed int64) (*registry.Output, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))
	suite.Require().NoError(reg.Register(&registry.Entry{
		Name: "broken",
		Kind: meta.AlgorithmKindClustering,
		Run: func(ctx context.Context, x clustering.Matrix, p registry.Params, seed int64) (*registry.Output, error) {
			var labels []int
			labels[len(x)] = 1
			return &registry.Output{Labels: labels}, nil
		},
	}))
	suite.Require().NoError(suite.orch.Stop(suite.ctx))
	suite.orch = suite.newOrchestrator(reg, Options{Workers: 1, RunTimeout: 200 * time.Millisecond})
	suite.orch.Start()

	dataset := suite.blobDataset(10)

	entry := suite.runToEnd(RunRequest{DatasetID: dataset.ID, Algorithm: "slow"})
	suite.Equal(meta.RunStatusFailed, entry.Status)
	suite.Equal(meta.ErrorCodeTimeout, entry.ErrorCode)

	entry = suite.runToEnd(RunRequest{DatasetID: dataset.ID, Algorithm: "broken"})
	suite.Equal(meta.RunStatusFailed, entry.Status)
	suite.Equal(meta.ErrorCodeAlgorithmFailure, entry.ErrorCode)
}

func (suite *OrchestratorTestSuite) TestQueuedStateAndRequestKey() {
	// 未启动工作协程，运行停留在排队状态
	suite.Require().NoError(suite.orch.Stop(suite.ctx))
	suite.orch = suite.newOrchestrator(registry.Default(), Options{Workers: 1, QueueSize: 2})

	dataset := suite.blobDataset(20)
	req := RunRequest{DatasetID: dataset.ID, Algorithm: "kmeans", Parameters: map[string]interface{}{"n_clusters": 2}, RequestKey: "k-1"}

	first, err := suite.orch.Submit(suite.ctx, req)
	suite.Require().NoError(err)
	again, err := suite.orch.Submit(suite.ctx, req)
	suite.Require().NoError(err)
	suite.Equal(first, again, "相同幂等键复用运行")

	status, err := suite.orch.GetRunStatus(suite.ctx, first)
	suite.Require().NoError(err)
	suite.Equal(meta.RunStatusQueued, status.Status)
	suite.True(suite.orch.IsActive(first))

	req.RequestKey = ""
	_, err = suite.orch.Submit(suite.ctx, req)
	suite.Require().NoError(err)
	_, err = suite.orch.Submit(suite.ctx, req)
	suite.True(errors.Is(err, ErrQueueFull))

	recent, err := suite.orch.ListRecentRuns(suite.ctx, 10)
	suite.Require().NoError(err)
	suite.Len(recent, 2)

	suite.orch.Start()
	entry, err := suite.orch.Wait(suite.ctx, first)
	suite.Require().NoError(err)
	suite.Equal(meta.RunStatusSucceeded, entry.Status)
	suite.False(suite.orch.IsActive(first))
}

func (suite *OrchestratorTestSuite) TestRecentRunsListEachRunOnce() {
	suite.Require().NoError(suite.orch.Stop(suite.ctx))
	suite.orch = suite.newOrchestrator(registry.Default(), Options{Workers: 1, QueueSize: 2})

	dataset := suite.blobDataset(20)
	runID, err := suite.orch.Submit(suite.ctx, RunRequest{DatasetID: dataset.ID, Algorithm: "kmeans", Parameters: map[string]interface{}{"n_clusters": 2}})
	suite.Require().NoError(err)

	// 执行日志已写入而内存状态仍为排队
	suite.Require().NoError(suite.logs.Begin(suite.ctx, &models.ExecutionLog{ID: runID, DatasetID: dataset.ID, Algorithm: "kmeans"}))

	recent, err := suite.orch.ListRecentRuns(suite.ctx, 10)
	suite.Require().NoError(err)
	suite.Require().Len(recent, 1)
	suite.Equal(runID, recent[0].ID)
	suite.Equal(meta.RunStatusRunning, recent[0].Status)
}

func (suite *OrchestratorTestSuite) TestSubmitAfterStop() {
	dataset := suite.blobDataset(10)
	suite.Require().NoError(suite.orch.Stop(suite.ctx))

	_, err := suite.orch.Submit(suite.ctx, RunRequest{DatasetID: dataset.ID, Algorithm: "kmeans"})
	suite.True(errors.Is(err, ErrStopped))
}

func TestOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}
