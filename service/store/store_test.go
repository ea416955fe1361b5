package store

import (
	"clusterhub-service/service/meta"
	"clusterhub-service/service/models"
	"clusterhub-service/testutil"
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/suite"
)

// StoreTestSuite 结果存储与执行日志测试套件
type StoreTestSuite struct {
	suite.Suite
	testDB  *testutil.TestDB
	results *ResultStore
	logs    *ExecutionLogStore
	ctx     context.Context
}

func (suite *StoreTestSuite) SetupSuite() {
	suite.testDB = testutil.NewTestDB()
	suite.results = NewResultStore(suite.testDB.DB)
	suite.logs = NewExecutionLogStore(suite.testDB.DB)
	suite.ctx = context.Background()
}

func (suite *StoreTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

func (suite *StoreTestSuite) SetupTest() {
	suite.testDB.CleanDB()
}

func (suite *StoreTestSuite) beginLog(algorithm string) *models.ExecutionLog {
	entry := &models.ExecutionLog{DatasetID: "ds-1", Algorithm: algorithm, Request: models.JSONB{"n_clusters": 3}, Seed: 42}
	suite.Require().NoError(suite.logs.Begin(suite.ctx, entry))
	return entry
}

func (suite *StoreTestSuite) TestResultRoundTripPreservesPrecision() {
	entry := suite.beginLog("kmeans")
	result := &models.Result{
		ExecutionLogID: entry.ID,
		DatasetID:      "ds-1",
		Algorithm:      "kmeans",
		Kind:           meta.AlgorithmKindClustering,
		Parameters:     models.JSONB{"n_clusters": 3},
		Assignments:    models.IntArray{0, 1, 2, -1},
		RecordIDs:      pq.StringArray{"r1", "r2", "r3", "r4"},
		FeatureColumns: pq.StringArray{"x", "y"},
		Indexes: models.Float64Map{
			meta.IndexSilhouette: 0.1 + 0.2,
			meta.IndexWCSS:       1.0 / 3.0,
		},
	}

	id, err := suite.results.Put(suite.ctx, result)
	suite.Require().NoError(err)
	suite.NotEmpty(id)

	got, err := suite.results.Get(suite.ctx, id)
	suite.Require().NoError(err)
	suite.Equal(result.Assignments, got.Assignments)
	suite.Equal(result.RecordIDs, got.RecordIDs)
	suite.Equal(0.1+0.2, got.Indexes[meta.IndexSilhouette])
	suite.Equal(1.0/3.0, got.Indexes[meta.IndexWCSS])
	suite.Equal(1, got.NoiseCount())
	suite.Equal(3, got.ClusterCount())
}

func (suite *StoreTestSuite) TestResultCurve() {
	entry := suite.beginLog("gap_statistic")
	stdErr := 0.25
	result := &models.Result{
		ExecutionLogID: entry.ID,
		DatasetID:      "ds-1",
		Algorithm:      "gap_statistic",
		Kind:           meta.AlgorithmKindEstimator,
		Curve:          models.EstimateCurve{{K: 2, Score: 0.5, StdErr: &stdErr}, {K: 3, Score: 0.7}},
		Indexes:        models.Float64Map{meta.IndexSuggestedK: 3},
	}
	id, err := suite.results.Put(suite.ctx, result)
	suite.Require().NoError(err)

	got, err := suite.results.Get(suite.ctx, id)
	suite.Require().NoError(err)
	suite.Require().Len(got.Curve, 2)
	suite.Require().NotNil(got.Curve[0].StdErr)
	suite.Equal(0.25, *got.Curve[0].StdErr)
	suite.Nil(got.Curve[1].StdErr)
}

func (suite *StoreTestSuite) TestGetMissingResult() {
	_, err := suite.results.Get(suite.ctx, "missing")
	suite.ErrorIs(err, models.ErrNotFound)
}

func (suite *StoreTestSuite) TestDeleteIsIdempotent() {
	entry := suite.beginLog("kmeans")
	id, err := suite.results.Put(suite.ctx, &models.Result{ExecutionLogID: entry.ID, DatasetID: "ds-1", Algorithm: "kmeans"})
	suite.Require().NoError(err)

	suite.NoError(suite.results.Delete(suite.ctx, id))
	suite.NoError(suite.results.Delete(suite.ctx, id))
	suite.NoError(suite.results.Delete(suite.ctx, "never-existed"))

	_, err = suite.results.Get(suite.ctx, id)
	suite.ErrorIs(err, models.ErrNotFound)
}

func (suite *StoreTestSuite) TestListResultsFilters() {
	for _, algorithm := range []string{"kmeans", "dbscan", "kmeans"} {
		entry := suite.beginLog(algorithm)
		_, err := suite.results.Put(suite.ctx, &models.Result{ExecutionLogID: entry.ID, DatasetID: "ds-1", Algorithm: algorithm})
		suite.Require().NoError(err)
	}

	all, err := suite.results.List(suite.ctx, ResultFilter{})
	suite.Require().NoError(err)
	suite.Len(all, 3)

	kmeans, err := suite.results.List(suite.ctx, ResultFilter{Algorithm: "kmeans"})
	suite.Require().NoError(err)
	suite.Len(kmeans, 2)

	count, err := suite.results.Count(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(int64(3), count)
}

func (suite *StoreTestSuite) TestFinishOnlyOnce() {
	entry := suite.beginLog("kmeans")
	suite.Equal(meta.RunStatusRunning, entry.Status)
	suite.NotNil(entry.StartTime)

	err := suite.logs.Finish(suite.ctx, entry.ID, Outcome{Status: meta.RunStatusFailed, ErrorCode: meta.ErrorCodeTimeout, ErrorMessage: "超时"})
	suite.Require().NoError(err)

	err = suite.logs.Finish(suite.ctx, entry.ID, Outcome{Status: meta.RunStatusSucceeded})
	suite.ErrorIs(err, ErrAlreadyFinished)

	got, err := suite.logs.Get(suite.ctx, entry.ID)
	suite.Require().NoError(err)
	suite.Equal(meta.RunStatusFailed, got.Status)
	suite.Equal(meta.ErrorCodeTimeout, got.ErrorCode)
	suite.NotNil(got.EndTime)
	suite.True(got.IsTerminal())
}

func (suite *StoreTestSuite) TestFinishValidation() {
	err := suite.logs.Finish(suite.ctx, "missing", Outcome{Status: meta.RunStatusSucceeded})
	suite.ErrorIs(err, models.ErrNotFound)

	entry := suite.beginLog("kmeans")
	err = suite.logs.Finish(suite.ctx, entry.ID, Outcome{Status: meta.RunStatusQueued})
	suite.Error(err)
}

func (suite *StoreTestSuite) TestListNewestFirst() {
	base := time.Now().Add(-time.Hour)
	for i, algorithm := range []string{"first", "second", "third"} {
		entry := &models.ExecutionLog{DatasetID: "ds-1", Algorithm: algorithm, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		suite.Require().NoError(suite.logs.Begin(suite.ctx, entry))
	}

	entries, err := suite.logs.List(suite.ctx, 2)
	suite.Require().NoError(err)
	suite.Require().Len(entries, 2)
	suite.Equal("third", entries[0].Algorithm)
	suite.Equal("second", entries[1].Algorithm)
}

func (suite *StoreTestSuite) TestListStale() {
	old := suite.beginLog("old")
	suite.testDB.DB.Model(&models.ExecutionLog{}).Where("id = ?", old.ID).Update("start_time", time.Now().Add(-time.Hour))
	suite.beginLog("fresh")
	done := suite.beginLog("done")
	suite.testDB.DB.Model(&models.ExecutionLog{}).Where("id = ?", done.ID).Update("start_time", time.Now().Add(-time.Hour))
	suite.Require().NoError(suite.logs.Finish(suite.ctx, done.ID, Outcome{Status: meta.RunStatusSucceeded}))

	stale, err := suite.logs.ListStale(suite.ctx, time.Now().Add(-30*time.Minute))
	suite.Require().NoError(err)
	suite.Require().Len(stale, 1)
	suite.Equal(old.ID, stale[0].ID)

	counts, err := suite.logs.CountByStatus(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(int64(2), counts[meta.RunStatusRunning])
	suite.Equal(int64(1), counts[meta.RunStatusSucceeded])
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
