package housekeeping

import (
	"clusterhub-service/service/config"
	"clusterhub-service/service/distributed_lock"
	"clusterhub-service/service/meta"
	"clusterhub-service/service/models"
	"clusterhub-service/service/store"
	"clusterhub-service/testutil"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type fakeTracker map[string]bool

func (f fakeTracker) IsActive(runID string) bool { return f[runID] }

// ReaperTestSuite 超时运行清理测试套件
type ReaperTestSuite struct {
	suite.Suite
	testDB *testutil.TestDB
	logs   *store.ExecutionLogStore
	ctx    context.Context
}

func (suite *ReaperTestSuite) SetupSuite() {
	suite.testDB = testutil.NewTestDB()
	suite.logs = store.NewExecutionLogStore(suite.testDB.DB)
	suite.ctx = context.Background()
}

func (suite *ReaperTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

func (suite *ReaperTestSuite) SetupTest() {
	suite.testDB.CleanDB()
}

// begin 写入一条 running 日志并把开始时间改到 age 之前
func (suite *ReaperTestSuite) begin(age time.Duration) string {
	entry := &models.ExecutionLog{DatasetID: "ds", Algorithm: "kmeans"}
	suite.Require().NoError(suite.logs.Begin(suite.ctx, entry))
	started := time.Now().Add(-age)
	suite.Require().NoError(suite.testDB.DB.Model(&models.ExecutionLog{}).
		Where("id = ?", entry.ID).Update("start_time", started).Error)
	return entry.ID
}

func (suite *ReaperTestSuite) TestSweepFinishesAbandonedRuns() {
	abandoned := suite.begin(2 * time.Hour)
	active := suite.begin(2 * time.Hour)
	recent := suite.begin(time.Minute)

	reaper := NewStaleRunReaper(suite.logs, fakeTracker{active: true}, 10*time.Minute, config.HousekeepingConfig{Grace: time.Minute})
	reaped, err := reaper.Sweep(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(1, reaped)

	entry, err := suite.logs.Get(suite.ctx, abandoned)
	suite.Require().NoError(err)
	suite.Equal(meta.RunStatusFailed, entry.Status)
	suite.Equal(meta.ErrorCodeTimeout, entry.ErrorCode)

	for _, id := range []string{active, recent} {
		entry, err := suite.logs.Get(suite.ctx, id)
		suite.Require().NoError(err)
		suite.Equal(meta.RunStatusRunning, entry.Status)
	}

	reaped, err = reaper.Sweep(suite.ctx)
	suite.Require().NoError(err)
	suite.Zero(reaped, "已结束的运行不会再次处理")
}

func (suite *ReaperTestSuite) TestStartRejectsInvalidCron() {
	reaper := NewStaleRunReaper(suite.logs, nil, time.Minute, config.HousekeepingConfig{Cron: "not a cron"})
	suite.Error(reaper.Start())
}

func (suite *ReaperTestSuite) TestStartRunsImmediately() {
	abandoned := suite.begin(time.Hour)

	reaper := NewStaleRunReaper(suite.logs, nil, time.Minute, config.HousekeepingConfig{Cron: "@every 1h", Grace: time.Second})
	reaper.SetDistributedLock(distributed_lock.NewLocalLock())
	suite.Require().NoError(reaper.Start())
	defer reaper.Stop()

	suite.Eventually(func() bool {
		entry, err := suite.logs.Get(suite.ctx, abandoned)
		return err == nil && entry.Status == meta.RunStatusFailed
	}, 2*time.Second, 20*time.Millisecond)
}

func TestReaperTestSuite(t *testing.T) {
	suite.Run(t, new(ReaperTestSuite))
}
