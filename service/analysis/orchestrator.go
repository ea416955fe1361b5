/*
 * @module service/analysis/orchestrator
 * @description 聚类任务编排器：接收运行请求，经有界工作池执行算法与有效性评估，持久化结果与执行日志
 * @architecture 领域服务 - 有界队列 + 固定数量工作协程
 * @documentReference DESIGN.md
 * @stateFlow queued(内存) -> running(写入执行日志) -> succeeded(写入结果) / failed(记录错误码)
 * @rules 数据集不存在时提交即失败且不写日志；每个运行只写入一次终态；
 *        参数校验先于特征物化；相同幂等键的请求在活跃期间不重复执行；
 *        超时以 TIMEOUT 结束，算法 panic 以 ALGORITHM_FAILURE 结束
 * @dependencies github.com/google/uuid, github.com/lib/pq, github.com/prometheus/client_golang
 * @refs service/registry, service/validity, service/store, service/notify, service/distributed_lock
 */

package analysis

import (
	"clusterhub-service/service/config"
	"clusterhub-service/service/distributed_lock"
	"clusterhub-service/service/meta"
	"clusterhub-service/service/models"
	"clusterhub-service/service/notify"
	"clusterhub-service/service/registry"
	"clusterhub-service/service/store"
	"clusterhub-service/service/validity"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	eventBufferSize = 256
	publishTimeout  = 5 * time.Second
	persistTimeout  = 30 * time.Second
)

// Options 编排器配置
type Options struct {
	Workers     int
	QueueSize   int
	RunTimeout  time.Duration
	DefaultSeed *int64
	LockTTL     time.Duration
}

// OptionsFromConfig 由应用配置生成编排器配置
func OptionsFromConfig(cfg config.AnalysisConfig) Options {
	return Options{
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
		RunTimeout:  cfg.RunTimeout,
		DefaultSeed: cfg.DefaultSeed,
		LockTTL:     cfg.LockTTL,
	}
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = config.DefaultWorkers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = config.DefaultQueueSize
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = config.DefaultRunTimeout
	}
	if o.LockTTL <= 0 {
		o.LockTTL = config.DefaultLockTTL
	}
	return o
}

// job 内存中的运行，入队到结束期间存在
type job struct {
	id        string
	req       RunRequest
	seed      int64
	submitted time.Time
	started   time.Time
	status    string // 受 Orchestrator.mu 保护
	done      chan struct{}
}

func (j *job) lockKey() string {
	if j.req.RequestKey != "" {
		return "request:" + j.req.RequestKey
	}
	return "run:" + j.id
}

// queuedEntry 排队中的运行还没有执行日志，返回内存视图
func (j *job) queuedEntry() *models.ExecutionLog {
	return &models.ExecutionLog{
		ID:        j.id,
		DatasetID: j.req.DatasetID,
		Algorithm: j.req.Algorithm,
		Request:   j.req.snapshot(j.seed),
		Seed:      j.seed,
		Status:    meta.RunStatusQueued,
		CreatedAt: j.submitted,
	}
}

// Orchestrator 任务编排器
type Orchestrator struct {
	catalog   DatasetSource
	registry  *registry.Registry
	results   ResultRepository
	logs      RunLog
	locks     *distributed_lock.LockExecutor
	publisher notify.Publisher
	opts      Options

	queue  chan *job
	events chan notify.RunEvent

	mu      sync.Mutex
	jobs    map[string]*job
	byKey   map[string]string
	rng     *rand.Rand
	started bool
	stopped bool

	ctx        context.Context
	cancel     context.CancelFunc
	stopCh     chan struct{}
	wg         sync.WaitGroup
	eventsDone chan struct{}
}

// NewOrchestrator 创建编排器，lock 为空时使用进程内锁，publisher 为空时不发布事件
func NewOrchestrator(catalog DatasetSource, reg *registry.Registry, results ResultRepository, logs RunLog,
	lock distributed_lock.DistributedLock, publisher notify.Publisher, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	if lock == nil {
		lock = distributed_lock.NewLocalLock()
	}
	if publisher == nil {
		publisher = notify.Noop{}
	}
	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		catalog:    catalog,
		registry:   reg,
		results:    results,
		logs:       logs,
		locks:      distributed_lock.NewLockExecutor(lock),
		publisher:  publisher,
		opts:       opts,
		queue:      make(chan *job, opts.QueueSize),
		events:     make(chan notify.RunEvent, eventBufferSize),
		jobs:       make(map[string]*job),
		byKey:      make(map[string]string),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:        ctx,
		cancel:     cancel,
		stopCh:     make(chan struct{}),
		eventsDone: make(chan struct{}),
	}
	go o.dispatchEvents()
	return o
}

// Start 启动工作协程，重复调用无效
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started || o.stopped {
		return
	}
	o.started = true
	for i := 0; i < o.opts.Workers; i++ {
		o.wg.Add(1)
		go o.worker(i)
	}
	slog.Info("分析编排器已启动", "workers", o.opts.Workers, "queue_size", o.opts.QueueSize, "run_timeout", o.opts.RunTimeout)
}

// Stop 停止接收请求并等待执行中的运行结束；ctx 到期后中断仍在执行的算法。
// 队列中尚未开始的运行被丢弃，它们没有执行日志
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	close(o.stopCh)
	o.mu.Unlock()

	workersDone := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(workersDone)
	}()

	var err error
	select {
	case <-workersDone:
	case <-ctx.Done():
		slog.Warn("等待运行结束超时，中断执行中的算法")
		o.cancel()
		<-workersDone
		err = ctx.Err()
	}
	o.cancel()

	dropped := o.drainQueue()
	close(o.events)
	<-o.eventsDone
	slog.Info("分析编排器已停止", "dropped_queued_runs", dropped)
	return err
}

// Submit 提交运行请求并返回运行ID。
// 数据集不存在时直接返回 NOT_FOUND，不产生执行日志；队列已满返回 ErrQueueFull
func (o *Orchestrator) Submit(ctx context.Context, req RunRequest) (string, error) {
	if req.DatasetID == "" {
		return "", newRunError(meta.ErrorCodeInvalidParameter, fmt.Errorf("%w: dataset_id 不能为空", ErrInvalidParameter))
	}
	if req.Algorithm == "" {
		return "", newRunError(meta.ErrorCodeInvalidParameter, fmt.Errorf("%w: algorithm 不能为空", ErrInvalidParameter))
	}
	if _, err := o.catalog.GetDataset(ctx, req.DatasetID); err != nil {
		return "", Classify(err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return "", ErrStopped
	}
	if req.RequestKey != "" {
		if id, ok := o.byKey[req.RequestKey]; ok {
			slog.Info("相同幂等键的运行仍在进行，复用运行ID", "run_id", id, "request_key", req.RequestKey)
			return id, nil
		}
	}

	j := &job{
		id:        uuid.New().String(),
		req:       req,
		seed:      resolveSeed(req.Parameters, o.opts.DefaultSeed, o.rng),
		submitted: time.Now(),
		status:    meta.RunStatusQueued,
		done:      make(chan struct{}),
	}
	select {
	case o.queue <- j:
	default:
		slog.Warn("分析任务队列已满", "dataset_id", req.DatasetID, "algorithm", req.Algorithm)
		return "", ErrQueueFull
	}
	o.jobs[j.id] = j
	if req.RequestKey != "" {
		o.byKey[req.RequestKey] = j.id
	}
	QueueDepth.Inc()
	o.emit(j, meta.EventRunQueued, meta.RunStatusQueued, nil, "")
	slog.Info("运行已入队", "run_id", j.id, "dataset_id", req.DatasetID, "algorithm", req.Algorithm, "seed", j.seed)
	return j.id, nil
}

// GetRunStatus 查询运行状态，排队中的运行返回内存视图
func (o *Orchestrator) GetRunStatus(ctx context.Context, runID string) (*models.ExecutionLog, error) {
	o.mu.Lock()
	j, ok := o.jobs[runID]
	queued := ok && j.status == meta.RunStatusQueued
	o.mu.Unlock()
	if queued {
		return j.queuedEntry(), nil
	}

	entry, err := o.logs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Wait 等待运行到达终态
func (o *Orchestrator) Wait(ctx context.Context, runID string) (*models.ExecutionLog, error) {
	o.mu.Lock()
	j, ok := o.jobs[runID]
	o.mu.Unlock()
	if ok {
		select {
		case <-j.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return o.GetRunStatus(ctx, runID)
}

// IsActive 运行是否仍由本进程排队或执行
func (o *Orchestrator) IsActive(runID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.jobs[runID]
	return ok
}

// ListRecentRuns 最近的运行，排队中的在前，其余按创建时间倒序
func (o *Orchestrator) ListRecentRuns(ctx context.Context, limit int) ([]models.ExecutionLog, error) {
	o.mu.Lock()
	queued := make([]models.ExecutionLog, 0)
	for _, j := range o.jobs {
		if j.status == meta.RunStatusQueued {
			queued = append(queued, *j.queuedEntry())
		}
	}
	o.mu.Unlock()
	sort.Slice(queued, func(a, b int) bool {
		return queued[a].CreatedAt.After(queued[b].CreatedAt)
	})

	logged, err := o.logs.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	// 快照之后开始执行的运行已有执行日志，以日志为准
	seen := make(map[string]bool, len(logged))
	for _, entry := range logged {
		seen[entry.ID] = true
	}
	runs := make([]models.ExecutionLog, 0, len(queued)+len(logged))
	for _, entry := range queued {
		if !seen[entry.ID] {
			runs = append(runs, entry)
		}
	}
	runs = append(runs, logged...)
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetResult 获取结果
func (o *Orchestrator) GetResult(ctx context.Context, resultID string) (*models.Result, error) {
	return o.results.Get(ctx, resultID)
}

// ListResults 列出结果
func (o *Orchestrator) ListResults(ctx context.Context, filter store.ResultFilter) ([]models.Result, error) {
	return o.results.List(ctx, filter)
}

// DeleteResult 删除结果，重复删除不报错
func (o *Orchestrator) DeleteResult(ctx context.Context, resultID string) error {
	return o.results.Delete(ctx, resultID)
}

func (o *Orchestrator) worker(n int) {
	defer o.wg.Done()
	slog.Debug("分析工作协程启动", "worker", n)
	for {
		select {
		case <-o.stopCh:
			slog.Debug("分析工作协程退出", "worker", n)
			return
		case j := <-o.queue:
			QueueDepth.Dec()
			o.execute(j)
		}
	}
}

// execute 在运行锁保护下执行；未取得锁的运行同样留下失败的执行日志
func (o *Orchestrator) execute(j *job) {
	defer o.release(j)

	ran := false
	refresh := o.opts.LockTTL / 3
	err := o.locks.ExecuteWithLockAndRefresh(o.ctx, j.lockKey(), o.opts.LockTTL, refresh, func() error {
		ran = true
		o.run(j)
		return nil
	})
	if err == nil || ran {
		return
	}

	slog.Warn("未取得运行锁", "run_id", j.id, "lock_key", j.lockKey(), "error", err)
	if !o.begin(j) {
		return
	}
	msg := "运行锁不可用"
	if errors.Is(err, distributed_lock.ErrLockHeld) {
		msg = "相同请求正在其他实例执行"
	}
	o.finish(j, nil, newRunError(meta.ErrorCodeInternal, fmt.Errorf("%s: %w", msg, err)))
}

func (o *Orchestrator) run(j *job) {
	if !o.begin(j) {
		return
	}
	ActiveRuns.Inc()
	defer ActiveRuns.Dec()

	result, runErr := o.compute(j)
	o.finish(j, result, runErr)
}

// begin 写入 running 执行日志，失败时运行直接放弃
func (o *Orchestrator) begin(j *job) bool {
	ctx, cancel := o.persistContext()
	defer cancel()

	entry := &models.ExecutionLog{
		ID:        j.id,
		DatasetID: j.req.DatasetID,
		Algorithm: j.req.Algorithm,
		Request:   j.req.snapshot(j.seed),
		Seed:      j.seed,
	}
	if err := o.logs.Begin(ctx, entry); err != nil {
		slog.Error("写入执行日志失败，放弃运行", "run_id", j.id, "error", err)
		RunsTotal.WithLabelValues(j.req.Algorithm, meta.RunStatusFailed).Inc()
		return false
	}
	j.started = *entry.StartTime
	o.setStatus(j, meta.RunStatusRunning)
	o.emit(j, meta.EventRunStarted, meta.RunStatusRunning, nil, "")
	slog.Info("开始执行聚类分析", "run_id", j.id, "dataset_id", j.req.DatasetID, "algorithm", j.req.Algorithm)
	return true
}

// finish 保存结果并写入终态。终态写入失败时撤回已保存的结果
func (o *Orchestrator) finish(j *job, result *models.Result, runErr *RunError) {
	ctx, cancel := o.persistContext()
	defer cancel()

	outcome := store.Outcome{Status: meta.RunStatusSucceeded}
	if runErr == nil {
		result.ExecutionLogID = j.id
		id, err := o.results.Put(ctx, result)
		if err != nil {
			runErr = newRunError(meta.ErrorCodeInternal, err)
		} else {
			outcome.ResultID = &id
		}
	}
	if runErr != nil {
		outcome.Status = meta.RunStatusFailed
		outcome.ErrorCode = runErr.Code
		outcome.ErrorMessage = runErr.Message
	}
	outcome.EndTime = time.Now()

	if err := o.logs.Finish(ctx, j.id, outcome); err != nil {
		slog.Error("写入运行终态失败", "run_id", j.id, "status", outcome.Status, "error", err)
		if outcome.ResultID != nil {
			if delErr := o.results.Delete(ctx, *outcome.ResultID); delErr != nil {
				slog.Error("撤回结果失败", "run_id", j.id, "result_id", *outcome.ResultID, "error", delErr)
			}
		}
		RunsTotal.WithLabelValues(j.req.Algorithm, meta.RunStatusFailed).Inc()
		return
	}

	RunDuration.WithLabelValues(j.req.Algorithm).Observe(outcome.EndTime.Sub(j.started).Seconds())
	RunsTotal.WithLabelValues(j.req.Algorithm, outcome.Status).Inc()
	o.setStatus(j, outcome.Status)

	if runErr != nil {
		o.emit(j, meta.EventRunFailed, outcome.Status, runErr, "")
		slog.Warn("聚类分析失败", "run_id", j.id, "algorithm", j.req.Algorithm, "error_code", runErr.Code, "error", runErr.Message)
		return
	}
	o.emit(j, meta.EventRunSucceeded, outcome.Status, nil, *outcome.ResultID)
	slog.Info("聚类分析完成", "run_id", j.id, "algorithm", j.req.Algorithm, "result_id", *outcome.ResultID)
}

// compute 在超时控制下执行分析，并恢复算法中的 panic
func (o *Orchestrator) compute(j *job) (*models.Result, *RunError) {
	timeout := o.timeoutFor(j.req)
	ctx, cancel := context.WithTimeout(o.ctx, timeout)
	defer cancel()

	type computed struct {
		result *models.Result
		err    error
	}
	ch := make(chan computed, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("算法执行发生panic", "run_id", j.id, "algorithm", j.req.Algorithm, "panic", r)
				ch <- computed{err: fmt.Errorf("%w: %v", ErrAlgorithmFailure, r)}
			}
		}()
		result, err := o.analyze(ctx, j)
		ch <- computed{result: result, err: err}
	}()

	select {
	case c := <-ch:
		if c.err == nil {
			return c.result, nil
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError(timeout)
		}
		return nil, Classify(c.err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError(timeout)
		}
		return nil, newRunError(meta.ErrorCodeInternal, fmt.Errorf("服务停止，运行被中断: %w", ctx.Err()))
	}
}

func timeoutError(timeout time.Duration) *RunError {
	return newRunError(meta.ErrorCodeTimeout, fmt.Errorf("%w: 超过 %s", ErrTimeout, timeout))
}

func (o *Orchestrator) timeoutFor(req RunRequest) time.Duration {
	timeout := o.opts.RunTimeout
	if req.TimeoutSeconds > 0 {
		if t := time.Duration(req.TimeoutSeconds) * time.Second; t < timeout {
			timeout = t
		}
	}
	return timeout
}

// analyze 校验参数、物化特征矩阵、执行算法并计算指标
func (o *Orchestrator) analyze(ctx context.Context, j *job) (*models.Result, error) {
	req := j.req
	entry, err := o.registry.Describe(req.Algorithm)
	if err != nil {
		return nil, err
	}
	params, err := o.registry.Validate(req.Algorithm, req.Parameters)
	if err != nil {
		return nil, err
	}
	if err := validity.ValidateIndexNames(req.Indexes); err != nil {
		return nil, err
	}
	if err := req.Features.Validate(); err != nil {
		return nil, err
	}
	if !params.Has("seed") {
		params["seed"] = int(j.seed)
	}
	seed := int64(params.Int("seed"))

	if _, err := o.catalog.GetDataset(ctx, req.DatasetID); err != nil {
		return nil, err
	}
	attributes, err := o.catalog.ListAttributes(ctx, req.DatasetID)
	if err != nil {
		return nil, err
	}
	records, err := o.catalog.ListRecords(ctx, req.DatasetID, 0)
	if err != nil {
		return nil, err
	}
	fm, err := BuildFeatureMatrix(attributes, records, req.Features)
	if err != nil {
		return nil, err
	}
	if fm.Skipped > 0 {
		slog.Info("部分记录缺少取值已跳过", "run_id", j.id, "skipped", fm.Skipped, "usable", len(fm.X))
	}

	out, err := o.registry.Run(ctx, req.Algorithm, fm.X, params, seed)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrAlgorithmFailure, req.Algorithm, err)
	}

	result := &models.Result{
		DatasetID:      req.DatasetID,
		Algorithm:      req.Algorithm,
		Kind:           entry.Kind,
		Parameters:     models.JSONB(params),
		RecordIDs:      pq.StringArray(fm.RecordIDs),
		FeatureColumns: pq.StringArray(fm.Columns),
	}
	if entry.Kind == meta.AlgorithmKindEstimator {
		curve := make(models.EstimateCurve, len(out.Curve))
		for i, p := range out.Curve {
			curve[i] = models.EstimatePoint{K: p.K, Score: p.Score, StdErr: p.StdErr}
		}
		result.Curve = curve
		result.Indexes = models.Float64Map{}
		if out.SuggestedK > 0 {
			result.Indexes[meta.IndexSuggestedK] = float64(out.SuggestedK)
		}
		return result, nil
	}

	if len(out.Labels) != len(fm.X) {
		return nil, fmt.Errorf("%w: 标签数 %d 与样本数 %d 不一致", ErrAlgorithmFailure, len(out.Labels), len(fm.X))
	}
	result.Assignments = models.IntArray(out.Labels)
	result.Indexes = models.Float64Map(validity.Evaluate(fm.X, out.Labels, req.Indexes))
	return result, nil
}

func (o *Orchestrator) setStatus(j *job, status string) {
	o.mu.Lock()
	j.status = status
	o.mu.Unlock()
}

// release 运行结束后从内存中移除并唤醒等待者
func (o *Orchestrator) release(j *job) {
	o.mu.Lock()
	delete(o.jobs, j.id)
	if j.req.RequestKey != "" && o.byKey[j.req.RequestKey] == j.id {
		delete(o.byKey, j.req.RequestKey)
	}
	o.mu.Unlock()
	close(j.done)
}

func (o *Orchestrator) drainQueue() int {
	dropped := 0
	for {
		select {
		case j := <-o.queue:
			QueueDepth.Dec()
			o.release(j)
			dropped++
		default:
			return dropped
		}
	}
}

func (o *Orchestrator) persistContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(o.ctx), persistTimeout)
}

// emit 事件按产生顺序异步发布，缓冲区满时丢弃
func (o *Orchestrator) emit(j *job, eventType, status string, runErr *RunError, resultID string) {
	event := notify.RunEvent{
		Type:      eventType,
		RunID:     j.id,
		DatasetID: j.req.DatasetID,
		Algorithm: j.req.Algorithm,
		Status:    status,
		ResultID:  resultID,
		Timestamp: time.Now(),
	}
	if runErr != nil {
		event.ErrorCode = runErr.Code
		event.ErrorMessage = runErr.Message
	}
	select {
	case o.events <- event:
	default:
		slog.Warn("事件缓冲区已满，丢弃事件", "run_id", j.id, "type", eventType)
	}
}

func (o *Orchestrator) dispatchEvents() {
	defer close(o.eventsDone)
	for event := range o.events {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := o.publisher.Publish(ctx, event); err != nil {
			slog.Warn("发布运行事件失败", "run_id", event.RunID, "type", event.Type, "error", err)
		}
		cancel()
	}
}
