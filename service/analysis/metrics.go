package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal 按算法与终态统计的运行次数
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clusterhub",
			Name:      "runs_total",
			Help:      "Total number of clustering runs by algorithm and terminal status",
		},
		[]string{"algorithm", "status"},
	)

	// RunDuration 运行耗时
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clusterhub",
			Name:      "run_duration_seconds",
			Help:      "Duration of clustering runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"algorithm"},
	)

	// QueueDepth 等待执行的运行数
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clusterhub",
			Name:      "queue_depth",
			Help:      "Number of runs waiting for a worker",
		},
	)

	// ActiveRuns 正在执行的运行数
	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clusterhub",
			Name:      "active_runs",
			Help:      "Number of runs currently executing",
		},
	)
)
