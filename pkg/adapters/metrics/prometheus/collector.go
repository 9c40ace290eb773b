package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus
type Collector struct {
	jobsSubmitted   *prometheus.CounterVec
	jobsCompleted   *prometheus.CounterVec
	tasksDispatched *prometheus.CounterVec
	tasksCompleted  *prometheus.CounterVec
	messagesDropped *prometheus.CounterVec

	jobDuration  prometheus.Histogram
	taskDuration *prometheus.HistogramVec

	queueDepth        prometheus.Gauge
	workerPoolIdle    prometheus.Gauge
	workerPoolBusy    prometheus.Gauge
	workerPoolStopped prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector
func NewCollector() *Collector {
	return &Collector{
		jobsSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentify_jobs_submitted_total",
				Help: "Total number of jobs submitted",
			},
			[]string{"status"},
		),
		jobsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentify_jobs_completed_total",
				Help: "Total number of jobs reaching a terminal status",
			},
			[]string{"status"},
		),
		tasksDispatched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentify_tasks_dispatched_total",
				Help: "Total number of task requests sent to agents",
			},
			[]string{"action"},
		),
		tasksCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentify_tasks_completed_total",
				Help: "Total number of task replies received or synthesized",
			},
			[]string{"action", "status"},
		),
		messagesDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentify_messages_dropped_total",
				Help: "Total number of protocol messages dropped",
			},
			[]string{"reason"},
		),
		jobDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentify_job_duration_seconds",
				Help:    "Job execution duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		taskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentify_task_duration_seconds",
				Help:    "Task execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"action"},
		),
		queueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentify_queue_depth",
				Help: "Current depth of the job queue",
			},
		),
		workerPoolIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentify_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentify_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentify_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
	}
}

// RecordJobSubmitted records a job submission
func (c *Collector) RecordJobSubmitted(status string) {
	c.jobsSubmitted.WithLabelValues(status).Inc()
}

// RecordJobCompleted records a job reaching a terminal status
func (c *Collector) RecordJobCompleted(status string, duration time.Duration) {
	c.jobsCompleted.WithLabelValues(status).Inc()
	c.jobDuration.Observe(duration.Seconds())
}

// RecordTaskDispatched records a task request sent to an agent
func (c *Collector) RecordTaskDispatched(action string) {
	c.tasksDispatched.WithLabelValues(action).Inc()
}

// RecordTaskCompleted records a task outcome and its duration
func (c *Collector) RecordTaskCompleted(action, status string, duration time.Duration) {
	c.tasksCompleted.WithLabelValues(action, status).Inc()
	c.taskDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordMessageDropped records a dropped protocol message
func (c *Collector) RecordMessageDropped(reason string) {
	c.messagesDropped.WithLabelValues(reason).Inc()
}

// SetQueueDepth sets the current depth of the job queue
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}
