package scheduler

import (
	"github.com/LeeDigitalWorks/ctxrelay/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TasksScheduledTotal tracks tasks accepted by a scheduler
	TasksScheduledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ctxrelay",
		Subsystem: "scheduler",
		Name:      "tasks_scheduled_total",
		Help:      "Total number of tasks accepted",
	}, []string{"scheduler"})

	// TasksRejectedTotal tracks tasks refused at submission
	TasksRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ctxrelay",
		Subsystem: "scheduler",
		Name:      "tasks_rejected_total",
		Help:      "Total number of tasks rejected at submission",
	}, []string{"scheduler", "reason"}) // reason: full, stopped, not_started, rate_limited

	// TasksProcessedTotal tracks finished tasks by outcome
	TasksProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ctxrelay",
		Subsystem: "scheduler",
		Name:      "tasks_processed_total",
		Help:      "Total number of tasks processed",
	}, []string{"scheduler", "status"}) // status: completed, failed, panicked

	// TaskProcessingDuration tracks task run time
	TaskProcessingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ctxrelay",
		Subsystem: "scheduler",
		Name:      "task_processing_duration_seconds",
		Help:      "Time spent running tasks",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"scheduler"})

	// QueueDepth tracks tasks waiting for a worker
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ctxrelay",
		Subsystem: "scheduler",
		Name:      "queue_depth",
		Help:      "Number of tasks waiting for a worker",
	}, []string{"scheduler"})

	// WorkerActive tracks workers currently running a task
	WorkerActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ctxrelay",
		Subsystem: "scheduler",
		Name:      "workers_active",
		Help:      "Number of workers running a task",
	}, []string{"scheduler"})
)

func init() {
	debug.Registry().MustRegister(
		TasksScheduledTotal,
		TasksRejectedTotal,
		TasksProcessedTotal,
		TaskProcessingDuration,
		QueueDepth,
		WorkerActive,
	)
}
