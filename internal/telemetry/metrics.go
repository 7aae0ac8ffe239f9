package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики оркестратора.
var (
	PlansSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbflow_plans_submitted_total",
		Help: "Total number of submitted plans",
	}, []string{"kind"})

	PlansFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbflow_plans_finished_total",
		Help: "Total number of finished plans",
	}, []string{"kind", "status"})

	PlansActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dbflow_plans_active",
		Help: "Number of plans currently being executed",
	})

	PlanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dbflow_plan_duration_seconds",
		Help:    "Plan wall-clock duration",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"kind"})

	TasksDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbflow_tasks_dispatched_total",
		Help: "Total number of task executions handed to the pool",
	}, []string{"worker"})

	TaskRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbflow_task_retries_total",
		Help: "Total number of scheduled task retries",
	}, []string{"worker"})

	TaskFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbflow_task_failures_total",
		Help: "Total number of terminally failed tasks by reason",
	}, []string{"worker", "reason"})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dbflow_task_duration_seconds",
		Help:    "Duration of a single task execution attempt",
		Buckets: prometheus.DefBuckets,
	}, []string{"worker", "outcome"})

	ReadyQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dbflow_ready_queue_depth",
		Help: "Number of ready tasks waiting for a pool slot",
	})

	GateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbflow_gate_rejections_total",
		Help: "Total number of tasks failed by the health gate",
	}, []string{"worker"})

	WorkerHealth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dbflow_worker_health",
		Help: "Worker health: 0 = healthy, 1 = degraded, 2 = critical",
	}, []string{"worker"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbflow_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "status"})

	SchedulesFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbflow_schedules_fired_total",
		Help: "Total number of operation requests emitted by schedules",
	}, []string{"schedule"})
)

// HealthValue переводит здоровье в значение метрики WorkerHealth.
func HealthValue(health string) float64 {
	switch health {
	case "HEALTHY":
		return 0
	case "DEGRADED":
		return 1
	default:
		return 2
	}
}
