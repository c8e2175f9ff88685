// Package obs wires the system's Prometheus collectors and serves them,
// together with health/readiness probes, over a small gin router.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the system exposes (§6
// Observability: requests/tasks counters, in-progress/dead-URL gauges,
// task/digest duration histograms).
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	DuplicateRequestsTotal *prometheus.CounterVec
	TasksTotal      *prometheus.CounterVec
	TasksInProgress *prometheus.GaugeVec
	DeadURLsPerCompany *prometheus.GaugeVec
	TaskDuration    *prometheus.HistogramVec
	DigestDuration  prometheus.Histogram
	NotificationDeliveriesTotal *prometheus.CounterVec
}

// New constructs a Metrics instance and registers every collector on
// a dedicated registry (never the global default, so tests can build
// isolated instances).
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_requests_total",
				Help: "Total outbound fetch requests by source kind and status",
			},
			[]string{"source_kind", "status"},
		),
		DuplicateRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_duplicate_requests_total",
				Help: "Total fetch requests skipped as duplicates within the same run",
			},
			[]string{"source_kind"},
		),
		TasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_tasks_total",
				Help: "Total asynq tasks processed by queue and status",
			},
			[]string{"queue", "status"},
		),
		TasksInProgress: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentinel_tasks_in_progress",
				Help: "Number of tasks currently executing by queue",
			},
			[]string{"queue"},
		),
		DeadURLsPerCompany: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentinel_dead_urls_per_company",
				Help: "Number of disabled (hard-failed) source URLs per company",
			},
			[]string{"company_id"},
		),
		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_task_duration_seconds",
				Help:    "Task execution duration in seconds by queue",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
		DigestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sentinel_digest_duration_seconds",
				Help:    "Digest render-and-deliver duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		NotificationDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_notification_deliveries_total",
				Help: "Total notification delivery attempts by channel kind and status",
			},
			[]string{"channel_kind", "status"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.DuplicateRequestsTotal,
		m.TasksTotal,
		m.TasksInProgress,
		m.DeadURLsPerCompany,
		m.TaskDuration,
		m.DigestDuration,
		m.NotificationDeliveriesTotal,
	)

	return m
}

// Pinger is satisfied by anything the health endpoint should probe
// (the store and cache clients).
type Pinger interface {
	Ping() error
}

// HealthStatus is the JSON body returned by /health and /health/ready.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// CheckAll pings every dependency and reports per-dependency status.
func CheckAll(deps map[string]Pinger) HealthStatus {
	checks := make(map[string]string, len(deps))
	overall := "ok"
	for name, dep := range deps {
		if err := dep.Ping(); err != nil {
			checks[name] = err.Error()
			overall = "degraded"
		} else {
			checks[name] = "ok"
		}
	}
	return HealthStatus{Status: overall, Checks: checks}
}

// StatusCode maps a HealthStatus to the HTTP status the probe should return.
func (h HealthStatus) StatusCode() int {
	if h.Status == "ok" {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
