package metrics

import (
	"errors"
	"net/http"
	"time"

	"deal_staleness_monitor/internal/app"
	"deal_staleness_monitor/internal/domain/deal"
	"deal_staleness_monitor/internal/domain/notification"
	"deal_staleness_monitor/internal/infra/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeSkipped = "skipped"
)

// Metrics holds all staleness metrics on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	Runs                    *prometheus.CounterVec
	RunDuration             *prometheus.HistogramVec
	DealsProcessed          prometheus.Counter
	DealsTransitioned       *prometheus.CounterVec
	DealsFailed             prometheus.Counter
	NotificationsCreated    *prometheus.CounterVec
	NotificationsSuppressed *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staleness_runs_total",
			Help:      "Staleness check invocations by trigger source and outcome",
		}, []string{"source", "outcome"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "staleness_run_duration_seconds",
			Help:      "Duration of completed staleness checks",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"source"}),
		DealsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staleness_deals_processed_total",
			Help:      "Deals evaluated without error",
		}),
		DealsTransitioned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staleness_deals_transitioned_total",
			Help:      "Deal status transitions by previous and new status",
		}, []string{"from", "to"}),
		DealsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staleness_deals_failed_total",
			Help:      "Deals whose evaluation failed",
		}),
		NotificationsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staleness_notifications_created_total",
			Help:      "Notification records created by type",
		}, []string{"type"}),
		NotificationsSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staleness_notifications_suppressed_total",
			Help:      "Notifications skipped by the dedupe window, by type",
		}, []string{"type"}),
	}
}

func (m *Metrics) RunFinished(source string, summary app.RunSummary, duration time.Duration, err error) {
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		m.Runs.WithLabelValues(source, outcomeSkipped).Inc()
		return
	case err != nil:
		m.Runs.WithLabelValues(source, outcomeFailure).Inc()
	default:
		m.Runs.WithLabelValues(source, outcomeSuccess).Inc()
	}
	m.RunDuration.WithLabelValues(source).Observe(duration.Seconds())
	m.DealsProcessed.Add(float64(summary.TotalProcessed))
}

func (m *Metrics) DealTransitioned(from, to deal.Status) {
	m.DealsTransitioned.WithLabelValues(from.String(), to.String()).Inc()
}

func (m *Metrics) DealFailed() {
	m.DealsFailed.Inc()
}

func (m *Metrics) NotificationCreated(t notification.Type) {
	m.NotificationsCreated.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) NotificationSuppressed(t notification.Type) {
	m.NotificationsSuppressed.WithLabelValues(string(t)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

var _ app.Recorder = (*Metrics)(nil)
