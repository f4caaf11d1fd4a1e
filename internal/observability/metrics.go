package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "taluka_alerts"

// Metrics holds the Prometheus counters, histograms, and gauges for the alert service.
type Metrics struct {
	// Queue metrics.
	AlertsEnqueued *prometheus.CounterVec // labels: category
	AlertsFinished *prometheus.CounterVec // labels: outcome={delivered,no_recipients,abandoned}
	PendingAlerts  prometheus.Gauge

	// Delivery metrics.
	Dispatches       *prometheus.CounterVec // labels: result={delivered,failed,pruned}
	DispatchDuration prometheus.Histogram
	Sweeps           prometheus.Counter
	SweepDuration    prometheus.Histogram

	// Feed metrics.
	FeedErrors   *prometheus.CounterVec   // labels: feed={weather,fire}
	FeedDuration *prometheus.HistogramVec // labels: feed
	WeatherCache *prometheus.CounterVec   // labels: result={hit,miss}

	// Bot and scheduler metrics.
	Subscribers     prometheus.Gauge
	BotMessages     *prometheus.CounterVec // labels: command
	JobRuns         *prometheus.CounterVec // labels: job, outcome={success,error}
	EventsPublished *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can construct as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		AlertsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_enqueued_total",
			Help:      "Alerts appended to the queue by category.",
		}, []string{"category"}),
		AlertsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_finished_total",
			Help:      "Alerts moved to sent, by outcome.",
		}, []string{"outcome"}),
		PendingAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_alerts",
			Help:      "Alerts awaiting delivery after the last sweep.",
		}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Per-recipient dispatch results.",
		}, []string{"result"}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of a single transport send.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		Sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Completed delivery sweeps.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of a complete delivery sweep.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		FeedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_errors_total",
			Help:      "Weather and fire feed failures.",
		}, []string{"feed"}),
		FeedDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_request_duration_seconds",
			Help:      "Upstream feed request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"feed"}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_cache_total",
			Help:      "Weather cache lookups by result.",
		}, []string{"result"}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Current number of subscribers.",
		}),
		BotMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_messages_total",
			Help:      "Inbound chat messages by command.",
		}, []string{"command"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Alert lifecycle events written to Kafka.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.AlertsEnqueued,
		m.AlertsFinished,
		m.PendingAlerts,
		m.Dispatches,
		m.DispatchDuration,
		m.Sweeps,
		m.SweepDuration,
		m.FeedErrors,
		m.FeedDuration,
		m.WeatherCache,
		m.Subscribers,
		m.BotMessages,
		m.JobRuns,
		m.EventsPublished,
	}
}
