package flow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the parser.
type Metrics struct {
	plansParsed   *prometheus.CounterVec
	rowsEmitted   *prometheus.CounterVec
	parseFailures *prometheus.CounterVec
	parseDuration *prometheus.HistogramVec
}

// NewMetrics registers the parser metrics with r. A nil registerer creates unregistered
// collectors.
func NewMetrics(r prometheus.Registerer) *Metrics {
	return &Metrics{
		plansParsed: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "queryflow_plans_parsed_total",
			Help: "Total number of plans turned into flow rows.",
		}, []string{"engine"}),
		rowsEmitted: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "queryflow_rows_emitted_total",
			Help: "Total number of flow rows emitted.",
		}, []string{"engine"}),
		parseFailures: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "queryflow_parse_failures_total",
			Help: "Total number of failed parse calls.",
		}, []string{"engine", "reason"}),
		parseDuration: promauto.With(r).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "queryflow_parse_duration_seconds",
			Help:    "Time taken to parse one batch of plans.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"engine"}),
	}
}

func (m *Metrics) observe(engine string, plans, rows int, seconds float64) {
	if m == nil {
		return
	}
	m.plansParsed.WithLabelValues(engine).Add(float64(plans))
	m.rowsEmitted.WithLabelValues(engine).Add(float64(rows))
	m.parseDuration.WithLabelValues(engine).Observe(seconds)
}

func (m *Metrics) fail(engine, reason string) {
	if m == nil {
		return
	}
	m.parseFailures.WithLabelValues(engine, reason).Inc()
}
