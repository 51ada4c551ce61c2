package web

import (
	"time"

	"FlightScheduleOptimizer/src/datasource"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 看板的 Prometheus 指标
type Metrics struct {
	Queries      *prometheus.CounterVec   // labels: rule
	Loads        *prometheus.CounterVec   // labels: source, outcome={ok,error,empty}
	LoadDuration *prometheus.HistogramVec // labels: source
	Pushes       *prometheus.CounterVec   // labels: outcome={ok,error}
}

// NewMetrics 创建指标并注册到默认 registry
func NewMetrics() *Metrics {
	m := &Metrics{
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flight_optimizer",
			Name:      "queries_total",
			Help:      "Answered queries by matched rule.",
		}, []string{"rule"}),
		Loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flight_optimizer",
			Name:      "loads_total",
			Help:      "Flight table loads by source and outcome, cache hits excluded.",
		}, []string{"source", "outcome"}),
		LoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flight_optimizer",
			Name:      "load_duration_seconds",
			Help:      "Time spent reading and normalizing a flight table.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"source"}),
		Pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flight_optimizer",
			Name:      "pushes_total",
			Help:      "Answers pushed to the DingTalk robot by outcome.",
		}, []string{"outcome"}),
	}

	prometheus.MustRegister(m.Queries, m.Loads, m.LoadDuration, m.Pushes)
	return m
}

// NewMetricsForTesting 不注册, 多个测试可以各建一份
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		Queries:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "flight_optimizer", Name: "queries_total"}, []string{"rule"}),
		Loads:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "flight_optimizer", Name: "loads_total"}, []string{"source", "outcome"}),
		LoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "flight_optimizer", Name: "load_duration_seconds"}, []string{"source"}),
		Pushes:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "flight_optimizer", Name: "pushes_total"}, []string{"outcome"}),
	}
}

// ObserveLoad 实现 datasource.LoadObserver
func (m *Metrics) ObserveLoad(source datasource.Source, outcome string, elapsed time.Duration) {
	m.Loads.WithLabelValues(string(source), outcome).Inc()
	m.LoadDuration.WithLabelValues(string(source)).Observe(elapsed.Seconds())
}

func (m *Metrics) observeQuery(rule string) {
	m.Queries.WithLabelValues(rule).Inc()
}

func (m *Metrics) observePush(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Pushes.WithLabelValues(outcome).Inc()
}
