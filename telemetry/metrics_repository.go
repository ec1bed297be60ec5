package telemetry

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vllora/gateway/gwmodel"
)

// PrometheusMetricsRepository tracks per-model gauges the Optimized router
// strategy reads to compare targets (latency, cost, error_rate, tps,
// requests). Values enter only through Observe, which the executor does not
// call; the router only reads the cached last-observed value, since the
// Prometheus client library does not expose gauge reads cheaply.
type PrometheusMetricsRepository struct {
	registry *prometheus.Registry
	gauges   map[gwmodel.OptimizeMetric]*prometheus.GaugeVec

	mu     sync.RWMutex
	latest map[gwmodel.OptimizeMetric]map[string]float64
}

// NewPrometheusMetricsRepository registers one GaugeVec per OptimizeMetric,
// labeled by model, against registry.
func NewPrometheusMetricsRepository(registry *prometheus.Registry) *PrometheusMetricsRepository {
	r := &PrometheusMetricsRepository{
		registry: registry,
		gauges:   map[gwmodel.OptimizeMetric]*prometheus.GaugeVec{},
		latest:   map[gwmodel.OptimizeMetric]map[string]float64{},
	}
	for _, m := range []gwmodel.OptimizeMetric{
		gwmodel.MetricLatency, gwmodel.MetricCost, gwmodel.MetricErrorRate,
		gwmodel.MetricTPS, gwmodel.MetricRequests,
	} {
		gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_router_" + string(m),
			Help: "Rolling " + string(m) + " observed per routed model.",
		}, []string{"model"})
		registry.MustRegister(gauge)
		r.gauges[m] = gauge
		r.latest[m] = map[string]float64{}
	}
	return r
}

// Observe records the latest value for a (model, metric) pair, both in the
// exported Prometheus gauge and in the in-process cache Value reads from.
func (r *PrometheusMetricsRepository) Observe(model string, metric gwmodel.OptimizeMetric, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gauge, ok := r.gauges[metric]
	if !ok {
		return
	}
	gauge.WithLabelValues(model).Set(value)
	r.latest[metric][model] = value
}

// Value implements router.MetricsSource.
func (r *PrometheusMetricsRepository) Value(ctx context.Context, model string, metric gwmodel.OptimizeMetric) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byModel, ok := r.latest[metric]
	if !ok {
		return 0, false
	}
	v, ok := byModel[model]
	return v, ok
}
