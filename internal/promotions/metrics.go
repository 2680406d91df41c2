package promotions

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/EZERROUK/x-panel-sub002/internal/promotions/engine"
)

// Metrics exposes Prometheus collectors for promotion evaluation.
type Metrics struct {
	evaluations *prometheus.CounterVec
	applied     *prometheus.CounterVec
	discount    *prometheus.HistogramVec
}

// NewMetrics registers the promotion collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	evaluations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xpanel_promotion_evaluations_total",
		Help: "Promotion engine evaluations partitioned by path and outcome.",
	}, []string{"path", "outcome"})
	applied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xpanel_promotions_applied_total",
		Help: "Promotions applied to carts partitioned by path.",
	}, []string{"path"})
	discount := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xpanel_promotion_discount_amount",
		Help:    "Discount total granted per evaluation.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	}, []string{"path"})
	registerer.MustRegister(evaluations, applied, discount)
	return &Metrics{evaluations: evaluations, applied: applied, discount: discount}
}

// Observe records one evaluation on path.
func (m *Metrics) Observe(path string, res engine.Result, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.evaluations.WithLabelValues(path, "error").Inc()
		return
	case len(res.Applied) == 0:
		m.evaluations.WithLabelValues(path, "none").Inc()
	default:
		m.evaluations.WithLabelValues(path, "applied").Inc()
	}
	m.applied.WithLabelValues(path).Add(float64(len(res.Applied)))
	total, _ := res.DiscountTotal.Float64()
	m.discount.WithLabelValues(path).Observe(total)
}
