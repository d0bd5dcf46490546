package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg               *prometheus.Registry
	OrdersPlaced      prometheus.Counter
	OrdersRejected    prometheus.Counter
	MovementsApplied  prometheus.Counter
	PlaceOrderSeconds prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	placed := prometheus.NewCounter(prometheus.CounterOpts{Name: "ordina_orders_placed_total"})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{Name: "ordina_orders_rejected_total"})
	movements := prometheus.NewCounter(prometheus.CounterOpts{Name: "ordina_movements_applied_total"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ordina_place_order_seconds",
		Buckets: prometheus.DefBuckets,
	})

	r.MustRegister(placed, rejected, movements, latency)
	return &Registry{
		reg:               r,
		OrdersPlaced:      placed,
		OrdersRejected:    rejected,
		MovementsApplied:  movements,
		PlaceOrderSeconds: latency,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
