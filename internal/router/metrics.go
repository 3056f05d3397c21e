package router

import "github.com/prometheus/client_golang/prometheus"

// rejectionCounters tracks a per-category counter for every gate in the
// submit() pipeline, registered exactly as the teacher's
// internal/metrics/metrics.go registers its counter vecs.
type rejectionCounters struct {
	vec *prometheus.CounterVec
}

func newRejectionCounters() *rejectionCounters {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "router_rejections_total",
		Help: "Total signals rejected by the order router, labeled by gate",
	}, []string{"reason"})
	if err := prometheus.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			vec = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return &rejectionCounters{vec: vec}
}

func (c *rejectionCounters) inc(reason RejectReason) {
	if reason == RejectNone {
		return
	}
	c.vec.WithLabelValues(string(reason)).Inc()
}
