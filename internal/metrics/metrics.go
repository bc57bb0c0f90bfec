// Package metrics exposes Prometheus collectors for solver activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"diophant/internal/model"
)

type Collectors struct {
	Solves             *prometheus.CounterVec
	Generations        prometheus.Histogram
	LastDeviation      prometheus.Gauge
	ValidationFailures prometheus.Counter
}

// New builds the collectors and registers them with reg. A nil reg leaves
// them unregistered, which suits tests that only read values back.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		Solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diophant",
			Name:      "solves_total",
			Help:      "Completed searches by terminal status.",
		}, []string{"status"}),
		Generations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "diophant",
			Name:      "search_generations",
			Help:      "Generations evolved before a search terminated.",
			Buckets:   []float64{0, 1, 5, 10, 50, 100, 250, 500, 1000, 5000},
		}),
		LastDeviation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "diophant",
			Name:      "last_deviation",
			Help:      "Deviation reported by the most recent search.",
		}),
		ValidationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "diophant",
			Name:      "validation_failures_total",
			Help:      "Solve requests rejected before a search started.",
		}),
	}
	if reg == nil {
		return c, nil
	}
	for _, collector := range []prometheus.Collector{c.Solves, c.Generations, c.LastDeviation, c.ValidationFailures} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveRun records a finished search. Safe on a nil receiver.
func (c *Collectors) ObserveRun(run model.RunRecord) {
	if c == nil {
		return
	}
	c.Solves.WithLabelValues(string(run.Status)).Inc()
	c.Generations.Observe(float64(run.Generations))
	c.LastDeviation.Set(float64(run.Deviation))
}

// ObserveValidationFailure records a rejected request. Safe on a nil receiver.
func (c *Collectors) ObserveValidationFailure() {
	if c == nil {
		return
	}
	c.ValidationFailures.Inc()
}
