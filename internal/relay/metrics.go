package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the relay's prometheus collectors.
type Metrics struct {
	subscribers prometheus.Gauge
	relayed     *prometheus.CounterVec
	evictions   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cerebro",
			Subsystem: "relay",
			Name:      "subscribers",
			Help:      "Number of attached relay subscribers.",
		}),
		relayed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cerebro",
			Subsystem: "relay",
			Name:      "events_total",
			Help:      "Events received from the bus, by decode result.",
		}, []string{"kind"}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cerebro",
			Subsystem: "relay",
			Name:      "evictions_total",
			Help:      "Subscribers disconnected because their queue overflowed.",
		}),
	}
}
