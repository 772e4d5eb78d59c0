package exchange

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	inUse              prometheus.Gauge
	allocFailures      prometheus.Counter
	unsolicitedDropped prometheus.Counter
	responseTimeouts   prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		inUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "matter",
			Subsystem: "exchange",
			Name:      "contexts_in_use",
			Help:      "Exchange contexts currently allocated from the pool.",
		}),
		allocFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matter",
			Subsystem: "exchange",
			Name:      "alloc_failures_total",
			Help:      "Context allocations that failed because the pool was exhausted.",
		}),
		unsolicitedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matter",
			Subsystem: "exchange",
			Name:      "unsolicited_dropped_total",
			Help:      "Messages that matched no exchange and no unsolicited handler.",
		}),
		responseTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matter",
			Subsystem: "exchange",
			Name:      "response_timeouts_total",
			Help:      "Response timers that fired.",
		}),
	}
}

func (m *metrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.inUse, m.allocFailures, m.unsolicitedDropped, m.responseTimeouts} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
