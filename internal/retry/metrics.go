package retry

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	ScheduledTotal prometheus.Counter
	AbortedTotal   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScheduledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "retry_scheduled_total", Help: "Retries republished after backoff."},
		),
		AbortedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "retry_aborted_total", Help: "Retries aborted during backoff."},
		),
	}
	reg.MustRegister(m.ScheduledTotal, m.AbortedTotal)
	return m
}
