package consumer

import "github.com/prometheus/client_golang/prometheus"

type Outcome string

const (
	OutcomeSkipped        Outcome = "skipped"
	OutcomeDone           Outcome = "done"
	OutcomeRetryScheduled Outcome = "retry_scheduled"
	OutcomeDeadLettered   Outcome = "dead_lettered"
	OutcomeFailed         Outcome = "failed"
)

type Metrics struct {
	MessagesTotal      *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "consumer_messages_total", Help: "Consumed messages by outcome."},
			[]string{"consumer", "outcome"},
		),
		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "consumer_processing_duration_seconds",
				Help:    "Time spent handling one message.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"consumer"},
		),
	}
	reg.MustRegister(m.MessagesTotal, m.ProcessingDuration)
	return m
}
