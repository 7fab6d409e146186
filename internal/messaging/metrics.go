package messaging

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	PublishedTotal     *prometheus.CounterVec
	PublishErrorsTotal *prometheus.CounterVec
	DeadLettersTotal   *prometheus.CounterVec
	DroppedTotal       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "messaging_published_total", Help: "Messages published to the exchange."},
			[]string{"routing_key"},
		),
		PublishErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "messaging_publish_errors_total", Help: "Failed publish attempts."},
			[]string{"routing_key"},
		),
		DeadLettersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "messaging_dead_letters_total", Help: "Messages published to the dead-letter routing key."},
			[]string{"original_routing_key"},
		),
		DroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "messaging_deliveries_dropped_total", Help: "Deliveries settled after exhausting redeliveries or failing to decode."},
			[]string{"queue"},
		),
	}
	reg.MustRegister(m.PublishedTotal, m.PublishErrorsTotal, m.DeadLettersTotal, m.DroppedTotal)
	return m
}

func (m *Metrics) published(key string) {
	if m != nil {
		m.PublishedTotal.WithLabelValues(key).Inc()
	}
}

func (m *Metrics) publishFailed(key string) {
	if m != nil {
		m.PublishErrorsTotal.WithLabelValues(key).Inc()
	}
}

func (m *Metrics) deadLettered(key string) {
	if m != nil {
		m.DeadLettersTotal.WithLabelValues(key).Inc()
	}
}

func (m *Metrics) dropped(queue string) {
	if m != nil {
		m.DroppedTotal.WithLabelValues(queue).Inc()
	}
}
