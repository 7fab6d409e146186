package messaging

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/k1networth/workforce-events/internal/shared/kafkax"
)

func TestKafkaCodecRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	in := Message{
		ID:          "m1",
		RoutingKey:  "leave.requested",
		PublishedAt: at,
		Payload:     map[string]any{"requestId": "r1", "attempts": 2},
	}

	km, err := toKafka(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(km.Key) != "m1" {
		t.Fatalf("expected key %q, got %q", "m1", km.Key)
	}
	if got := kafkax.Header(km, HeaderRoutingKey); got != "leave.requested" {
		t.Fatalf("expected routing-key header, got %q", got)
	}

	out, err := fromKafka(km)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != "m1" || out.RoutingKey != "leave.requested" || !out.PublishedAt.Equal(at) {
		t.Fatalf("unexpected message %+v", out)
	}
	if out.Envelope().Attempts() != 2 {
		t.Fatalf("expected attempts 2, got %d", out.Envelope().Attempts())
	}
}

func TestKafkaDecodeRequiresRoutingKey(t *testing.T) {
	if _, err := fromKafka(kafka.Message{Value: []byte(`{}`)}); err == nil {
		t.Fatalf("expected error without routing-key header")
	}
}

func TestKafkaDecodeRejectsBadJSON(t *testing.T) {
	km := kafka.Message{
		Value:   []byte(`not json`),
		Headers: kafkax.Headers(map[string]string{HeaderRoutingKey: "k"}),
	}
	if _, err := fromKafka(km); err == nil {
		t.Fatalf("expected decode error")
	}
}
