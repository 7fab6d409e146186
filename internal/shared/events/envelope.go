package events

import (
	"encoding/json"
	"maps"
	"math"
	"strconv"
	"time"
)

// AttemptsField is the payload field carrying the retry counter.
const AttemptsField = "attempts"

// Envelope is a message as seen by consumers. Payload is append-only:
// handlers republish the same map so fields they do not know survive retries.
type Envelope struct {
	MessageID   string         `json:"message_id,omitempty"`
	RoutingKey  string         `json:"routing_key"`
	PublishedAt time.Time      `json:"published_at,omitempty"`
	Payload     map[string]any `json:"payload"`
}

// Attempts reads the retry counter from the payload. A missing or
// unreadable value counts as zero.
func (e Envelope) Attempts() int {
	return AttemptsOf(e.Payload)
}

// Clone returns a copy with a shallow copy of the payload.
func (e Envelope) Clone() Envelope {
	out := e
	out.Payload = clonePayload(e.Payload)
	return out
}

func clonePayload(p map[string]any) map[string]any {
	out := make(map[string]any, len(p)+1)
	maps.Copy(out, p)
	return out
}

// maxAttempts bounds counters read from the wire.
const maxAttempts = math.MaxInt32

// AttemptsOf reads the retry counter. The result is always in [0, MaxInt32].
func AttemptsOf(p map[string]any) int {
	v, ok := p[AttemptsField]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return clampAttempts(int64(n))
	case int32:
		return clampAttempts(int64(n))
	case int64:
		return clampAttempts(n)
	case float64:
		if math.IsNaN(n) || n <= 0 {
			return 0
		}
		if n >= maxAttempts {
			return maxAttempts
		}
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return clampAttempts(i)
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0
		}
		return clampAttempts(i)
	default:
		return 0
	}
}

func clampAttempts(n int64) int {
	return int(max(min(n, maxAttempts), 0))
}

// DeadLetter is the record published under the dead-letter routing key.
// Time is unix milliseconds.
type DeadLetter struct {
	RoutingKey string         `json:"routingKey"`
	Payload    map[string]any `json:"payload"`
	Time       int64          `json:"time"`
}

func (d DeadLetter) AsPayload() map[string]any {
	return map[string]any{
		"routingKey": d.RoutingKey,
		"payload":    d.Payload,
		"time":       d.Time,
	}
}

// Decode converts a payload map into a typed event through JSON.
func Decode(p map[string]any, out any) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// Encode converts a typed event into a payload map.
func Encode(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
