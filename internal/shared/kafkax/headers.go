package kafkax

import "github.com/segmentio/kafka-go"

// Header returns the first value of the named header, or "".
func Header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func Headers(kv map[string]string) []kafka.Header {
	out := make([]kafka.Header, 0, len(kv))
	for k, v := range kv {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}
