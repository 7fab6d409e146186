package httpx_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/k1networth/workforce-events/internal/shared/httpx"
)

func testLogger() *slog.Logger {
	h := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h).With(
		slog.String("app", "test"),
		slog.String("env", "test"),
	)
}

func ok(context.Context) error { return nil }

func newRouterForTest(probes ...httpx.Probe) http.Handler {
	reg := prometheus.NewRegistry()
	return httpx.NewRouter(testLogger(), httpx.RouterConfig{
		Probes:   probes,
		Gatherer: reg,
		Metrics:  httpx.NewMetrics(reg),
	})
}

func TestHealthzReturns200AndBodyOK(t *testing.T) {
	srv := httptest.NewServer(newRouterForTest())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func TestReadyzAllProbesOK(t *testing.T) {
	srv := httptest.NewServer(newRouterForTest(
		httpx.Probe{Name: "redis", Check: ok},
		httpx.Probe{Name: "broker", Check: ok},
	))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["redis"] != "ok" || body["broker"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestReadyzDegradedWhenProbeFails(t *testing.T) {
	srv := httptest.NewServer(newRouterForTest(
		httpx.Probe{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
		httpx.Probe{Name: "broker", Check: ok},
	))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected %d, got %d", http.StatusServiceUnavailable, resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "degraded" || body["redis"] != "unreachable" || body["broker"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestMetricsEndpointExposesHTTPMetrics(t *testing.T) {
	srv := httptest.NewServer(newRouterForTest())
	t.Cleanup(srv.Close)

	if resp, err := http.Get(srv.URL + "/healthz"); err == nil {
		_ = resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), `http_requests_total{method="GET",route="/healthz",status="200"} 1`) {
		t.Fatalf("expected healthz request to be counted, got:\n%s", b)
	}
}

func TestRequestIDGeneratedIfMissing(t *testing.T) {
	srv := httptest.NewServer(newRouterForTest())
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	got := resp.Header.Get("X-Request-Id")
	if got == "" {
		t.Fatalf("expected X-Request-Id header to be set")
	}

	re := regexp.MustCompile(`^[0-9a-f]{32}$`)
	if !re.MatchString(got) {
		t.Fatalf("expected 32-char hex request id, got %q", got)
	}
}

func TestRequestIDPreservedIfProvided(t *testing.T) {
	srv := httptest.NewServer(newRouterForTest())
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Request-Id", "test123")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if got := resp.Header.Get("X-Request-Id"); got != "test123" {
		t.Fatalf("expected X-Request-Id %q, got %q", "test123", got)
	}
}
