package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Probe is one dependency checked by /readyz.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type RouterConfig struct {
	Probes       []Probe
	ProbeTimeout time.Duration
	Gatherer     prometheus.Gatherer
	Metrics      *Metrics
}

func NewRouter(log *slog.Logger, cfg RouterConfig) http.Handler {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}

	r := chi.NewRouter()
	r.Use(AccessLog(log))
	r.Use(RequestID)
	r.Use(chimw.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), cfg.ProbeTimeout)
		defer cancel()

		body := map[string]string{"status": "ok"}
		code := http.StatusOK
		for _, p := range cfg.Probes {
			if err := p.Check(ctx); err != nil {
				log.Warn("readiness_probe_failed", slog.String("probe", p.Name), slog.String("err", err.Error()))
				body[p.Name] = "unreachable"
				body["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			body[p.Name] = "ok"
		}
		writeJSON(w, code, body)
	})

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
