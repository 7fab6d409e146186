package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Shutdown waits for ctx to end, then drains srv within timeout.
func Shutdown(ctx context.Context, log *slog.Logger, srv *http.Server, timeout time.Duration) {
	<-ctx.Done()

	log.Info("http_shutdown_start")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http_shutdown_failed", slog.String("err", err.Error()))
		return
	}
	log.Info("http_shutdown_done")
}
