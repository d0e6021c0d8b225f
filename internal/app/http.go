package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"harbor/pkg/logger"
	"harbor/pkg/metrics"
	"harbor/pkg/store"
)

// serveMetrics runs the loopback observability listener: prometheus
// metrics, a liveness probe, and a JSON status snapshot.
func (a *App) serveMetrics(ctx context.Context) {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"user":         a.worker.User(),
			"relays_open":  a.pool.OpenCount(),
			"queue_depth":  a.queue.Len(),
			"store_ready":  store.Ready(),
			"store_halted": store.Halted(),
		})
	})

	srv := &http.Server{
		Addr:         a.cfg.Metrics.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Log.Error("metrics_listener_failed", zap.String("addr", a.cfg.Metrics.Addr), zap.Error(err))
	}
}
