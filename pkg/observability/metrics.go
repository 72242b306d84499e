// Package observability hosts the prometheus metrics listener.
package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu            sync.Mutex
	metricsServer *http.Server
)

// StartMetricsServer serves the prometheus registry on addr until the
// context is cancelled or StopMetricsServer is called.
func StartMetricsServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 120 * time.Second,
	}

	mu.Lock()
	metricsServer = srv
	mu.Unlock()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	_ = srv.ListenAndServe()
}

// StopMetricsServer shuts down the metrics listener if it is running.
func StopMetricsServer(ctx context.Context) error {
	mu.Lock()
	srv := metricsServer
	metricsServer = nil
	mu.Unlock()

	if srv == nil {
		return nil
	}

	return srv.Shutdown(ctx)
}
