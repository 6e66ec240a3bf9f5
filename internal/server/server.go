// Package server holds the HTTP surfaces of both binaries: the coach's local
// control API and event stream, and the interview service API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sjawhar/interview-coach/internal/metrics"
)

// CoachHandler serves the candidate-side control API and event stream.
func CoachHandler(hub *Hub, coach Coach, warnings []string) http.Handler {
	mux := http.NewServeMux()

	registerWSRoute(mux, hub)
	registerCoachRoutes(mux, coach, warnings)
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

// ServiceHandler serves the reasoning, conversation and session APIs.
func ServiceHandler(svc *Service) http.Handler {
	mux := http.NewServeMux()

	registerServiceRoutes(mux, svc)
	registerSessionRoutes(mux, svc.store)
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

// Serve runs h on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "component", "server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
