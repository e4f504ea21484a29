package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

/*
 * Admin listener.
 *
 * Plain HTTP next to the gRPC port, no authentication:
 *   GET /metrics  Prometheus exposition of the default registry
 *   GET /healthz  200 while the gRPC server is serving, 503 once draining
 *
 * Bind it to a private interface; it exposes operational data only.
 */

const readHeaderTimeout = 5 * time.Second

// AdminServer serves metrics and liveness over HTTP.
type AdminServer struct {
	server *http.Server
	ready  func() bool
	logger *slog.Logger
}

// NewAdminServer creates the admin server for addr. ready reports whether
// the API is serving; nil means always ready.
func NewAdminServer(addr string, ready func() bool, logger *slog.Logger) *AdminServer {
	if logger == nil {
		logger = slog.Default()
	}
	if ready == nil {
		ready = func() bool { return true }
	}

	s := &AdminServer{ready: ready, logger: logger}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

func (s *AdminServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// Handler returns the admin routes.
func (s *AdminServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *AdminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !s.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "draining")
		return
	}
	fmt.Fprintln(w, "ok")
}

// ListenAndServe serves until Shutdown. A clean shutdown returns nil.
func (s *AdminServer) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.server.Addr, err)
	}
	s.logger.Info("serving admin endpoints", "address", listener.Addr().String())
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *AdminServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
