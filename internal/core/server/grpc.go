// Package server provides gRPC server lifecycle management.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/solatis/inboxkeeper/internal/core/api"
	"github.com/solatis/inboxkeeper/internal/core/auth"
	"github.com/solatis/inboxkeeper/internal/core/config"
	"github.com/solatis/inboxkeeper/internal/core/metrics"
)

// shutdownTimeout bounds GracefulStop before in-flight calls are cut off.
const shutdownTimeout = 30 * time.Second

// GRPCServer manages gRPC server lifecycle.
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	config   *config.APIConfig
	logger   *slog.Logger
	draining atomic.Bool
}

// NewGRPCServer creates gRPC server with auth interceptor and service registration.
func NewGRPCServer(cfg *config.APIConfig, service api.OrganizerServer, authenticator *auth.Authenticator, logger *slog.Logger) (*GRPCServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			loggingInterceptor(logger),
			authenticator.UnaryInterceptor(),
		),
		grpc.MaxConcurrentStreams(uint32(cfg.MaxConnections)),
	}

	server := grpc.NewServer(opts...)
	api.RegisterOrganizerServer(server, service)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(api.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &GRPCServer{
		server: server,
		health: healthServer,
		config: cfg,
		logger: logger,
	}, nil
}

// Serving reports whether Shutdown has not started yet.
func (s *GRPCServer) Serving() bool {
	return !s.draining.Load()
}

// Start binds the configured address and serves until Shutdown.
func (s *GRPCServer) Start(ctx context.Context) error {
	addr := s.config.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener until Shutdown.
func (s *GRPCServer) Serve(listener net.Listener) error {
	s.logger.Info("serving organizer API", "address", listener.Addr().String())
	return s.server.Serve(listener)
}

// Shutdown marks the server not serving and stops it gracefully, forcing
// the stop after 30 seconds or when ctx is done.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.draining.Store(true)
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	case <-time.After(shutdownTimeout):
		s.server.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}

// loggingInterceptor logs every unary call with its status code and
// duration, and records both in the gRPC request metrics.
func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)
		code := status.Code(err).String()
		metrics.GRPCRequestsTotal.WithLabelValues(info.FullMethod, code).Inc()
		metrics.GRPCRequestDuration.WithLabelValues(info.FullMethod).Observe(elapsed.Seconds())

		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "grpc call",
			"method", info.FullMethod,
			"code", code,
			"duration_ms", elapsed.Milliseconds(),
		)
		return resp, err
	}
}
