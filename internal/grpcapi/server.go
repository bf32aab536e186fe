// Package grpcapi exposes the standard gRPC health service so scanner kiosks
// and load balancers can probe the server without a session.
package grpcapi

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/BrandonDHaskell/Portaria/server/internal/logging"
)

// ServiceName is the health key for the scan pipeline.
const ServiceName = "portaria.Scanner"

// Checker reports whether a dependency (the store) is reachable.
type Checker func(ctx context.Context) error

type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	check    Checker
	logger   *slog.Logger
	stopped  chan struct{}
	stopOnce sync.Once
}

// New builds the server. check may be nil, in which case the scan service
// is reported serving for as long as the process is up.
func New(check Checker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		grpc:    grpc.NewServer(grpc.UnaryInterceptor(unaryLogger(logger))),
		health:  health.NewServer(),
		check:   check,
		logger:  logger.With("svc", "grpcapi"),
		stopped: make(chan struct{}),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Probe runs the checker once and publishes the result.
func (s *Server) Probe(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.check != nil {
		if err := s.check(ctx); err != nil {
			s.logger.WarnContext(ctx, "health probe failed", "err", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Watch probes every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	s.Probe(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopped:
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Stop marks every service not serving and drains in-flight RPCs.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.health.Shutdown()
		close(s.stopped)
		s.grpc.GracefulStop()
	})
}

func unaryLogger(l *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		l.Debug("rpc completed", "method", info.FullMethod,
			"duration_ms", time.Since(start).Milliseconds(), "err", err)
		return resp, err
	}
}
