// Package health exposes the standard gRPC health-checking service for the
// lobby listeners and the optional catalog database.
package health

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/lobby/internal/config"
)

// Service names reported by the health endpoint. The empty name is the
// overall server status.
const (
	ServiceOverall = ""
	ServiceControl = "lobby.control"
	ServiceRelay   = "lobby.relay"
	ServiceCatalog = "lobby.catalog"
)

// Server serves grpc.health.v1.Health.
type Server struct {
	cfg    config.HealthConfig
	grpc   *grpc.Server
	health *grpchealth.Server
	logger *zap.Logger

	mu  sync.Mutex
	lis net.Listener
}

// NewServer creates a health server. Every named service starts NOT_SERVING.
//
// Precondition: logger must be non-nil.
func NewServer(cfg config.HealthConfig, logger *zap.Logger, services ...string) *Server {
	hs := grpchealth.NewServer()
	hs.SetServingStatus(ServiceOverall, healthpb.HealthCheckResponse_NOT_SERVING)
	for _, name := range services {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		cfg:    cfg,
		grpc:   gs,
		health: hs,
		logger: logger,
	}
}

// SetServing records the status of a named service.
func (s *Server) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, status)
}

// Start listens and serves until Stop is called.
//
// Postcondition: Returns nil after a graceful stop, or the listen/serve error.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()

	s.logger.Info("health server listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("serving health: %w", err)
	}
	return nil
}

// Stop marks every service NOT_SERVING and stops the gRPC server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// Addr returns the listening address, or empty string if not yet listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		return s.lis.Addr().String()
	}
	return ""
}

// Watcher polls a check function and mirrors its result into a Server.
type Watcher struct {
	server   *Server
	service  string
	interval time.Duration
	check    func(ctx context.Context) error
	logger   *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a Watcher for one service.
//
// Precondition: interval must be positive; check must be non-nil.
func NewWatcher(server *Server, service string, interval time.Duration, check func(ctx context.Context) error, logger *zap.Logger) *Watcher {
	return &Watcher{
		server:   server,
		service:  service,
		interval: interval,
		check:    check,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start runs the check immediately and then every interval until Stop.
// Only a transition from healthy to unhealthy is logged, so a service that
// has not bound yet on the first poll stays quiet.
func (w *Watcher) Start() error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	healthy := w.probe(false)
	for {
		select {
		case <-w.stop:
			return nil
		case <-ticker.C:
			healthy = w.probe(healthy)
		}
	}
}

func (w *Watcher) probe(wasHealthy bool) bool {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	err := w.check(ctx)
	healthy := err == nil
	if !healthy && wasHealthy {
		w.logger.Warn("health check failed",
			zap.String("service", w.service),
			zap.Error(err),
		)
	}
	w.server.SetServing(w.service, healthy)
	return healthy
}

// Stop ends the polling loop.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}
