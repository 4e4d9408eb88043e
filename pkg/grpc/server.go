// Package grpc serves the standard gRPC health service for the memory store.
package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// Logger is the logger used by the gRPC server.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore makes the health status follow the store's Ping.
func WithStore(p Pinger) Option {
	return func(s *Server) { s.store = p }
}

// Server represents a gRPC server instance
type Server struct {
	config   *Config
	logger   Logger
	store    Pinger
	grpcSrv  *grpc.Server
	listener net.Listener
	health   *HealthServer
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.RWMutex
	running  bool
}

// New creates a new gRPC server with the given configuration
func New(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		config: cfg,
		logger: nopLogger{},
		health: NewHealthServer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	s.listener = listener

	s.grpcSrv = grpc.NewServer(s.buildServerOptions()...)
	grpc_health_v1.RegisterHealthServer(s.grpcSrv, s.health.GetServer())
	if s.config.EnableReflection {
		reflection.Register(s.grpcSrv)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if s.store != nil {
		if err := s.health.Probe(ctx, s.store); err != nil {
			s.logger.Warn("gRPC health probe failed", "error", err)
		}
		go s.health.Watch(ctx, s.store, s.config.ProbeInterval, s.logger)
	} else {
		s.health.SetServing(true)
	}

	s.running = true
	s.done = make(chan struct{})
	s.logger.Info("Starting gRPC server", "addr", listener.Addr().String(), "reflection", s.config.EnableReflection)

	go func(srv *grpc.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(listener); err != nil {
			s.logger.Error("gRPC server failed", "error", err)
		}
	}(s.grpcSrv, s.done)

	return nil
}

// Stop gracefully stops the gRPC server, forcing it down when ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.cancel()
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcSrv.GracefulStop()
		close(stopped)
	}()

	var err error
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcSrv.Stop()
		err = fmt.Errorf("graceful shutdown timeout, forced stop")
	}
	<-s.done

	s.running = false
	s.logger.Info("gRPC server stopped")
	return err
}

// Health returns the health service.
func (s *Server) Health() *HealthServer { return s.health }

// Address returns the server's listening address
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) buildServerOptions() []grpc.ServerOption {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unaryInterceptor(s.logger, s.config.EnableTracing)),
		grpc.ChainStreamInterceptor(streamInterceptor(s.logger, s.config.EnableTracing)),
	}

	if s.config.MaxConnections > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(s.config.MaxConnections)))
	}

	if ka := s.config.Keepalive; ka != nil {
		opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: time.Duration(ka.MaxIdleSeconds) * time.Second,
			Time:              time.Duration(ka.TimeSeconds) * time.Second,
			Timeout:           time.Duration(ka.TimeoutSeconds) * time.Second,
		}))
	}

	return opts
}
