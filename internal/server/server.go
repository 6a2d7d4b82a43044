package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joshp123/solarcloud/internal/core"
)

const (
	healthSyncInterval = 30 * time.Second
	shutdownTimeout    = 10 * time.Second
)

// Server runs the gRPC API and the HTTP router for one plugin set.
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	grpcLn  net.Listener
	http    *http.Server
	httpLn  net.Listener
	plugins []core.Plugin
	logger  *zap.SugaredLogger
	// serving is the last health state logged per plugin.
	serving map[string]bool
}

// New binds both listeners and registers the plugin registry, every plugin's
// services, reflection and the standard gRPC health service.
func New(grpcAddr, httpAddr string, plugins []core.Plugin, registry *prometheus.Registry, logger *zap.SugaredLogger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	grpcLn, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return nil, fmt.Errorf("listen grpc %s: %w", grpcAddr, err)
	}
	httpLn, err := net.Listen("tcp", httpAddr)
	if err != nil {
		grpcLn.Close()
		return nil, fmt.Errorf("listen http %s: %w", httpAddr, err)
	}

	s := &Server{
		grpc:   grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger))),
		health: health.NewServer(),
		grpcLn: grpcLn,
		http: &http.Server{
			Handler:           NewRouter(plugins, registry),
			ReadHeaderTimeout: 10 * time.Second,
		},
		httpLn:  httpLn,
		plugins: plugins,
		logger:  logger,
		serving: make(map[string]bool, len(plugins)),
	}
	if err := core.NewRegistryService(plugins).Register(s.grpc); err != nil {
		grpcLn.Close()
		httpLn.Close()
		return nil, err
	}
	for _, p := range plugins {
		p.RegisterGRPC(s.grpc)
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.syncHealth()
	return s, nil
}

func (s *Server) GRPCAddr() net.Addr { return s.grpcLn.Addr() }

func (s *Server) HTTPAddr() net.Addr { return s.httpLn.Addr() }

// Run serves until ctx ends or a listener fails, then drains both servers.
func (s *Server) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := s.grpc.Serve(s.grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := s.http.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		ticker := time.NewTicker(healthSyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return s.shutdown()
			case <-ticker.C:
				s.syncHealth()
			}
		}
	})
	return group.Wait()
}

func (s *Server) shutdown() error {
	s.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(shutdownCtx)
	s.grpc.GracefulStop()
	return err
}

// syncHealth mirrors plugin health into the gRPC health service. A plugin's
// services follow that plugin; the server entry ("") serves only while every
// plugin does.
func (s *Server) syncHealth() {
	overall := healthpb.HealthCheckResponse_SERVING
	for _, p := range s.plugins {
		status := p.Health()
		state := healthpb.HealthCheckResponse_SERVING
		if !status.Serving() {
			state = healthpb.HealthCheckResponse_NOT_SERVING
			overall = state
		}
		for _, service := range p.Manifest().Services {
			s.health.SetServingStatus(service, state)
		}

		id := p.ID()
		if was, seen := s.serving[id]; !seen || was != status.Serving() {
			s.logger.Infow("plugin health", "plugin", id, "status", status, "message", p.HealthMessage())
		}
		s.serving[id] = status.Serving()
	}
	s.health.SetServingStatus("", overall)
}

func loggingInterceptor(logger *zap.SugaredLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		started := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warnw("grpc call failed", "method", info.FullMethod, "duration", time.Since(started), "error", err)
		} else {
			logger.Debugw("grpc call", "method", info.FullMethod, "duration", time.Since(started))
		}
		return resp, err
	}
}
