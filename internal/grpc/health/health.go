package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	ghealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"honeypot-lab/pkg/logger"
)

// ServiceName is the health service name reported alongside the overall status
const ServiceName = "honeypot.v1.Honeypot"

const defaultInterval = 10 * time.Second

// Check probes one dependency
type Check func(ctx context.Context) error

// Server serves the standard gRPC health protocol. Serving status follows the
// configured dependency checks.
type Server struct {
	grpc     *grpc.Server
	health   *ghealth.Server
	checks   map[string]Check
	interval time.Duration
	logger   *logger.Logger
}

// NewServer creates a gRPC server with only the health and reflection services
func NewServer(checks map[string]Check, log *logger.Logger) *Server {
	s := &Server{
		health:   ghealth.NewServer(),
		checks:   checks,
		interval: defaultInterval,
		logger:   log.WithComponent("grpc-health"),
	}
	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(s.logUnary))

	s.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	return s
}

// Refresh runs every check once and updates the serving status
func (s *Server) Refresh(ctx context.Context) bool {
	healthy := true
	for name, check := range s.checks {
		checkCtx, cancel := context.WithTimeout(ctx, s.interval/2)
		err := check(checkCtx)
		cancel()
		if err != nil {
			healthy = false
			s.logger.Warn().Err(err).Str("dependency", name).Msg("health check failed")
		}
	}

	if healthy {
		s.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
	} else {
		s.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

// Serve listens on port and serves until ctx is done
func (s *Server) Serve(ctx context.Context, port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port %d: %w", port, err)
	}

	go s.watch(ctx)
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}()

	s.logger.Info().Int("port", port).Msg("grpc health server listening")
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("grpc server stopped: %w", err)
	}
	return nil
}

// Health exposes the underlying health service, mainly for tests
func (s *Server) Health() grpc_health_v1.HealthServer {
	return s.health
}

func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

func (s *Server) setStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug().
		Str("method", info.FullMethod).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("grpc call")
	return resp, err
}
