// Package grpcapi serves the standard gRPC health service for probes and
// load balancers.
package grpcapi

import (
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HienH/sale-smell/internal/observability"
	"github.com/HienH/sale-smell/internal/observability/metrics"
)

// ServiceName is the health-checked service name.
const ServiceName = "sale_smell.TranscriptionService"

// Server wraps a gRPC server exposing health and reflection.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New creates the gRPC server and marks it serving.
func New() *Server {
	m := metrics.DefaultMetrics
	g := grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(m)),
	)

	// Register gRPC health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, healthServer)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	s := &Server{grpc: g, health: healthServer}
	s.SetServing(true)
	return s
}

// SetServing updates the reported health of the service.
func (s *Server) SetServing(serving bool) {
	st := grpc_health_v1.HealthCheckResponse_SERVING
	if !serving {
		st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server started")
	return s.grpc.Serve(lis)
}

// Stop marks the service not serving and stops gracefully.
func (s *Server) Stop() {
	log.Info().Msg("Shutting down gRPC server")
	s.SetServing(false)
	s.grpc.GracefulStop()
}
