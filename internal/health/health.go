// Package health serves the standard gRPC health-checking protocol
// (grpc.health.v1.Health), replacing the teacher's custom-generated
// AIServiceClient RPC surface (dropped, see DESIGN.md) with the
// ecosystem's own health.Server rather than a hand-rolled protocol, per
// SPEC_FULL.md 3.7.
package health

import (
	"log"
	"net"

	"github.com/andrewchi/mercury/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server wraps a grpc.Server exposing only the health service, plus the
// health.Server whose status SetServing sets.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	lis        net.Listener
}

// ServiceName is the single service this daemon reports health for.
// An empty string ("") also reports the overall server status, per the
// health protocol's convention.
const ServiceName = "mercury.engine"

// New builds a Server listening on cfg.ListenAddr. The service starts
// in NOT_SERVING until SetServing(true) is called once startup
// finishes (workers constructed, classifier archive loaded).
func New(cfg config.HealthConfig) (*Server, error) {
	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{grpcServer: gs, health: hs, lis: lis}, nil
}

// Serve blocks accepting connections until Stop is called.
func (s *Server) Serve() error {
	log.Printf("health: serving grpc.health.v1 on %s", s.lis.Addr())
	return s.grpcServer.Serve(s.lis)
}

// SetServing flips ServiceName (and the overall server) between SERVING
// and NOT_SERVING, for components to call as they come up or detect a
// fatal condition (e.g. the classifier archive fails to reload).
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
