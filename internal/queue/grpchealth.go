package queue

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthServer exposes a DBQueue's liveness over the standard gRPC
// health-checking protocol, for orchestrators (Kubernetes readiness/
// liveness probes, load balancers) that poll queue worker processes
// out of band. It reports NOT_SERVING until MarkServing is called and
// again after MarkNotServing; DBQueue's Run and Stop call neither. It
// uses the official health package rather
// than a hand-rolled admin RPC — no project-specific .proto exists in
// the pack for this concern, so the well-known health-check service is
// the idiomatic choice.
type GRPCHealthServer struct {
	logger *slog.Logger
	server *grpc.Server
	health *health.Server

	mu       sync.Mutex
	listener net.Listener
}

const queueServiceName = "commercestack.queue"

// NewGRPCHealthServer returns a health server reporting NOT_SERVING
// until MarkServing is called.
func NewGRPCHealthServer(logger *slog.Logger) *GRPCHealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	hs := health.NewServer()
	hs.SetServingStatus(queueServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	return &GRPCHealthServer{logger: logger, server: s, health: hs}
}

// Serve starts listening on addr until ctx is cancelled.
func (g *GRPCHealthServer) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("queue: health listen: %w", err)
	}
	g.mu.Lock()
	g.listener = lis
	g.mu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- g.server.Serve(lis) }()

	select {
	case <-ctx.Done():
		g.server.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// MarkServing flips the reported status to SERVING.
func (g *GRPCHealthServer) MarkServing() {
	g.health.SetServingStatus(queueServiceName, healthpb.HealthCheckResponse_SERVING)
}

// MarkNotServing flips the reported status to NOT_SERVING.
func (g *GRPCHealthServer) MarkNotServing() {
	g.health.SetServingStatus(queueServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
}
