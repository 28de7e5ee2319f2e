package api

import (
	"context"
	"net"

	"cosmossdk.io/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Serve starts a gRPC listener on addr exposing a standard health-check
// service so operators (and load balancers) can probe readiness the way
// the teacher's own `start` server does. The Chain/Ibc domain RPCs of
// spec §6 are dispatched in-process by the CLI against Service directly;
// wiring them onto the wire requires the protobuf schema generation spec
// §1 explicitly scopes out, so this listener serves only the health
// service; no Chain or Ibc service is registered on it.
func Serve(ctx context.Context, addr string, logger log.Logger) (func(), error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		logger.Info("grpc server listening", "addr", addr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server stopped", "err", err)
		}
	}()

	stop := func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
	}
	return stop, nil
}
