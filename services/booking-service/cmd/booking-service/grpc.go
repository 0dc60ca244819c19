package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/config"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/grpcx"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/grpcserver"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startGrpcServer(ctx context.Context, logger *slog.Logger, a grpcserver.Availability) error {
	port, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv, health := grpcx.NewServer(logger)
	grpcserver.Register(srv, a)
	health.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		health.Shutdown()
		srv.GracefulStop()
	}()

	return nil
}
