// Package grpcadapter は gRPC のヘルスチェック面。Todo API 自体は HTTP で提供する。
package grpcadapter

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName はヘルスチェックで使うサービス名。"" はサーバ全体。
const ServiceName = "todo.v1.TodoService"

// NewServer は interceptor・ヘルス・reflection を登録した gRPC サーバを返す。
func NewServer(logger *zap.Logger, hs *health.Server) *grpc.Server {
	unaryInterceptors := []grpc.UnaryServerInterceptor{
		NewRecoveryUnaryInterceptor(logger),
		NewLoggingUnaryInterceptor(logger),
	}
	streamInterceptors := []grpc.StreamServerInterceptor{
		NewRecoveryStreamInterceptor(logger),
		NewLoggingStreamInterceptor(logger),
	}

	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(unaryInterceptors...),
		grpc.ChainStreamInterceptor(streamInterceptors...),
	)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	return s
}

// CheckFunc はストアが使えるかどうかを返す（例: db.PingContext）。
type CheckFunc func(ctx context.Context) error

// HealthReporter は定期的に check を実行し、結果でヘルスの状態を切り替える。
type HealthReporter struct {
	health   *health.Server
	check    CheckFunc
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	serving bool
}

func NewHealthReporter(hs *health.Server, check CheckFunc, interval time.Duration, logger *zap.Logger) *HealthReporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := interval / 2
	if timeout > 2*time.Second {
		timeout = 2 * time.Second
	}
	return &HealthReporter{
		health:   hs,
		check:    check,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run は ctx が終わるまで check を繰り返す。終了時は NOT_SERVING にしてから返る。
func (r *HealthReporter) Run(ctx context.Context) error {
	r.CheckOnce(ctx)

	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.health.Shutdown()
			return nil
		case <-t.C:
			r.CheckOnce(ctx)
		}
	}
}

// CheckOnce は 1 回だけ check して状態を反映する。
func (r *HealthReporter) CheckOnce(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if r.check != nil {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		err := r.check(cctx)
		cancel()
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if r.serving {
				r.logger.Warn("store health check failed", zap.Error(err))
			}
		}
	}

	serving := status == healthpb.HealthCheckResponse_SERVING
	if serving && !r.serving {
		r.logger.Info("store healthy, serving")
	}
	r.serving = serving

	r.health.SetServingStatus("", status)
	r.health.SetServingStatus(ServiceName, status)
}
