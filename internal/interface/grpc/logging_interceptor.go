package grpcadapter

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewLoggingUnaryInterceptor は method, code, duration をログに出す。
// ヘルスチェックは頻繁に呼ばれるので、成功は Debug に落とす。
func NewLoggingUnaryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		logRPC(logger, "gRPC unary request", info.FullMethod, time.Since(start), err)
		return resp, err
	}
}

// NewLoggingStreamInterceptor は Watch などの stream RPC 用。
func NewLoggingStreamInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()

		err := handler(srv, ss)

		logRPC(logger, "gRPC stream request", info.FullMethod, time.Since(start), err)
		return err
	}
}

func logRPC(logger *zap.Logger, msg, method string, d time.Duration, err error) {
	code := status.Code(err)
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("code", code.String()),
		zap.Duration("duration", d),
	}

	switch {
	case err == nil:
		logger.Debug(msg, fields...)
	case code == codes.Canceled:
		logger.Info(msg, fields...)
	default:
		logger.Error(msg, append(fields, zap.Error(err))...)
	}
}
