package grpcadapter

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Unary 用 Recovery interceptor
func NewRecoveryUnaryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer recoverTo(logger, info.FullMethod, "unary", &err)
		return handler(ctx, req)
	}
}

// Streaming 用 Recovery interceptor
func NewRecoveryStreamInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		defer recoverTo(logger, info.FullMethod, "stream", &err)
		return handler(srv, ss)
	}
}

// recoverTo は defer から直接呼ぶこと（recover はそこでしか効かない）。
func recoverTo(logger *zap.Logger, method, kind string, err *error) {
	r := recover()
	if r == nil {
		return
	}
	logger.Error("panic recovered in "+kind+" handler",
		zap.Any("panic", r),
		zap.String("method", method),
		zap.ByteString("stacktrace", debug.Stack()),
	)
	*err = status.Error(codes.Internal, "internal error")
}
