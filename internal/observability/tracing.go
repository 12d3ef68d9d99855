// Package observability はトレースとメトリクスの初期化をまとめる。
package observability

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Version     string
	// 出力先。nil なら標準出力
	Writer io.Writer
}

// ShutdownFunc は溜まっている span を flush して終了する。
type ShutdownFunc func(ctx context.Context) error

// SetupTracing はグローバルな TracerProvider と Propagator を設定する。
// Enabled=false でも Propagator は入れる（受け取った traceparent を Users サービスへ引き継ぐ）。
func SetupTracing(cfg TracingConfig, logger *zap.Logger) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		logger.Info("tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	opts := []stdouttrace.Option{}
	if cfg.Writer != nil {
		opts = append(opts, stdouttrace.WithWriter(cfg.Writer))
	}
	exp, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing enabled",
		zap.String("exporter", "stdout"),
		zap.String("service_name", cfg.ServiceName),
	)
	return tp.Shutdown, nil
}
