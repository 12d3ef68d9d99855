package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hijjiri/todo-service/internal/observability"
	todo_usecase "github.com/hijjiri/todo-service/internal/usecase/todo"
)

const (
	HeaderRequestID = "X-Request-ID"

	tracerName = "github.com/hijjiri/todo-service/internal/interface/http"
)

// ----- request_id -----

type ctxKey string

const ctxKeyRequestID ctxKey = "request-id"

func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, rid)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(ctxKeyRequestID)
	s, ok := v.(string)
	return s, ok
}

func requestIDFrom(c *gin.Context) string {
	rid, _ := RequestIDFromContext(c.Request.Context())
	return rid
}

// RequestID は X-Request-ID を引き継ぐ（無ければ採番する）。レスポンスにも同じ値を返す。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" || len(rid) > 128 {
			rid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), rid))
		c.Header(HeaderRequestID, rid)
		c.Next()
	}
}

// ----- recovery -----

// Recovery は handler の panic を 500 に変換する。
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered in http handler",
					zap.Any("panic", r),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", requestIDFrom(c)),
					zap.ByteString("stacktrace", debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
					Error: "internal error",
					Kind:  string(todo_usecase.KindInternal),
				})
			}
		}()

		c.Next()
	}
}

// ----- timeout -----

// Timeout は各リクエストの ctx に deadline を付ける。
// - timeout <= 0 の場合は何もしない
// - 既に deadline がある場合は「より短い方」を優先
// - handler が何も書かずに deadline を過ぎたら 504 を返す
func Timeout(logger *zap.Logger, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) <= timeout {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			logger.Warn("request timeout",
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.Duration("timeout", timeout),
			)
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, errorResponse{
				Error: "request timeout",
				Kind:  kindTimeout,
			})
		}
	}
}

// ----- logging -----

// Logging はアクセスログ（method, route, status, duration, request_id）。
func Logging(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		}
		if rid := requestIDFrom(c); rid != "" {
			fields = append(fields, zap.String("request_id", rid))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if status >= http.StatusInternalServerError {
			logger.Error("http request", fields...)
		} else {
			logger.Info("http request", fields...)
		}
	}
}

// ----- metrics -----

func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// ----- tracing -----

// Tracing は受け取った traceparent を引き継いでサーバ span を張る。
func Tracing() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", name),
			),
		)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
