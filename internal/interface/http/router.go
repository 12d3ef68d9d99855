// Package httpadapter は Todo API の HTTP 面（gin）。
package httpadapter

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hijjiri/todo-service/internal/observability"
	todo_usecase "github.com/hijjiri/todo-service/internal/usecase/todo"
)

// Pinger は /readyz で使う。*sql.DB がそのまま満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

type RouterConfig struct {
	Logger           *zap.Logger
	Metrics          *observability.Metrics
	Ready            Pinger
	RequestTimeout   time.Duration
	CORSAllowOrigins []string
}

// NewRouter は middleware とルートを組み立てた gin.Engine を返す。
func NewRouter(uc todo_usecase.Usecase, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	useJSONFieldNames()

	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(RequestID(), Tracing(), Logging(logger))
	if cfg.Metrics != nil {
		r.Use(Metrics(cfg.Metrics))
	}
	r.Use(Recovery(logger))
	if len(cfg.CORSAllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORSAllowOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", HeaderRequestID},
			ExposeHeaders: []string{HeaderRequestID},
			MaxAge:        12 * time.Hour,
		}))
	}

	// health / metrics はタイムアウトの対象外
	r.GET("/healthz", healthz)
	r.GET("/readyz", readyz(cfg.Ready, logger))
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/", Timeout(logger, cfg.RequestTimeout))
	NewTodoHandler(uc, logger).register(api)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "route not found", Kind: "route_not_found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Kind: "method_not_allowed"})
	})

	return r
}

func healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func readyz(p Pinger, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := p.PingContext(ctx); err != nil {
			logger.Warn("readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
