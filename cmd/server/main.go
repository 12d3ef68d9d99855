package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"

	"github.com/hijjiri/todo-service/internal/config"
	domain_todo "github.com/hijjiri/todo-service/internal/domain/todo"
	"github.com/hijjiri/todo-service/internal/domain/user"
	"github.com/hijjiri/todo-service/internal/infrastructure/memory"
	"github.com/hijjiri/todo-service/internal/infrastructure/sqldb"
	"github.com/hijjiri/todo-service/internal/infrastructure/users"
	grpcadapter "github.com/hijjiri/todo-service/internal/interface/grpc"
	httpadapter "github.com/hijjiri/todo-service/internal/interface/http"
	"github.com/hijjiri/todo-service/internal/observability"
	todo_usecase "github.com/hijjiri/todo-service/internal/usecase/todo"
)

const shutdownTimeout = 10 * time.Second

//----------------------
// Logger
//----------------------

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

//----------------------
// Store の組み立て
//----------------------

type store struct {
	repo  domain_todo.Repository
	tx    domain_todo.Transactor
	db    *sql.DB // memory のときは nil
	close func() error
}

func openStore(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (*store, error) {
	if cfg.Driver == "memory" {
		logger.Warn("using in-memory store; data is lost on restart")
		return &store{
			repo:  memory.NewTodoRepository(),
			tx:    memory.NopTransactor{},
			close: func() error { return nil },
		}, nil
	}

	dialect, err := sqldb.DialectByName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sqldb.Open(dialect, sqldb.ConnConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Name:     cfg.Name,
	}, sqldb.PoolConfig{
		MaxOpenConns:    cfg.MaxOpen,
		MaxIdleConns:    cfg.MaxIdle,
		ConnMaxLifetime: cfg.MaxLifetime.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := sqldb.PingWithRetry(ctx, db, logger, cfg.PingRetries, cfg.PingBackoff.Duration()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect db: %w", err)
	}
	logger.Info("connected to database",
		zap.String("driver", dialect.Name),
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.String("db", cfg.Name),
	)

	if cfg.AutoMigrate {
		if err := sqldb.Migrate(ctx, db, dialect, logger); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &store{
		repo:  sqldb.NewTodoRepository(db, dialect, logger),
		tx:    sqldb.NewTxManager(db, logger),
		db:    db,
		close: db.Close,
	}, nil
}

//----------------------
// Users サービス
//----------------------

func newUserChecker(cfg config.UsersConfig, metrics *observability.Metrics, logger *zap.Logger) (user.Checker, error) {
	client, err := users.NewClient(cfg.BaseURL,
		users.WithTimeout(cfg.Timeout.Duration()),
		users.WithLogger(logger),
		users.WithOutcomeCounter(metrics.UserChecks),
	)
	if err != nil {
		return nil, err
	}
	if cfg.RetryAttempts <= 1 {
		return client, nil
	}

	policy := users.DefaultRetry
	policy.MaxAttempts = cfg.RetryAttempts
	return users.NewRetryingChecker(client, policy, logger), nil
}

//----------------------
// main
//----------------------

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// ---- Config 読み込み ----
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---- Logger ----
	logger, err := newLogger(cfg.App.Dev())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("loaded config",
		zap.String("env", cfg.App.Env),
		zap.String("version", cfg.App.Version),
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.String("grpc_addr", cfg.GRPC.Addr),
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("users_base_url", cfg.Users.BaseURL),
		zap.Duration("users_timeout", cfg.Users.Timeout.Duration()),
		zap.Int("users_retry_attempts", cfg.Users.RetryAttempts),
		zap.Duration("http_request_timeout", cfg.HTTP.RequestTimeout.Duration()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Tracing / Metrics ----
	shutdownTracing, err := observability.SetupTracing(observability.TracingConfig{
		Enabled:     cfg.Telemetry.TracesEnabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     cfg.App.Version,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("failed to flush traces", zap.Error(err))
		}
	}()
	metrics := observability.NewMetrics()

	// ---- Store ----
	st, err := openStore(ctx, cfg.DB, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}()

	// ---- Users サービス ----
	checker, err := newUserChecker(cfg.Users, metrics, logger)
	if err != nil {
		return fmt.Errorf("users client: %w", err)
	}

	// ---- Usecase ----
	uc := todo_usecase.New(st.repo, checker, st.tx, logger)

	// ---- HTTP ----
	routerCfg := httpadapter.RouterConfig{
		Logger:           logger,
		Metrics:          metrics,
		RequestTimeout:   cfg.HTTP.RequestTimeout.Duration(),
		CORSAllowOrigins: cfg.HTTP.CORSAllowOrigins,
	}
	var healthCheck grpcadapter.CheckFunc
	if st.db != nil {
		routerCfg.Ready = st.db
		healthCheck = st.db.PingContext
	}
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpadapter.NewRouter(uc, routerCfg),
		ReadTimeout:  cfg.HTTP.ReadTimeout.Duration(),
		WriteTimeout: cfg.HTTP.WriteTimeout.Duration(),
		IdleTimeout:  cfg.HTTP.IdleTimeout.Duration(),
	}

	// listen は goroutine を起動する前に済ませる
	var grpcLis net.Listener
	if cfg.GRPC.Addr != "" {
		grpcLis, err = net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.GRPC.Addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server is starting", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// ---- gRPC ヘルス ----
	if grpcLis != nil {
		hs := health.NewServer()
		grpcServer := grpcadapter.NewServer(logger, hs)
		reporter := grpcadapter.NewHealthReporter(hs, healthCheck, cfg.GRPC.HealthInterval.Duration(), logger)

		g.Go(func() error {
			return reporter.Run(gctx)
		})
		g.Go(func() error {
			logger.Info("gRPC health server is starting", zap.String("addr", cfg.GRPC.Addr))
			return grpcServer.Serve(grpcLis)
		})
		g.Go(func() error {
			<-gctx.Done()
			grpcServer.GracefulStop()
			return nil
		})
	}

	// ---- shutdown ----
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
