// Package config は環境変数から設定を読み込む。
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// duration は "10s" / "5m" / 秒数だけ（"10" → 10s）のどれでも受け付ける。
// cleanenv.Setter を実装しているので env タグでそのまま読める。
type duration time.Duration

func (d *duration) SetValue(data string) error {
	v, err := parseDuration(data)
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(s string) (time.Duration, error) {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("duration must be like 10s, 5m or a number of seconds: %w", err)
	}
	return d, nil
}

type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	GRPC      GRPCConfig
	DB        DBConfig
	Users     UsersConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	Env     string `env:"APP_ENV" env-default:"prod"`
	Version string `env:"VERSION" env-default:"dev"`
}

// Dev は開発用のロガーなどに切り替えるかどうか。
func (a AppConfig) Dev() bool { return a.Env == "dev" }

type HTTPConfig struct {
	Addr           string   `env:"HTTP_ADDR" env-default:":8080"`
	RequestTimeout duration `env:"HTTP_REQUEST_TIMEOUT" env-default:"5s"`
	ReadTimeout    duration `env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout   duration `env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout    duration `env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	// カンマ区切り。空なら CORS を付けない
	CORSAllowOrigins []string `env:"HTTP_CORS_ALLOW_ORIGINS" env-separator:","`
}

type GRPCConfig struct {
	// 空なら gRPC ヘルスサーバは起動しない
	Addr           string   `env:"GRPC_ADDR" env-default:":50051"`
	HealthInterval duration `env:"GRPC_HEALTH_INTERVAL" env-default:"10s"`
}

type DBConfig struct {
	// mysql / postgres / memory
	Driver      string   `env:"DB_DRIVER" env-default:"mysql"`
	Host        string   `env:"DB_HOST" env-default:"127.0.0.1"`
	Port        string   `env:"DB_PORT" env-default:"3306"`
	User        string   `env:"DB_USER" env-default:"root"`
	Password    string   `env:"DB_PASSWORD" env-default:"root"`
	Name        string   `env:"DB_NAME" env-default:"todos"`
	AutoMigrate bool     `env:"DB_AUTO_MIGRATE" env-default:"true"`
	MaxOpen     int      `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdle     int      `env:"DB_MAX_IDLE_CONNS" env-default:"25"`
	MaxLifetime duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	PingRetries int      `env:"DB_PING_RETRIES" env-default:"20"`
	PingBackoff duration `env:"DB_PING_INTERVAL" env-default:"3s"`
}

type UsersConfig struct {
	// 例: http://users:8000。デフォルトは持たない
	BaseURL       string   `env:"USERS_SERVICE_BASE_URL" env-required:"true"`
	Timeout       duration `env:"USERS_SERVICE_TIMEOUT" env-default:"2s"`
	RetryAttempts int      `env:"USERS_SERVICE_RETRY_ATTEMPTS" env-default:"1"`
}

type TelemetryConfig struct {
	TracesEnabled bool   `env:"OTEL_TRACES_ENABLED" env-default:"false"`
	ServiceName   string `env:"OTEL_SERVICE_NAME" env-default:"todo-service"`
}

var drivers = map[string]bool{"mysql": true, "postgres": true, "memory": true}

// Load は環境変数を読み、値の整合性まで確認する。
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	if !drivers[c.DB.Driver] {
		return fmt.Errorf("DB_DRIVER must be one of mysql, postgres, memory: got %q", c.DB.Driver)
	}
	if strings.TrimSpace(c.Users.BaseURL) == "" {
		return fmt.Errorf("USERS_SERVICE_BASE_URL is required")
	}
	if c.Users.Timeout.Duration() <= 0 {
		return fmt.Errorf("USERS_SERVICE_TIMEOUT must be positive")
	}
	if c.Users.RetryAttempts < 1 {
		return fmt.Errorf("USERS_SERVICE_RETRY_ATTEMPTS must be at least 1")
	}
	if c.HTTP.RequestTimeout.Duration() <= 0 {
		return fmt.Errorf("HTTP_REQUEST_TIMEOUT must be positive")
	}
	return nil
}
