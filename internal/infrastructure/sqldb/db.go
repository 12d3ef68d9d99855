// Package sqldb は database/sql 上の Todo ストア（MySQL / PostgreSQL）。
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Dialect は SQL 方言ごとの差分（ドライバ名・プレースホルダ・INSERT の ID 取得）。
type Dialect struct {
	Name         string
	DriverName   string
	GooseDialect goose.Dialect
	// RETURNING が使えるか（PostgreSQL）。使えなければ LastInsertId（MySQL）。
	Returning bool
}

var (
	MySQL = Dialect{
		Name:         "mysql",
		DriverName:   "mysql",
		GooseDialect: goose.DialectMySQL,
	}
	Postgres = Dialect{
		Name:         "postgres",
		DriverName:   "pgx",
		GooseDialect: goose.DialectPostgres,
		Returning:    true,
	}
)

// DialectByName は DB_DRIVER の値から Dialect を引く。
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "mysql":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql dialect %q", name)
	}
}

// Rebind は "?" プレースホルダを方言に合わせて書き換える。
// クエリ中に文字列リテラルの "?" は書かない前提。
func (d Dialect) Rebind(query string) string {
	if !d.Returning {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ConnConfig は DSN を組み立てるための接続情報。
type ConnConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// DSN は方言ごとの接続文字列を返す。時刻は UTC で読み書きする。
func (d Dialect) DSN(cfg ConnConfig) string {
	if d.Returning {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     cfg.Host + ":" + cfg.Port,
			Path:     "/" + cfg.Name,
			RawQuery: "sslmode=disable&timezone=UTC",
		}
		return u.String()
	}
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4&timeout=5s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)
}

// PoolConfig はコネクションプールの上限。
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open は *sql.DB を開いてプールを設定する（接続確認は PingWithRetry で行う）。
func Open(d Dialect, cfg ConnConfig, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open(d.DriverName, d.DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Name, err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	return db, nil
}

// PingWithRetry は DB が起動するまで interval おきに ping する（docker compose 起動順対策）。
func PingWithRetry(ctx context.Context, db *sql.DB, logger *zap.Logger, maxAttempts int, interval time.Duration) error {
	for i := 1; i <= maxAttempts; i++ {
		if err := db.PingContext(ctx); err != nil {
			logger.Warn("failed to ping db",
				zap.Int("attempt", i),
				zap.Int("maxAttempts", maxAttempts),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
				continue
			}
		} else {
			return nil
		}
	}
	return fmt.Errorf("failed to ping db after %d attempts", maxAttempts)
}
