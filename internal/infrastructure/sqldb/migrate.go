package sqldb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations
var migrations embed.FS

// Migrate は埋め込みのマイグレーションを最新まで当てる。
func Migrate(ctx context.Context, db *sql.DB, d Dialect, logger *zap.Logger) error {
	dir, err := fs.Sub(migrations, "migrations/"+d.Name)
	if err != nil {
		return fmt.Errorf("migrations for %s: %w", d.Name, err)
	}

	provider, err := goose.NewProvider(d.GooseDialect, db, dir)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	for _, res := range results {
		logger.Info("applied migration",
			zap.String("source", res.Source.Path),
			zap.Duration("duration", res.Duration),
		)
	}
	return nil
}
