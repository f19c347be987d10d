package main

import (
	"context"
	"embed"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"BTCPayGateway/internal/config"
	"BTCPayGateway/internal/store"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal().Err(err).Msg("config load failed")
	}

	ctx := context.Background()
	pool, err := store.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("db connect failed")
	}
	defer pool.Close()

	if err := run(ctx, pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
}

func run(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		return err
	}

	files, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, file := range files {
		var applied bool
		if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename=$1)`, file).Scan(&applied); err != nil {
			return err
		}
		if applied {
			logger.Debug().Str("file", file).Msg("already applied")
			continue
		}
		if err := apply(ctx, pool, file); err != nil {
			return err
		}
		logger.Info().Str("file", file).Msg("applied migration")
	}
	return nil
}

// apply runs one migration file and records it in the same transaction,
// so a failed statement leaves no partial ledger entry.
func apply(ctx context.Context, pool *pgxpool.Pool, file string) error {
	data, err := migrationFS.ReadFile(file)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(data)); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, file); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
