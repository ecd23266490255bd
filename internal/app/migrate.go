package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamsafe/backend/internal/config"
	"github.com/streamsafe/backend/internal/db"
)

const (
	migrationMaxAttempts = 3
	migrationBaseBackoff = 100 * time.Millisecond
	migrationMaxBackoff  = 3 * time.Second
)

var retryablePgErrorCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

func runMigrations(ctx context.Context, args []string) error {
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}
	if command != "up" && command != "status" {
		return fmt.Errorf("unknown migrate command %q", command)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	dir, err := resolveDir(cfg.MigrationDir)
	if err != nil {
		return err
	}
	files, err := migrationFiles(dir)
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		return err
	}

	if command == "status" {
		for _, name := range files {
			mark := " "
			if _, ok := applied[name]; ok {
				mark = "x"
			}
			fmt.Printf("[%s] %s\n", mark, name)
		}
		return nil
	}

	pending := 0
	for _, name := range files {
		if _, ok := applied[name]; ok {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := applyMigrationWithRetry(ctx, logger, conn, name, string(contents)); err != nil {
			return err
		}
		logger.Info("applied migration", "name", name)
		pending++
	}
	if pending == 0 {
		logger.Info("database schema is up to date", "migrations", len(files))
	}
	return nil
}

func resolveDir(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return filepath.Join(wd, dir), nil
}

// migrationFiles lists the .sql files in dir in apply order.
func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func appliedMigrations(ctx context.Context, conn *pgxpool.Conn) (map[string]struct{}, error) {
	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
                version TEXT PRIMARY KEY,
                applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("fetch applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

func applyMigrationWithRetry(ctx context.Context, logger *slog.Logger, conn *pgxpool.Conn, name, contents string) error {
	var lastErr error
	for attempt := 0; attempt < migrationMaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, migrationBackoff(attempt)); err != nil {
				return err
			}
		}

		lastErr = applyMigration(ctx, conn, name, contents)
		if lastErr == nil {
			return nil
		}
		if !shouldRetryMigration(lastErr) {
			return lastErr
		}
		logger.Warn("transient migration error", "name", name, "attempt", attempt+1, "maxAttempts", migrationMaxAttempts, "error", lastErr)
	}
	return fmt.Errorf("apply migration %s: exceeded %d attempts: %w", name, migrationMaxAttempts, lastErr)
}

func applyMigration(ctx context.Context, conn *pgxpool.Conn, name, contents string) error {
	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin migration transaction for %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, contents); err != nil {
		return fmt.Errorf("apply migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

// migrationBackoff doubles from migrationBaseBackoff, capped at migrationMaxBackoff.
func migrationBackoff(attempt int) time.Duration {
	backoff := migrationBaseBackoff << (attempt - 1)
	if backoff <= 0 || backoff > migrationMaxBackoff {
		return migrationMaxBackoff
	}
	return backoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func shouldRetryMigration(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, pgx.ErrTxClosed) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := retryablePgErrorCodes[pgErr.Code]
		return ok
	}
	return false
}
