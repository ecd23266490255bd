package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMigrationFilesSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_videos.sql", "0001_users.sql", "README.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("-- noop"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "0003_dir.sql"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	files, err := migrationFiles(dir)
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	if len(files) != 2 || files[0] != "0001_users.sql" || files[1] != "0002_videos.sql" {
		t.Fatalf("unexpected files %v", files)
	}

	if _, err := migrationFiles(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestMigrationBackoff(t *testing.T) {
	cases := map[int]time.Duration{
		1:  migrationBaseBackoff,
		2:  2 * migrationBaseBackoff,
		3:  4 * migrationBaseBackoff,
		10: migrationMaxBackoff,
	}
	for attempt, want := range cases {
		if got := migrationBackoff(attempt); got != want {
			t.Fatalf("attempt %d: got %s want %s", attempt, got, want)
		}
	}
}

func TestShouldRetryMigration(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("syntax error"), false},
		{"deadline", fmt.Errorf("exec: %w", context.DeadlineExceeded), true},
		{"tx closed", pgx.ErrTxClosed, true},
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
	}
	for _, tc := range cases {
		if got := shouldRetryMigration(tc.err); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestRunMigrationsRejectsUnknownCommand(t *testing.T) {
	if err := runMigrations(context.Background(), []string{"down"}); err == nil {
		t.Fatal("expected down to be rejected")
	}
}
