// Package testutil provides shared test infrastructure: a mock Genkit model
// and embedder, and a disposable pgvector Postgres container with the full
// application schema applied.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDBContainer is a throwaway Postgres with pgvector and the migrated
// schema (site_pages, telegram_users, user_conversations, search function).
type TestDBContainer struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB starts the container and applies the migrations. Skips the
// test when Docker is not available. The returned cleanup must be called.
func SetupTestDB(t *testing.T) (*TestDBContainer, func()) {
	t.Helper()

	ctx := context.Background()

	var pgContainer *postgres.PostgresContainer
	var err error
	func() {
		// testcontainers panics (rather than returning an error) when no
		// Docker host can be found; fold that into the skip path below.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%v", r)
			}
		}()
		pgContainer, err = postgres.Run(ctx,
			"pgvector/pgvector:pg16",
			postgres.WithDatabase("exbordia_test"),
			postgres.WithUsername("exbordia_test"),
			postgres.WithPassword("test_password"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
	}()
	if err != nil {
		t.Skipf("could not start PostgreSQL container (is Docker available?): %v", err)
	}
	terminate := func() { _ = pgContainer.Terminate(context.Background()) }

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		terminate()
		t.Fatalf("connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		terminate()
		t.Fatalf("creating pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		terminate()
		t.Fatalf("pinging database: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		terminate()
		t.Fatalf("applying migrations: %v", err)
	}

	db := &TestDBContainer{Container: pgContainer, Pool: pool, ConnStr: connStr}
	return db, func() {
		pool.Close()
		terminate()
	}
}

// applyMigrations runs the up migrations directly, each in its own
// transaction. Tests exercise db.Migrate separately; here the SQL files are
// applied straight so testutil does not depend on the migration runner.
func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}

	files := []string{
		filepath.Join(root, "db/migrations/0001_init.up.sql"),
		filepath.Join(root, "db/migrations/0002_category_search.up.sql"),
	}
	for _, path := range files {
		sql, err := os.ReadFile(path) // #nosec G304 -- hardcoded paths
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("beginning tx for %s: %w", path, err)
		}
		if _, err := tx.Exec(ctx, string(sql)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("executing %s: %w", path, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("committing %s: %w", path, err)
		}
	}
	return nil
}

// projectRoot walks up from this file to the directory holding go.mod, so
// tests find the migration files from any package.
func projectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("cannot determine caller path")
	}

	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found above %s", filepath.Dir(filename))
		}
		dir = parent
	}
}
