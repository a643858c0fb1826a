package integration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joffchandler/Sentinel-flight-ops/internal/db"
	"github.com/joffchandler/Sentinel-flight-ops/internal/ids"
)

// testDSNEnv points the suite at an existing server whose role may create
// databases. When unset the suite starts a throwaway container instead.
const testDSNEnv = "SS_TEST_DB_DSN"

const postgresImage = "postgres:16.4-alpine"

// harness owns the admin connection every per-test database is created from.
type harness struct {
	admin    *pgxpool.Pool
	base     *pgxpool.Config
	teardown func()
}

var (
	shared  *harness
	skipWhy error
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	h, err := startHarness(ctx)
	cancel()
	if err != nil {
		skipWhy = err
	} else {
		shared = h
	}

	code := m.Run()
	if shared != nil {
		shared.teardown()
	}
	os.Exit(code)
}

func startHarness(ctx context.Context) (*harness, error) {
	if dsn := strings.TrimSpace(os.Getenv(testDSNEnv)); dsn != "" {
		return connectHarness(ctx, dsn, func() {})
	}

	if _, err := exec.LookPath("docker"); err != nil {
		return nil, fmt.Errorf("%s unset and docker unavailable: %w", testDSNEnv, err)
	}
	id, addr, err := runContainer(ctx)
	if err != nil {
		return nil, err
	}
	remove := func() { _ = exec.Command("docker", "rm", "-f", id).Run() }

	h, err := connectHarness(ctx, "postgres://postgres:postgres@"+addr+"/postgres?sslmode=disable", remove)
	if err != nil {
		remove()
		return nil, err
	}
	return h, nil
}

func connectHarness(ctx context.Context, dsn string, release func()) (*harness, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse admin dsn: %w", err)
	}
	admin, err := pgxpool.NewWithConfig(ctx, cfg.Copy())
	if err != nil {
		return nil, fmt.Errorf("connect admin pool: %w", err)
	}
	if err := pingUntilReady(ctx, admin, 45*time.Second); err != nil {
		admin.Close()
		return nil, err
	}
	return &harness{
		admin: admin,
		base:  cfg,
		teardown: func() {
			admin.Close()
			release()
		},
	}, nil
}

// runContainer starts postgres on an ephemeral loopback port and returns the
// container id with its host:port.
func runContainer(ctx context.Context) (string, string, error) {
	out, err := exec.CommandContext(ctx, "docker", "run", "-d", "--rm",
		"-e", "POSTGRES_PASSWORD=postgres",
		"-p", "127.0.0.1::5432",
		postgresImage,
	).CombinedOutput()
	if err != nil {
		return "", "", fmt.Errorf("docker run: %w: %s", err, strings.TrimSpace(string(out)))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", "", errors.New("docker run returned no container id")
	}

	out, err = exec.CommandContext(ctx, "docker", "port", id, "5432/tcp").CombinedOutput()
	if err != nil {
		_ = exec.Command("docker", "rm", "-f", id).Run()
		return "", "", fmt.Errorf("docker port: %w: %s", err, strings.TrimSpace(string(out)))
	}
	// Output may list IPv4 and IPv6 bindings; the first line is the loopback one.
	addr, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	addr = strings.TrimSpace(addr)
	if !strings.Contains(addr, ":") {
		_ = exec.Command("docker", "rm", "-f", id).Run()
		return "", "", fmt.Errorf("unexpected docker port output %q", addr)
	}
	return id, addr, nil
}

func pingUntilReady(ctx context.Context, pool *pgxpool.Pool, within time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, within)
	defer cancel()

	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		err := pool.Ping(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready: %w", err)
		case <-tick.C:
		}
	}
}

// newTestDB creates a migrated, uniquely named database and returns a pool on
// it. The database is dropped when the test finishes.
func newTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()
	if shared == nil {
		if skipWhy == nil {
			skipWhy = errors.New("postgres unavailable")
		}
		t.Skipf("skipping integration test: %v", skipWhy)
	}

	name := "sentinelsky_test_" + strings.ToLower(ids.New())
	ident := pgx.Identifier{name}.Sanitize()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := shared.admin.Exec(ctx, "CREATE DATABASE "+ident); err != nil {
		t.Fatalf("create database %s: %v", name, err)
	}
	drop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, _ = shared.admin.Exec(ctx,
			`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()`, name)
		_, _ = shared.admin.Exec(ctx, "DROP DATABASE IF EXISTS "+ident)
	}

	cfg := shared.base.Copy()
	cfg.ConnConfig.Database = name
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		drop()
		t.Fatalf("connect %s: %v", name, err)
	}
	if err := db.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		drop()
		t.Fatalf("run migrations: %v", err)
	}

	return pool, func() {
		pool.Close()
		drop()
	}
}
