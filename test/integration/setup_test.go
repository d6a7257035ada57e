package integration

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/app"
	"github.com/hms/hms/internal/platform/db"
)

// testDB holds one migrated database per internal service.
type testDB struct {
	Pools   map[string]*pgxpool.Pool
	ConnStr string
}

// globalDB is initialised once in TestMain. It stays nil when no Postgres
// is available, and every test that needs it skips.
var globalDB *testDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	tdb, cleanup, err := setupDatabases(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration database unavailable, skipping database tests: %v\n", err)
	} else {
		globalDB = tdb
	}

	code := m.Run()
	if cleanup != nil {
		cleanup()
	}
	os.Exit(code)
}

// setupDatabases connects to HMS_INTEGRATION_DSN, or to a fresh container
// when it is unset, and creates and migrates one database per service.
func setupDatabases(ctx context.Context) (*testDB, func(), error) {
	connStr := os.Getenv("HMS_INTEGRATION_DSN")
	stop := func() {}
	if connStr == "" {
		var err error
		connStr, stop, err = startPostgresContainer(ctx)
		if err != nil {
			return nil, nil, err
		}
	}

	admin, err := db.NewPool(ctx, db.PoolConfig{URL: connStr, MaxConns: 2, AppName: "integration"})
	if err != nil {
		stop()
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	defer admin.Close()

	tdb := &testDB{Pools: make(map[string]*pgxpool.Pool), ConnStr: connStr}
	cleanup := func() {
		for _, p := range tdb.Pools {
			p.Close()
		}
		stop()
	}

	for _, service := range app.Services {
		name := databaseName(service)
		if _, err := admin.Exec(ctx, "DROP DATABASE IF EXISTS "+name); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("drop database %s: %w", name, err)
		}
		if _, err := admin.Exec(ctx, "CREATE DATABASE "+name); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("create database %s: %w", name, err)
		}

		dsn, err := withDatabase(connStr, name)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		pool, err := db.NewPool(ctx, db.PoolConfig{URL: dsn, MaxConns: 8, AppName: service})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect %s: %w", name, err)
		}
		tdb.Pools[service] = pool

		migrator := db.NewMigrator(pool, db.ServiceMigrationsDir(findMigrationsDir(), service))
		if _, err := migrator.Up(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("migrate %s: %w", service, err)
		}
	}
	return tdb, cleanup, nil
}

func requireDB(t *testing.T) *testDB {
	t.Helper()
	if globalDB == nil {
		t.Skip("no integration database available")
	}
	return globalDB
}

func databaseName(service string) string {
	return "hms_" + strings.ReplaceAll(service, "-", "_")
}

func withDatabase(connStr, name string) (string, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	u.Path = "/" + name
	return u.String(), nil
}

// findMigrationsDir locates the migrations directory relative to this test
// file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}
