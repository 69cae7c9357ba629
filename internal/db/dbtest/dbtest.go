// Package dbtest opens isolated in-memory SQLite databases for package tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mind-engage/mindengage-assess/internal/db"
)

// Open returns a fresh schema-initialised database that is closed when the
// test finishes.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	h, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}
