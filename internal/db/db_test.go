package db_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/db/dbtest"
)

func TestParseDriver(t *testing.T) {
	for in, want := range map[string]db.Driver{
		"":         db.DriverSQLite,
		"sqlite3":  db.DriverSQLite,
		"Postgres": db.DriverPostgres,
		"pgx":      db.DriverPostgres,
	} {
		got, err := db.ParseDriver(in)
		if err != nil || got != want {
			t.Errorf("ParseDriver(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := db.ParseDriver("mysql"); err == nil {
		t.Fatal("expected error for mysql")
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	h := dbtest.Open(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTx(ctx, h, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO categories (id,name,created_at) VALUES ($1,$2,$3)`, "c1", "Math", 1); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	var n int
	if err := h.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("rows = %d, want 0 after rollback", n)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	h := dbtest.Open(t)
	ctx := context.Background()
	ins := `INSERT INTO categories (id,name,created_at) VALUES ($1,$2,$3)`
	if _, err := h.ExecContext(ctx, ins, "c1", "Math", 1); err != nil {
		t.Fatal(err)
	}
	_, err := h.ExecContext(ctx, ins, "c2", "Math", 1)
	if !db.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if db.IsUniqueViolation(errors.New("other")) {
		t.Fatal("plain error reported as unique violation")
	}
}

func TestNullUnixRoundTrip(t *testing.T) {
	if db.NullUnix(nil) != nil {
		t.Fatal("nil time should map to NULL")
	}
	now := time.Unix(1700000000, 0).UTC()
	v := db.NullUnix(&now).(int64)
	back := db.TimePtr(sql.NullInt64{Int64: v, Valid: true})
	if back == nil || !back.Equal(now) {
		t.Fatalf("round trip = %v, want %v", back, now)
	}
	if db.TimePtr(sql.NullInt64{}) != nil {
		t.Fatal("invalid NullInt64 should be nil")
	}
}

func TestArgsIn(t *testing.T) {
	var args db.Args
	first := args.Add("x")
	in := args.In([]string{"a", "b", "c"})
	if first != "$1" || in != "($2,$3,$4)" || len(args) != 4 || args[3] != "c" {
		t.Fatalf("got %s %s %v", first, in, args)
	}
}
