package syncx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/db/dbtest"
)

func TestAppendAndSince(t *testing.T) {
	h := dbtest.Open(t)
	r := NewEventRepo(h)
	ctx := context.Background()

	if err := r.Append(ctx, nil, TypeSubmissionSubmitted, "sub-1", map[string]any{"score": 7}); err != nil {
		t.Fatal(err)
	}
	err := db.WithTx(ctx, h, func(tx *sql.Tx) error {
		return r.Append(ctx, tx, TypeSubmissionGraded, "sub-1", map[string]any{"score": 9})
	})
	if err != nil {
		t.Fatal(err)
	}

	all, err := r.Since(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Type != TypeSubmissionSubmitted || string(all[1].Data) != `{"score":9}` {
		t.Fatalf("events = %+v", all)
	}
	rest, _ := r.Since(ctx, all[0].Seq, 10)
	if len(rest) != 1 || rest[0].Type != TypeSubmissionGraded {
		t.Fatalf("since first = %+v", rest)
	}
}
