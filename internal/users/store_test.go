package users

import (
	"context"
	"errors"
	"testing"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/db/dbtest"
)

func TestBulkUpsertAndAuthenticate(t *testing.T) {
	s := NewStore(dbtest.Open(t))
	ctx := context.Background()

	ins, upd, err := s.BulkUpsert(ctx, []Row{
		{ID: "s1", Username: "alice", Role: "student", Password: "pw1"},
		{ID: "i1", Username: "bob", Role: "Instructor", Password: "pw2"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ins != 2 || upd != 0 {
		t.Fatalf("inserted=%d updated=%d", ins, upd)
	}

	ins, upd, err = s.BulkUpsert(ctx, []Row{{ID: "s1", Username: "alice", Role: "student"}})
	if err != nil || ins != 0 || upd != 1 {
		t.Fatalf("second upsert: %d %d %v", ins, upd, err)
	}

	u, err := s.Authenticate(ctx, "bob", "pw2")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "i1" || u.Role != "instructor" {
		t.Fatalf("user = %+v", u)
	}
	if _, err := s.Authenticate(ctx, "bob", "wrong"); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("wrong password err = %v", err)
	}
}

func TestBulkUpsertRejectsBadRows(t *testing.T) {
	s := NewStore(dbtest.Open(t))
	ctx := context.Background()
	if _, _, err := s.BulkUpsert(ctx, []Row{{Username: "x", Role: "teacher", Password: "p"}}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("unknown role err = %v", err)
	}
	if _, _, err := s.BulkUpsert(ctx, []Row{{Username: "y", Role: "student"}}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("missing password err = %v", err)
	}
	list, err := s.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("failed batch must not insert, got %d users", len(list))
	}
}

func TestChangePassword(t *testing.T) {
	s := NewStore(dbtest.Open(t))
	ctx := context.Background()
	if _, _, err := s.BulkUpsert(ctx, []Row{{ID: "u1", Username: "carol", Password: "old"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.ChangePassword(ctx, "u1", "nope", "new"); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("err = %v", err)
	}
	if err := s.ChangePassword(ctx, "u1", "old", "new"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Authenticate(ctx, "carol", "new"); err != nil {
		t.Fatal(err)
	}
	role, err := s.RoleOf(ctx, "carol")
	if err != nil || role != "student" {
		t.Fatalf("role = %q, %v", role, err)
	}
}
