package enrollment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/db/dbtest"
	"github.com/mind-engage/mindengage-assess/internal/qbank"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
	syncx "github.com/mind-engage/mindengage-assess/internal/sync"
)

var (
	owner   = rbac.Viewer{ID: "t1", Role: rbac.RoleInstructor}
	other   = rbac.Viewer{ID: "t2", Role: rbac.RoleInstructor}
	student = rbac.Viewer{ID: "s1", Role: rbac.RoleStudent}
	peer    = rbac.Viewer{ID: "s2", Role: rbac.RoleStudent}
)

type env struct {
	store  *Store
	events *syncx.EventRepo
	clock  *time.Time
	bank   qbank.Product
	cards  qbank.Product
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	h := dbtest.Open(t)
	qs := qbank.NewSQLStore(h)
	bank, err := qs.CreateProduct(ctx, qbank.Product{Kind: qbank.KindQuestionBank, Title: "Algebra",
		Status: qbank.StatusPublished, IsCertified: true, CreatedBy: owner.ID})
	if err != nil {
		t.Fatal(err)
	}
	cards, err := qs.CreateProduct(ctx, qbank.Product{Kind: qbank.KindFlashcard, Title: "Vocab",
		Status: qbank.StatusPublished, CreatedBy: owner.ID})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	e := &env{events: syncx.NewEventRepo(h), clock: &now, bank: bank, cards: cards}
	e.store = NewStore(h, e.events, nil).WithClock(func() time.Time { return *e.clock })
	return e
}

func TestProgressCompletesOnce(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	en, err := e.store.Enroll(ctx, student, e.bank.ID, "")
	if err != nil {
		t.Fatal(err)
	}

	first := *e.clock
	got, err := e.store.UpdateProgress(ctx, student, en.ID, 150)
	if err != nil {
		t.Fatal(err)
	}
	if got.Progress != 100 || got.Status != StatusCompleted || got.CompletionDate == nil || !got.CompletionDate.Equal(first) {
		t.Fatalf("after 150: %+v", got)
	}

	*e.clock = first.Add(24 * time.Hour)
	got, err = e.store.UpdateProgress(ctx, student, en.ID, 80)
	if err != nil {
		t.Fatal(err)
	}
	if got.Progress != 80 || got.Status != StatusCompleted || !got.CompletionDate.Equal(first) {
		t.Fatalf("after 80: %+v", got)
	}
	if !got.LastAccessed.Equal(*e.clock) {
		t.Fatalf("last accessed = %v", got.LastAccessed)
	}

	got, _ = e.store.UpdateProgress(ctx, student, en.ID, 100)
	if !got.CompletionDate.Equal(first) {
		t.Fatalf("completion re-dated: %v", got.CompletionDate)
	}

	evs, _ := e.events.Since(ctx, 0, 10)
	completions := 0
	for _, ev := range evs {
		if ev.Type == syncx.TypeEnrollmentCompleted {
			completions++
		}
	}
	if completions != 1 {
		t.Fatalf("completion events = %d", completions)
	}
}

func TestProgressClampsNegative(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	en, _ := e.store.Enroll(ctx, student, e.bank.ID, "")
	got, err := e.store.UpdateProgress(ctx, student, en.ID, -5)
	if err != nil {
		t.Fatal(err)
	}
	if got.Progress != 0 || got.Status != StatusActive {
		t.Fatalf("got %+v", got)
	}
	if _, err := e.store.UpdateProgress(ctx, peer, en.ID, 10); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("peer update err = %v", err)
	}
}

func TestEnrollConflictAndStatus(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	if _, err := e.store.Enroll(ctx, student, e.bank.ID, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := e.store.Enroll(ctx, student, e.bank.ID, ""); !errors.Is(err, apperr.ErrAlreadyEnrolled) {
		t.Fatalf("second enroll err = %v", err)
	}
	if _, err := e.store.Enroll(ctx, owner, e.cards.ID, student.ID); err != nil {
		t.Fatal(err)
	}

	st, err := e.store.CheckStatus(ctx, student.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := Status{QuestionBank: KindStatus{true, 1}, Flashcards: KindStatus{true, 1}}
	if st != want {
		t.Fatalf("status = %+v", st)
	}
	none, _ := e.store.CheckStatus(ctx, peer.ID)
	if none.QuestionBank.IsEnrolled || none.Flashcards.IsEnrolled {
		t.Fatalf("peer status = %+v", none)
	}

	mine, _ := e.store.List(ctx, student, ListOpts{Kind: qbank.KindFlashcard})
	if len(mine) != 1 || mine[0].ProductTitle != "Vocab" {
		t.Fatalf("list = %+v", mine)
	}
	if got, _ := e.store.List(ctx, other, ListOpts{}); len(got) != 0 {
		t.Fatalf("other instructor sees %d", len(got))
	}
}

func TestCertificateEligibility(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	bank, _ := e.store.Enroll(ctx, student, e.bank.ID, "")
	cards, _ := e.store.Enroll(ctx, student, e.cards.ID, "")

	if ok, _ := e.store.CertificateEligible(ctx, student, bank.ID); ok {
		t.Fatal("eligible before completion")
	}
	if _, err := e.store.MarkComplete(ctx, student, bank.ID); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("student self-complete err = %v", err)
	}
	if ok, _ := e.store.CertificateEligible(ctx, student, bank.ID); ok {
		t.Fatal("eligible after refused self-complete")
	}
	if _, err := e.store.MarkComplete(ctx, owner, bank.ID); err != nil {
		t.Fatal(err)
	}
	e.store.MarkComplete(ctx, owner, cards.ID)
	if ok, err := e.store.CertificateEligible(ctx, student, bank.ID); err != nil || !ok {
		t.Fatalf("certified product: %v %v", ok, err)
	}
	if ok, _ := e.store.CertificateEligible(ctx, student, cards.ID); ok {
		t.Fatal("uncertified product is eligible")
	}
}

func TestSaveSetsCompletionAndPayment(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	en, _ := e.store.Enroll(ctx, student, e.bank.ID, "")

	done, paid := StatusCompleted, true
	got, err := e.store.Save(ctx, owner, en.ID, Patch{Status: &done, IsPaid: &paid})
	if err != nil {
		t.Fatal(err)
	}
	if got.CompletionDate == nil || got.PaymentDate == nil || !got.IsActiveEnrollment() {
		t.Fatalf("saved = %+v", got)
	}
	bad := "archived"
	if _, err := e.store.Save(ctx, owner, en.ID, Patch{Status: &bad}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad status err = %v", err)
	}
	if err := e.store.Delete(ctx, student, en.ID); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("student delete err = %v", err)
	}
}
