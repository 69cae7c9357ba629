package flashcard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/db/dbtest"
	"github.com/mind-engage/mindengage-assess/internal/qbank"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
)

var (
	owner   = rbac.Viewer{ID: "t1", Role: rbac.RoleInstructor}
	other   = rbac.Viewer{ID: "t2", Role: rbac.RoleInstructor}
	student = rbac.Viewer{ID: "s1", Role: rbac.RoleStudent}
)

func seed(t *testing.T, status string) (*Store, qbank.Topic, qbank.Topic) {
	t.Helper()
	ctx := context.Background()
	h := dbtest.Open(t)
	qs := qbank.NewSQLStore(h)
	mk := func(kind qbank.Kind) qbank.Topic {
		p, err := qs.CreateProduct(ctx, qbank.Product{Kind: kind, Title: string(kind), Status: status, CreatedBy: owner.ID})
		if err != nil {
			t.Fatal(err)
		}
		ch, err := qs.CreateChapter(ctx, owner, qbank.Chapter{ProductID: p.ID, Title: "Ch"})
		if err != nil {
			t.Fatal(err)
		}
		tp, err := qs.CreateTopic(ctx, owner, qbank.Topic{ChapterID: ch.ID, Title: "Topic " + string(kind)})
		if err != nil {
			t.Fatal(err)
		}
		return tp
	}
	return NewStore(h, qs), mk(qbank.KindFlashcard), mk(qbank.KindQuestionBank)
}

func TestReviewTallies(t *testing.T) {
	s, topic, _ := seed(t, qbank.StatusPublished)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	s.WithClock(func() time.Time { return now })

	card, err := s.Create(ctx, owner, Flashcard{TopicID: topic.ID, FrontText: "hola", BackText: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	var p Progress
	for _, correct := range []bool{true, false, true} {
		now = now.Add(time.Minute)
		if p, err = s.Review(ctx, student, card.ID, correct); err != nil {
			t.Fatal(err)
		}
	}
	if p.TimesReviewed != 3 || p.CorrectCount != 2 || p.AccuracyRate != 66.67 {
		t.Fatalf("progress = %+v", p)
	}
	if !p.LastReviewed.Equal(now) {
		t.Fatalf("last reviewed = %v, want %v", p.LastReviewed, now)
	}
	mine, _ := s.MyProgress(ctx, student.ID)
	if len(mine) != 1 || mine[0].ID != p.ID {
		t.Fatalf("my progress = %+v", mine)
	}
}

func TestCreateRules(t *testing.T) {
	s, topic, bankTopic := seed(t, qbank.StatusDraft)
	ctx := context.Background()

	if _, err := s.Create(ctx, owner, Flashcard{TopicID: bankTopic.ID, FrontText: "a", BackText: "b"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("question bank topic err = %v", err)
	}
	if _, err := s.Create(ctx, owner, Flashcard{TopicID: topic.ID, FrontText: " ", BackText: "b"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("blank front err = %v", err)
	}
	if _, err := s.Create(ctx, other, Flashcard{TopicID: topic.ID, FrontText: "a", BackText: "b"}); err == nil {
		t.Fatal("non-owner created a card")
	}
	card, err := s.Create(ctx, owner, Flashcard{TopicID: topic.ID, FrontText: "a", BackText: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, student, card.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("draft card visible to student: %v", err)
	}
	if _, err := s.Review(ctx, student, card.ID, true); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("review of hidden card err = %v", err)
	}
	if err := s.Delete(ctx, student, card.ID); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("student delete err = %v", err)
	}
}

func TestStatsAndList(t *testing.T) {
	s, topic, _ := seed(t, qbank.StatusPublished)
	ctx := context.Background()
	for _, front := range []string{"uno", "dos", "tres"} {
		if _, err := s.Create(ctx, owner, Flashcard{TopicID: topic.ID, FrontText: front, BackText: "n"}); err != nil {
			t.Fatal(err)
		}
	}
	st, err := s.Stats(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 3 || st.ByTopic[topic.Title] != 3 || st.ByProduct["flashcard"] != 3 || len(st.Recent) != 3 {
		t.Fatalf("stats = %+v", st)
	}
	if st, _ := s.Stats(ctx, other); st.Total != 0 {
		t.Fatalf("other instructor total = %d", st.Total)
	}
	found, _ := s.List(ctx, student, Filter{Q: "DOS"})
	if len(found) != 1 || found[0].FrontText != "dos" {
		t.Fatalf("search = %+v", found)
	}
}
