package qbank

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/db/dbtest"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
)

var (
	instructor = rbac.Viewer{ID: "i1", Role: rbac.RoleInstructor}
	other      = rbac.Viewer{ID: "i2", Role: rbac.RoleInstructor}
	student    = rbac.Viewer{ID: "s1", Role: rbac.RoleStudent}
	admin      = rbac.Viewer{ID: "a1", Role: rbac.RoleAdmin}
)

func seedTopic(t *testing.T, s *SQLStore, kind Kind, status string) (Product, Topic) {
	t.Helper()
	ctx := context.Background()
	p, err := s.CreateProduct(ctx, Product{Kind: kind, Title: "Algebra", Status: status, CreatedBy: instructor.ID})
	if err != nil {
		t.Fatal(err)
	}
	ch, err := s.CreateChapter(ctx, instructor, Chapter{ProductID: p.ID, Title: "Linear"})
	if err != nil {
		t.Fatal(err)
	}
	tp, err := s.CreateTopic(ctx, instructor, Topic{ChapterID: ch.ID, Title: "Equations"})
	if err != nil {
		t.Fatal(err)
	}
	return p, tp
}

func TestProductVisibilityByRole(t *testing.T) {
	s := NewSQLStore(dbtest.Open(t))
	ctx := context.Background()
	if _, err := s.CreateProduct(ctx, Product{Kind: KindQuestionBank, Title: "Draft", CreatedBy: "i1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateProduct(ctx, Product{Kind: KindFlashcard, Title: "Live", Status: StatusPublished, CreatedBy: "i2"}); err != nil {
		t.Fatal(err)
	}

	count := func(v rbac.Viewer, f ProductFilter) int {
		list, err := s.ListProducts(ctx, v, f)
		if err != nil {
			t.Fatal(err)
		}
		return len(list)
	}
	if n := count(admin, ProductFilter{}); n != 2 {
		t.Errorf("admin sees %d", n)
	}
	if n := count(instructor, ProductFilter{}); n != 1 {
		t.Errorf("instructor sees %d", n)
	}
	if n := count(student, ProductFilter{}); n != 1 {
		t.Errorf("student sees %d", n)
	}
	if n := count(student, ProductFilter{Kind: KindQuestionBank}); n != 0 {
		t.Errorf("student question banks = %d", n)
	}
	if n := count(student, ProductFilter{EnrolledOnly: true}); n != 0 {
		t.Errorf("student enrolled-only = %d", n)
	}
}

func TestChapterAndTopicOrdering(t *testing.T) {
	s := NewSQLStore(dbtest.Open(t))
	ctx := context.Background()
	p, _ := seedTopic(t, s, KindQuestionBank, StatusDraft)

	ch2, err := s.CreateChapter(ctx, instructor, Chapter{ProductID: p.ID, Title: "Quadratics"})
	if err != nil {
		t.Fatal(err)
	}
	if ch2.Order != 2 {
		t.Fatalf("order = %d, want 2", ch2.Order)
	}
	if _, err := s.CreateChapter(ctx, instructor, Chapter{ProductID: p.ID, Title: "Dup", Order: 2}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("duplicate order err = %v", err)
	}
	if _, err := s.CreateChapter(ctx, other, Chapter{ProductID: p.ID, Title: "Intruder"}); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("non-owner err = %v", err)
	}
	chs, err := s.ListChapters(ctx, instructor, p.ID)
	if err != nil || len(chs) != 2 || chs[0].Order != 1 {
		t.Fatalf("chapters = %+v, %v", chs, err)
	}
}

func TestQuestionValidation(t *testing.T) {
	s := NewSQLStore(dbtest.Open(t))
	ctx := context.Background()
	_, tp := seedTopic(t, s, KindQuestionBank, StatusDraft)

	cases := []Question{
		{TopicID: tp.ID, Text: "2+2?", Type: "mcq", Options: []string{"4"}, CorrectAnswer: "[0]"},
		{TopicID: tp.ID, Text: "2+2?", Type: "mcq", Options: []string{"3", "4"}, CorrectAnswer: "B"},
		{TopicID: tp.ID, Text: "2+2?", Type: "mcq", Options: []string{"3", "4"}, CorrectAnswer: "[5]"},
		{TopicID: tp.ID, Text: "2+2?", Type: "mcq", Options: []string{"3", "4"}, CorrectAnswer: "[]"},
		{TopicID: tp.ID, Text: "Sky is blue", Type: "true_false"},
		{TopicID: tp.ID, Text: "2+2?", Type: "riddle"},
		{TopicID: tp.ID, Text: "2+2?", Type: "essay", Difficulty: "brutal"},
		{TopicID: tp.ID, Text: "", Type: "essay"},
	}
	for i, q := range cases {
		if _, err := s.CreateQuestion(ctx, instructor, q); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("case %d: err = %v, want validation", i, err)
		}
	}

	q, err := s.CreateQuestion(ctx, instructor, Question{
		TopicID: tp.ID, Text: "Pick primes", Type: "mcq",
		Options: []string{"2", "4", "5"}, CorrectAnswer: "[0,2]", Tags: []string{"primes"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if q.Difficulty != DifficultyMedium {
		t.Fatalf("difficulty default = %q", q.Difficulty)
	}
}

func TestStudentsSeePublishedQuestionsWithoutKeys(t *testing.T) {
	s := NewSQLStore(dbtest.Open(t))
	ctx := context.Background()
	_, draftTopic := seedTopic(t, s, KindQuestionBank, StatusDraft)

	q, err := s.CreateQuestion(ctx, instructor, Question{TopicID: draftTopic.ID, Text: "Sky is blue", Type: "true_false", CorrectAnswer: "true"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.QuestionFor(ctx, student, q.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("draft question visible to student: %v", err)
	}

	pubProduct, err := s.CreateProduct(ctx, Product{Kind: KindQuestionBank, Title: "Pub", Status: StatusPublished, CreatedBy: instructor.ID, CourseID: ""})
	if err != nil {
		t.Fatal(err)
	}
	ch, _ := s.CreateChapter(ctx, instructor, Chapter{ProductID: pubProduct.ID, Title: "C"})
	tp, _ := s.CreateTopic(ctx, instructor, Topic{ChapterID: ch.ID, Title: "T"})
	q2, err := s.CreateQuestion(ctx, instructor, Question{TopicID: tp.ID, Text: "Water is wet", Type: "true_false", CorrectAnswer: "true"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.QuestionFor(ctx, student, q2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CorrectAnswer != "" {
		t.Fatal("student must not receive the answer key")
	}

	list, err := s.ListQuestions(ctx, student, QuestionFilter{})
	if err != nil || len(list) != 1 {
		t.Fatalf("student list = %d, %v", len(list), err)
	}
	st, err := s.QuestionStats(ctx, instructor)
	if err != nil || st.Total != 2 || st.ByType["true_false"] != 2 {
		t.Fatalf("stats = %+v, %v", st, err)
	}
}

func TestQuestionsRejectFlashcardTopics(t *testing.T) {
	s := NewSQLStore(dbtest.Open(t))
	_, tp := seedTopic(t, s, KindFlashcard, StatusDraft)
	_, err := s.CreateQuestion(context.Background(), instructor, Question{TopicID: tp.ID, Text: "x", Type: "essay"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
}

func TestUpdateAndMedia(t *testing.T) {
	s := NewSQLStore(dbtest.Open(t))
	ctx := context.Background()
	_, tp := seedTopic(t, s, KindQuestionBank, StatusDraft)
	q, err := s.CreateQuestion(ctx, instructor, Question{TopicID: tp.ID, Text: "Explain", Type: "essay"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetMedia(ctx, instructor, q.ID, MediaImage, "questions/x.png"); err != nil {
		t.Fatal(err)
	}
	q.Text = "Explain gravity"
	q.Difficulty = DifficultyHard
	if _, err := s.UpdateQuestion(ctx, other, q); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("non-author update err = %v", err)
	}
	upd, err := s.UpdateQuestion(ctx, instructor, q)
	if err != nil {
		t.Fatal(err)
	}
	if upd.ImageKey != "questions/x.png" || upd.Difficulty != DifficultyHard {
		t.Fatalf("updated = %+v", upd)
	}
	if err := s.SetMedia(ctx, instructor, q.ID, "pdf", "x"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad media kind err = %v", err)
	}
}

func TestPracticeFiltersAndUsage(t *testing.T) {
	h := dbtest.Open(t)
	s := NewSQLStore(h)
	ctx := context.Background()
	p1, t1 := seedTopic(t, s, KindQuestionBank, StatusPublished)
	p2, t2 := seedTopic(t, s, KindQuestionBank, StatusPublished)
	_, t3 := seedTopic(t, s, KindQuestionBank, StatusPublished)

	ids := map[string]string{}
	for _, c := range []struct{ topic, text string }{{t1.ID, "a"}, {t1.ID, "b"}, {t2.ID, "c"}, {t3.ID, "d"}} {
		q, err := s.CreateQuestion(ctx, instructor, Question{TopicID: c.topic, Text: c.text, Type: "essay"})
		if err != nil {
			t.Fatal(err)
		}
		ids[c.text] = q.ID
	}
	texts := func(f QuestionFilter) string {
		t.Helper()
		list, err := s.ListQuestions(ctx, student, f)
		if err != nil {
			t.Fatal(err)
		}
		var out []string
		for _, q := range list {
			out = append(out, q.Text)
		}
		sort.Strings(out)
		return strings.Join(out, ",")
	}
	if got := texts(QuestionFilter{ProductIDs: []string{p1.ID, p2.ID}}); got != "a,b,c" {
		t.Errorf("product__in = %q", got)
	}
	if got := texts(QuestionFilter{TopicIDs: []string{t2.ID, t3.ID}}); got != "c,d" {
		t.Errorf("topic__in = %q", got)
	}
	if got := texts(QuestionFilter{ChapterIDs: []string{t1.ChapterID}}); got != "a,b" {
		t.Errorf("chapter__in = %q", got)
	}
	if got := texts(QuestionFilter{CreatedBy: "nobody"}); got != "" {
		t.Errorf("created_by = %q", got)
	}
	if got := texts(QuestionFilter{Random: true}); got != "a,b,c,d" {
		t.Errorf("random = %q", got)
	}
	if list, _ := s.ListQuestions(ctx, student, QuestionFilter{Random: true, Limit: 2}); len(list) != 2 {
		t.Errorf("random limit = %d", len(list))
	}

	for i, a := range []string{"x1", "x2"} {
		if _, err := h.ExecContext(ctx, `INSERT INTO assessments (id,title,created_at,updated_at) VALUES ($1,$2,0,0)`, a, a); err != nil {
			t.Fatal(err)
		}
		qs := []string{ids["c"]}
		if i == 0 {
			qs = append(qs, ids["a"])
		}
		for _, q := range qs {
			if _, err := h.ExecContext(ctx, `INSERT INTO assessment_questions (id,assessment_id,question_id) VALUES ($1,$2,$3)`,
				a+q, a, q); err != nil {
				t.Fatal(err)
			}
		}
	}
	st, err := s.QuestionStats(ctx, instructor)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.MostUsed) != 4 || st.MostUsed[0].ID != ids["c"] || st.MostUsed[0].UsageCount != 2 ||
		st.MostUsed[1].ID != ids["a"] || st.MostUsed[1].UsageCount != 1 || st.MostUsed[3].UsageCount != 0 {
		t.Fatalf("most used = %+v", st.MostUsed)
	}
}
