package importer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/db/dbtest"
	"github.com/mind-engage/mindengage-assess/internal/flashcard"
	"github.com/mind-engage/mindengage-assess/internal/qbank"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
	syncx "github.com/mind-engage/mindengage-assess/internal/sync"
)

var owner = rbac.Viewer{ID: "t1", Role: rbac.RoleInstructor}

type fixture struct {
	im     *Importer
	qs     *qbank.SQLStore
	events *syncx.EventRepo
	bank   qbank.Topic
	cards  qbank.Topic
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	h := dbtest.Open(t)
	qs := qbank.NewSQLStore(h)
	topic := func(kind qbank.Kind) qbank.Topic {
		p, err := qs.CreateProduct(ctx, qbank.Product{Kind: kind, Title: string(kind), CreatedBy: owner.ID})
		if err != nil {
			t.Fatal(err)
		}
		ch, _ := qs.CreateChapter(ctx, owner, qbank.Chapter{ProductID: p.ID, Title: "Ch"})
		tp, err := qs.CreateTopic(ctx, owner, qbank.Topic{ChapterID: ch.ID, Title: "Tp"})
		if err != nil {
			t.Fatal(err)
		}
		return tp
	}
	events := syncx.NewEventRepo(h)
	return fixture{
		im:     New(qs, flashcard.NewStore(h, qs), events, nil),
		qs:     qs,
		events: events,
		bank:   topic(qbank.KindQuestionBank),
		cards:  topic(qbank.KindFlashcard),
	}
}

func TestImportQuestionsPartialFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	csv := `question_text,question_type,correct_answer,difficulty_level,answer1,answer2,answer3,tags
What is 2 + 2?,mcq,4,easy,3,4,5,"math,arithmetic"
Water is wet,true_false,True,EASY,,,,
Name a color,poll,red,medium,,,,
Explain gravity,essay,,impossible,,,,"[""physics""]"
Pick the second,mcq,[1],hard,x,y,,
`
	rep, err := f.im.Questions(ctx, owner, f.bank.ID, strings.NewReader(csv), "bank.csv")
	if err != nil {
		t.Fatal(err)
	}
	if rep.CreatedCount != 4 || len(rep.CreatedQuestions) != 4 {
		t.Fatalf("created = %d", rep.CreatedCount)
	}
	if len(rep.Errors) != 1 || !strings.HasPrefix(rep.Errors[0], "Row 4: ") {
		t.Fatalf("errors = %q", rep.Errors)
	}
	if !rep.Success || rep.Message != "Successfully imported 4 questions" {
		t.Fatalf("report = %+v", rep)
	}

	list, _ := f.qs.ListQuestions(ctx, owner, qbank.QuestionFilter{TopicID: f.bank.ID})
	byText := map[string]qbank.Question{}
	for _, q := range list {
		byText[q.Text] = q
	}
	if q := byText["What is 2 + 2?"]; q.CorrectAnswer != "[1]" || len(q.Tags) != 2 || q.Difficulty != "easy" {
		t.Errorf("mcq by text = %+v", q)
	}
	if q := byText["Explain gravity"]; q.Difficulty != "medium" || len(q.Tags) != 1 || q.Tags[0] != "physics" {
		t.Errorf("essay = %+v", q)
	}
	if q := byText["Pick the second"]; q.CorrectAnswer != "[1]" {
		t.Errorf("mcq by index = %+v", q)
	}

	evs, _ := f.events.Since(ctx, 0, 10)
	if len(evs) != 1 || evs[0].Type != syncx.TypeImportFinished {
		t.Fatalf("events = %+v", evs)
	}
}

func TestImportQuestionsRowRules(t *testing.T) {
	f := setup(t)
	csv := "question_text,question_type,correct_answer,difficulty_level,options\n" +
		"Lonely,mcq,a,easy,a\n" +
		"Legacy,mcq,b,easy,\"[\"\"a\"\",\"\"b\"\"]\"\n" +
		"Miss,mcq,z,easy,\"a,b\"\n"
	rep, err := f.im.Questions(context.Background(), owner, f.bank.ID, strings.NewReader(csv), "x.csv")
	if err != nil {
		t.Fatal(err)
	}
	if rep.CreatedCount != 1 || rep.CreatedQuestions[0].QuestionText != "Legacy" {
		t.Fatalf("created = %+v", rep.CreatedQuestions)
	}
	want := []string{"Row 2: MCQ questions must have at least 2 options", `Row 4: correct answer "z" matches none of the options`}
	if len(rep.Errors) != 2 || rep.Errors[0] != want[0] || rep.Errors[1] != want[1] {
		t.Fatalf("errors = %q", rep.Errors)
	}
}

func TestImportRejectsBadFiles(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.im.Questions(ctx, owner, f.bank.ID, strings.NewReader("question_text,question_type\nx,mcq\n"), "a.csv")
	if !errors.Is(err, apperr.ErrValidation) || !strings.Contains(err.Error(), "correct_answer, difficulty_level") {
		t.Fatalf("missing columns err = %v", err)
	}
	if _, err := f.im.Questions(ctx, owner, f.bank.ID, strings.NewReader("x"), "a.pdf"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("pdf err = %v", err)
	}
	if _, err := f.im.Questions(ctx, owner, f.cards.ID, strings.NewReader(""), "a.csv"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("flashcard topic err = %v", err)
	}
	stranger := rbac.Viewer{ID: "t9", Role: rbac.RoleInstructor}
	if _, err := f.im.Flashcards(ctx, stranger, f.cards.ID, strings.NewReader(""), "a.csv"); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("stranger err = %v", err)
	}
}

func TestQuestionTemplateRoundTrip(t *testing.T) {
	f := setup(t)
	var buf bytes.Buffer
	if err := QuestionTemplate(&buf); err != nil {
		t.Fatal(err)
	}
	rep, err := f.im.Questions(context.Background(), owner, f.bank.ID, &buf, "template.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if rep.CreatedCount != 2 || len(rep.Errors) != 0 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestImportFlashcards(t *testing.T) {
	f := setup(t)
	var buf bytes.Buffer
	if err := FlashcardTemplate(&buf); err != nil {
		t.Fatal(err)
	}
	rep, err := f.im.Flashcards(context.Background(), owner, f.cards.ID, &buf, "cards.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if rep.CreatedCount != 1 || rep.CreatedFlashcards[0].FrontText != "Capital of France?" {
		t.Fatalf("report = %+v", rep)
	}

	long := strings.Repeat("a", 60)
	csv := "front_text,back_text\n" + long + ",b\n,missing front\n"
	rep, err = f.im.Flashcards(context.Background(), owner, f.cards.ID, strings.NewReader(csv), "cards.csv")
	if err != nil {
		t.Fatal(err)
	}
	if rep.CreatedFlashcards[0].FrontText != strings.Repeat("a", 50)+"..." {
		t.Fatalf("preview = %q", rep.CreatedFlashcards[0].FrontText)
	}
	if len(rep.Errors) != 1 || rep.Errors[0] != "Row 3: Both front_text and back_text are required" {
		t.Fatalf("errors = %q", rep.Errors)
	}
}

func TestSplitList(t *testing.T) {
	cases := map[string][]string{
		"":                {},
		"a, b ,,c":        {"a", "b", "c"},
		`["x","y"]`:       {"x", "y"},
		`[broken, "json"`: {"broken", "json"},
	}
	for in, want := range cases {
		got := splitList(in)
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Errorf("splitList(%q) = %q, want %q", in, got, want)
		}
	}
}
