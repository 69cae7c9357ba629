// Package importer creates questions and flashcards in bulk from uploaded
// spreadsheets. Rows are inserted one by one; a bad row is reported and
// skipped without affecting the others.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/flashcard"
	"github.com/mind-engage/mindengage-assess/internal/grading"
	"github.com/mind-engage/mindengage-assess/internal/qbank"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
	syncx "github.com/mind-engage/mindengage-assess/internal/sync"
)

// RowError is a rejected data row. Row is the 1-based sheet row, so the
// first data row is 2.
type RowError struct {
	Row int
	Msg string
}

func (e RowError) Error() string { return fmt.Sprintf("Row %d: %s", e.Row, e.Msg) }

type CreatedQuestion struct {
	ID           string `json:"id"`
	QuestionText string `json:"question_text"`
}

type CreatedFlashcard struct {
	ID        string `json:"id"`
	FrontText string `json:"front_text"`
}

type Report struct {
	Success           bool               `json:"success"`
	Message           string             `json:"message"`
	CreatedCount      int                `json:"created_count"`
	Errors            []string           `json:"errors"`
	CreatedQuestions  []CreatedQuestion  `json:"created_questions,omitempty"`
	CreatedFlashcards []CreatedFlashcard `json:"created_flashcards,omitempty"`
}

func (r *Report) reject(e RowError) { r.Errors = append(r.Errors, e.Error()) }

type Questions interface {
	OwnedTopicProduct(ctx context.Context, v rbac.Viewer, topicID string) (qbank.Product, error)
	CreateQuestion(ctx context.Context, v rbac.Viewer, q qbank.Question) (qbank.Question, error)
}

type Flashcards interface {
	Create(ctx context.Context, v rbac.Viewer, f flashcard.Flashcard) (flashcard.Flashcard, error)
}

type EventLog interface {
	Append(ctx context.Context, q db.Querier, typ, key string, data any) error
}

type Importer struct {
	questions  Questions
	flashcards Flashcards
	events     EventLog
	log        *slog.Logger
}

func New(q Questions, f Flashcards, events EventLog, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{questions: q, flashcards: f, events: events, log: log}
}

var (
	questionColumns  = []string{"question_text", "question_type", "correct_answer", "difficulty_level"}
	flashcardColumns = []string{"front_text", "back_text"}
	answerColumns    = []string{"answer1", "answer2", "answer3", "answer4", "answer5"}
)

// Questions imports a question sheet into a question-bank topic.
func (im *Importer) Questions(ctx context.Context, v rbac.Viewer, topicID string, r io.Reader, filename string) (Report, error) {
	p, err := im.questions.OwnedTopicProduct(ctx, v, topicID)
	if err != nil {
		return Report{}, err
	}
	if p.Kind != qbank.KindQuestionBank {
		return Report{}, apperr.Validation("topic %s does not belong to a question bank", topicID)
	}
	t, err := readTable(r, filename)
	if err != nil {
		return Report{}, err
	}
	if miss := t.missing(questionColumns...); len(miss) > 0 {
		return Report{}, apperr.Validation("Missing required columns: %s", strings.Join(miss, ", "))
	}

	rep := Report{Errors: []string{}, CreatedQuestions: []CreatedQuestion{}}
	for i, row := range t.rows {
		if blank(row) {
			continue
		}
		q, rowErr := questionFromRow(t, row, i+2)
		if rowErr != nil {
			rep.reject(*rowErr)
			continue
		}
		q.TopicID = topicID
		created, err := im.questions.CreateQuestion(ctx, v, q)
		if err != nil {
			if ctx.Err() != nil {
				return Report{}, ctx.Err()
			}
			rep.reject(RowError{Row: i + 2, Msg: err.Error()})
			continue
		}
		rep.CreatedQuestions = append(rep.CreatedQuestions, CreatedQuestion{ID: created.ID, QuestionText: preview(created.Text)})
	}
	rep.CreatedCount = len(rep.CreatedQuestions)
	rep.Success = true
	rep.Message = fmt.Sprintf("Successfully imported %d questions", rep.CreatedCount)
	im.finish(ctx, "questions", topicID, v, rep)
	return rep, nil
}

func questionFromRow(t table, row []string, n int) (qbank.Question, *RowError) {
	q := qbank.Question{
		Text:          t.get(row, "question_text"),
		Type:          strings.ToLower(t.get(row, "question_type")),
		CorrectAnswer: t.get(row, "correct_answer"),
		Difficulty:    strings.ToLower(t.get(row, "difficulty_level")),
		Explanation:   t.get(row, "explanation"),
		Tags:          splitList(t.get(row, "tags")),
	}
	if !grading.ValidType(q.Type) {
		return q, &RowError{Row: n, Msg: fmt.Sprintf("Invalid question type %q", q.Type)}
	}
	if !qbank.ValidDifficulty(q.Difficulty) {
		q.Difficulty = qbank.DifficultyMedium
	}
	if q.Type != grading.TypeMCQ {
		return q, nil
	}

	for _, c := range answerColumns {
		if a := t.get(row, c); a != "" {
			q.Options = append(q.Options, a)
		}
	}
	if len(q.Options) == 0 {
		q.Options = splitList(t.get(row, "options"))
	}
	if len(q.Options) < 2 {
		return q, &RowError{Row: n, Msg: "MCQ questions must have at least 2 options"}
	}
	key, ok := answerKey(q.CorrectAnswer, q.Options)
	if !ok {
		return q, &RowError{Row: n, Msg: fmt.Sprintf("correct answer %q matches none of the options", q.CorrectAnswer)}
	}
	q.CorrectAnswer = key
	return q, nil
}

// answerKey turns a sheet's MCQ answer into the stored JSON index list. An
// index list is kept as is; anything else must match one option's text.
func answerKey(answer string, options []string) (string, bool) {
	if idx, err := grading.ParseAnswerKey(answer); err == nil {
		for _, i := range idx {
			if i < 0 || i >= len(options) {
				return "", false
			}
		}
		return answer, true
	}
	want := grading.Normalize(answer)
	if want == "" {
		return "", false
	}
	for i, o := range options {
		if grading.Normalize(o) == want {
			return fmt.Sprintf("[%d]", i), true
		}
	}
	return "", false
}

// Flashcards imports a flashcard sheet into a flashcard topic.
func (im *Importer) Flashcards(ctx context.Context, v rbac.Viewer, topicID string, r io.Reader, filename string) (Report, error) {
	p, err := im.questions.OwnedTopicProduct(ctx, v, topicID)
	if err != nil {
		return Report{}, err
	}
	if p.Kind != qbank.KindFlashcard {
		return Report{}, apperr.Validation("topic %s does not belong to a flashcard product", topicID)
	}
	t, err := readTable(r, filename)
	if err != nil {
		return Report{}, err
	}
	if miss := t.missing(flashcardColumns...); len(miss) > 0 {
		return Report{}, apperr.Validation("Missing required columns: %s", strings.Join(miss, ", "))
	}

	rep := Report{Errors: []string{}, CreatedFlashcards: []CreatedFlashcard{}}
	for i, row := range t.rows {
		if blank(row) {
			continue
		}
		f := flashcard.Flashcard{
			TopicID:   topicID,
			FrontText: t.get(row, "front_text"),
			BackText:  t.get(row, "back_text"),
			Tags:      splitList(t.get(row, "tags")),
		}
		if f.FrontText == "" || f.BackText == "" {
			rep.reject(RowError{Row: i + 2, Msg: "Both front_text and back_text are required"})
			continue
		}
		created, err := im.flashcards.Create(ctx, v, f)
		if err != nil {
			if ctx.Err() != nil {
				return Report{}, ctx.Err()
			}
			rep.reject(RowError{Row: i + 2, Msg: err.Error()})
			continue
		}
		rep.CreatedFlashcards = append(rep.CreatedFlashcards, CreatedFlashcard{ID: created.ID, FrontText: preview(created.FrontText)})
	}
	rep.CreatedCount = len(rep.CreatedFlashcards)
	rep.Success = true
	rep.Message = fmt.Sprintf("Successfully imported %d flashcards", rep.CreatedCount)
	im.finish(ctx, "flashcards", topicID, v, rep)
	return rep, nil
}

func (im *Importer) finish(ctx context.Context, kind, topicID string, v rbac.Viewer, rep Report) {
	im.log.Info("import finished", "kind", kind, "topic", topicID, "user", v.ID,
		"created", rep.CreatedCount, "rejected", len(rep.Errors))
	if im.events == nil {
		return
	}
	err := im.events.Append(ctx, nil, syncx.TypeImportFinished, topicID, map[string]any{
		"kind": kind, "user_id": v.ID, "created": rep.CreatedCount, "rejected": len(rep.Errors),
	})
	if err != nil {
		im.log.Warn("record import event", "topic", topicID, "err", err)
	}
}

// splitList reads a JSON string array, falling back to a comma list.
func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}
	}
	if strings.HasPrefix(s, "[") {
		var out []string
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return out
		}
		s = strings.Trim(s, "[]")
	}
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.Trim(strings.TrimSpace(part), `"'`); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= 50 {
		return s
	}
	return string([]rune(s)[:50]) + "..."
}

// QuestionTemplate writes the question import workbook.
func QuestionTemplate(w io.Writer) error {
	header := append(append(append([]string{}, questionColumns...), answerColumns...), "explanation", "tags")
	return writeTemplate(w, "QuestionsTemplate", header, [][]string{
		{"What is 2 + 2?", "mcq", "4", "easy", "1", "2", "3", "4", "5", "Basic addition", "math,arithmetic"},
		{"The capital of France is Paris", "true_false", "True", "easy", "", "", "", "", "", "Paris is indeed the capital of France", "geography,france"},
	})
}

// FlashcardTemplate writes the flashcard import workbook.
func FlashcardTemplate(w io.Writer) error {
	return writeTemplate(w, "FlashcardsTemplate", []string{"front_text", "back_text", "tags"}, [][]string{
		{"Capital of France?", "Paris", `["geography", "europe"]`},
	})
}
