package qbank

import (
	"strings"
	"time"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/grading"
)

type Kind string

const (
	KindQuestionBank Kind = "question_bank"
	KindFlashcard    Kind = "flashcard"
)

func (k Kind) Valid() bool { return k == KindQuestionBank || k == KindFlashcard }

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

func validStatus(s string) bool {
	return s == StatusDraft || s == StatusPublished || s == StatusArchived
}

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

func ValidDifficulty(d string) bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// Product is a purchasable container of chapters: a question bank or a
// flashcard set, tied to a course.
type Product struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CourseID    string    `json:"course_id,omitempty"`
	Price       float64   `json:"price"`
	IsFree      bool      `json:"is_free"`
	IsCertified bool      `json:"is_certified"`
	Tags        []string  `json:"tags"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Chapter struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_at"`
}

type Topic struct {
	ID          string    `json:"id"`
	ChapterID   string    `json:"chapter_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_at"`
}

// Question belongs to one topic within one product.
type Question struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	TopicID       string    `json:"topic_id"`
	Text          string    `json:"question_text"`
	Type          string    `json:"question_type"`
	Difficulty    string    `json:"difficulty_level"`
	Options       []string  `json:"options"`
	CorrectAnswer string    `json:"correct_answer,omitempty"`
	Explanation   string    `json:"explanation,omitempty"`
	Tags          []string  `json:"tags"`
	ImageKey      string    `json:"image,omitempty"`
	AudioKey      string    `json:"audio,omitempty"`
	VideoKey      string    `json:"video,omitempty"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks the question invariants: known type and difficulty, and
// a key for true_false, and for MCQ at least two options plus a non-empty
// answer key of in-range indices.
func (q *Question) Validate() error {
	if q.Text == "" {
		return apperr.Validation("question_text is required")
	}
	if !grading.ValidType(q.Type) {
		return apperr.Validation("invalid question type %q", q.Type)
	}
	if q.Difficulty == "" {
		q.Difficulty = DifficultyMedium
	}
	if !ValidDifficulty(q.Difficulty) {
		return apperr.Validation("invalid difficulty %q", q.Difficulty)
	}
	if q.Type == grading.TypeTrueFalse && strings.TrimSpace(q.CorrectAnswer) == "" {
		return apperr.Validation("true_false questions need a correct_answer")
	}
	if q.Type != grading.TypeMCQ {
		return nil
	}
	if len(q.Options) < 2 {
		return apperr.Validation("MCQ questions must have at least 2 options")
	}
	key, err := grading.ParseAnswerKey(q.CorrectAnswer)
	if err != nil {
		return apperr.Validation("MCQ correct_answer must be a JSON list of option indices")
	}
	for _, i := range key {
		if i < 0 || i >= len(q.Options) {
			return apperr.Validation("MCQ correct_answer index %d out of range", i)
		}
	}
	return nil
}

// Stats summarises the question bank visible to a viewer.
type Stats struct {
	Total        int             `json:"total_questions"`
	ByType       map[string]int  `json:"by_type"`
	ByDifficulty map[string]int  `json:"by_difficulty"`
	MostUsed     []QuestionUsage `json:"most_used_questions"`
}

type QuestionUsage struct {
	ID         string `json:"id"`
	Text       string `json:"question_text"`
	UsageCount int    `json:"usage_count"`
}
