package assessment

import (
	"time"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
)

const (
	TypeAssignment = "assignment"
	TypeQuiz       = "quiz"
	TypeExam       = "exam"
	TypeFlashcard  = "flashcard"
)

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Assessment is a scoring envelope around an ordered, weighted set of
// questions.
type Assessment struct {
	ID                     string     `json:"id"`
	Title                  string     `json:"title"`
	Description            string     `json:"description"`
	Type                   string     `json:"assessment_type"`
	Status                 string     `json:"status"`
	CourseID               string     `json:"course_id,omitempty"`
	StartDate              *time.Time `json:"start_date,omitempty"`
	EndDate                *time.Time `json:"end_date,omitempty"`
	DurationMinutes        *int       `json:"duration_minutes,omitempty"`
	TotalMarks             float64    `json:"total_marks"`
	PassingMarks           *float64   `json:"passing_marks,omitempty"`
	IsRandomized           bool       `json:"is_randomized"`
	AllowMultipleAttempts  bool       `json:"allow_multiple_attempts"`
	MaxAttempts            int        `json:"max_attempts"` // 0 = unlimited
	ShowCorrectAnswers     bool       `json:"show_correct_answers"`
	ShowResultsImmediately bool       `json:"show_results_immediately"`
	CreatedBy              string     `json:"created_by"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`

	// Derived from the question associations; filled by reads.
	QuestionsCount      int     `json:"questions_count"`
	TotalQuestionsMarks float64 `json:"total_questions_marks"`
}

// Validate checks the field invariants and fills defaults.
func (a *Assessment) Validate() error {
	if a.Title == "" {
		return apperr.Validation("title is required")
	}
	if a.Type == "" {
		a.Type = TypeQuiz
	}
	switch a.Type {
	case TypeAssignment, TypeQuiz, TypeExam, TypeFlashcard:
	default:
		return apperr.Validation("invalid assessment type %q", a.Type)
	}
	if a.Status == "" {
		a.Status = StatusDraft
	}
	switch a.Status {
	case StatusDraft, StatusPublished, StatusArchived:
	default:
		return apperr.Validation("invalid status %q", a.Status)
	}
	if a.StartDate != nil && a.EndDate != nil && !a.EndDate.After(*a.StartDate) {
		return apperr.Validation("End date must be after start date")
	}
	if a.TotalMarks < 0 {
		return apperr.Validation("total_marks must be >= 0")
	}
	if a.PassingMarks != nil {
		if *a.PassingMarks < 0 {
			return apperr.Validation("passing_marks must be >= 0")
		}
		if *a.PassingMarks > a.TotalMarks {
			return apperr.Validation("Passing marks cannot be greater than total marks")
		}
	}
	if a.DurationMinutes != nil && *a.DurationMinutes <= 0 {
		return apperr.Validation("duration_minutes must be positive")
	}
	if a.MaxAttempts < 0 {
		return apperr.Validation("max_attempts must be >= 0")
	}
	return nil
}

// IsActive reports whether the assessment is published and now falls inside
// its window. A missing end date leaves the window open.
func (a Assessment) IsActive(now time.Time) bool {
	if a.Status != StatusPublished {
		return false
	}
	if a.StartDate != nil && now.Before(*a.StartDate) {
		return false
	}
	if a.EndDate != nil && now.After(*a.EndDate) {
		return false
	}
	return true
}

// Question is one (assessment, question) association with its weight.
type Question struct {
	ID           string  `json:"id"`
	AssessmentID string  `json:"assessment_id"`
	QuestionID   string  `json:"question_id"`
	Marks        float64 `json:"marks_allocated"`
	Order        int     `json:"order"`

	// Joined from the question bank.
	Text          string   `json:"question_text"`
	Type          string   `json:"question_type"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
}

type Stats struct {
	TotalSubmissions int     `json:"total_submissions"`
	SubmittedCount   int     `json:"submitted_count"`
	GradedCount      int     `json:"graded_count"`
	AverageScore     float64 `json:"average_score"`
	PassRate         float64 `json:"pass_rate"`
}
