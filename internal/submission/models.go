package submission

import (
	"math"
	"time"

	"github.com/mind-engage/mindengage-assess/internal/assessment"
)

const (
	StatusInProgress = "in_progress"
	StatusSubmitted  = "submitted"
	StatusGraded     = "graded"
	StatusLate       = "late"
)

// Submission is one attempt of a student at an assessment.
type Submission struct {
	ID               string     `json:"id"`
	AssessmentID     string     `json:"assessment_id"`
	StudentID        string     `json:"student_id"`
	AttemptNumber    int        `json:"attempt_number"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	TimeTakenMinutes *int       `json:"time_taken_minutes,omitempty"`
	TotalScore       float64    `json:"total_score"`
	Percentage       float64    `json:"percentage"`
	IsPassed         bool       `json:"is_passed"`
	IsLate           bool       `json:"is_late"`
	GradedBy         string     `json:"graded_by,omitempty"`
	GradedAt         *time.Time `json:"graded_at,omitempty"`
	Feedback         string     `json:"feedback,omitempty"`

	Answers []Answer `json:"answers,omitempty"`
}

// Closed reports whether the attempt can no longer take answers.
func (s Submission) Closed() bool {
	return s.Status == StatusSubmitted || s.Status == StatusGraded
}

type Answer struct {
	ID               string    `json:"id"`
	SubmissionID     string    `json:"submission_id"`
	QuestionID       string    `json:"question_id"`
	AnswerText       string    `json:"answer_text"`
	SelectedOptions  []int     `json:"selected_options"`
	IsCorrect        bool      `json:"is_correct"`
	MarksObtained    float64   `json:"marks_obtained"`
	IsAutoGraded     bool      `json:"is_auto_graded"`
	AnsweredAt       time.Time `json:"answered_at"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
}

// AnswerInput is one entry of a submit batch.
type AnswerInput struct {
	QuestionID       string `json:"question_id" validate:"required"`
	AnswerText       string `json:"answer_text"`
	SelectedOptions  []int  `json:"selected_options" validate:"omitempty,dive,gte=0"`
	TimeSpentSeconds int    `json:"time_spent_seconds" validate:"gte=0"`
}

// Override is a teacher correction for one answer. Nil fields are kept.
type Override struct {
	QuestionID    string   `json:"question_id" validate:"required"`
	MarksObtained *float64 `json:"marks_obtained" validate:"omitempty,gte=0"`
	IsCorrect     *bool    `json:"is_correct"`
}

type GradeInput struct {
	Feedback  string     `json:"feedback"`
	Overrides []Override `json:"answers" validate:"dive"`
}

// Score derives total, percentage and pass state from answer marks.
// Percentage is 0 when the assessment has no total; is_passed needs a
// passing mark.
func Score(a assessment.Assessment, marks []float64) (total, percentage float64, passed bool) {
	for _, m := range marks {
		total += m
	}
	total = round2(total)
	if a.TotalMarks > 0 {
		percentage = round2(total / a.TotalMarks * 100)
	}
	if a.PassingMarks != nil {
		passed = total >= *a.PassingMarks
	}
	return total, percentage, passed
}

// minutesBetween is the whole number of minutes from start to end.
func minutesBetween(start, end time.Time) int {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
