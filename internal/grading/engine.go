package grading

import (
	"context"
	"errors"
)

// Question types.
const (
	TypeMCQ         = "mcq"
	TypeTrueFalse   = "true_false"
	TypeShortAnswer = "short_answer"
	TypeEssay       = "essay"
	TypeFillBlank   = "fill_blank"
	TypeMatching    = "matching"
	TypeOrdering    = "ordering"
)

// QuestionTypes lists every accepted question type.
var QuestionTypes = []string{
	TypeMCQ, TypeTrueFalse, TypeShortAnswer, TypeEssay, TypeFillBlank, TypeMatching, TypeOrdering,
}

func ValidType(t string) bool {
	for _, v := range QuestionTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ErrMalformedAnswerKey is returned when a stored correct answer cannot be
// decoded for its question type.
var ErrMalformedAnswerKey = errors.New("grading: malformed answer key")

// Q is the grading view of a question inside one assessment.
type Q struct {
	Type          string
	CorrectAnswer string
	Marks         float64 // marks allocated by the assessment
}

// Response is what the student sent for one question.
type Response struct {
	Text            string
	SelectedOptions []int
}

// Result is the outcome of grading a single response.
type Result struct {
	IsCorrect  bool
	Marks      float64
	AutoGraded bool // false when a teacher has to grade it
}

// Strategy grades a single question type.
type Strategy interface {
	Grade(ctx context.Context, q Q, r Response) (Result, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, r Response) (Result, error)
	CanAutoGrade(questionType string) bool
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) CanAutoGrade(t string) bool {
	_, ok := g.strategies[t]
	return ok
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, r Response) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{}, nil
	}
	return s.Grade(ctx, q, r)
}

type Option func(map[string]Strategy)

// WithStrategy installs or replaces the strategy for a question type.
func WithStrategy(questionType string, s Strategy) Option {
	return func(m map[string]Strategy) { m[questionType] = s }
}

// NewDefaultGrader installs the built-in objective strategies (mcq and
// true_false). Every other type is left for manual grading.
func NewDefaultGrader(opts ...Option) Grader {
	m := map[string]Strategy{
		TypeMCQ:       mcqStrategy{},
		TypeTrueFalse: trueFalseStrategy{},
	}
	for _, o := range opts {
		o(m)
	}
	return &defaultGrader{strategies: m}
}
