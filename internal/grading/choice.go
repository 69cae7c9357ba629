package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// mcqStrategy awards the allocated marks only when the selected option
// indices equal the key element by element. [0,2] and [2,0] differ.
type mcqStrategy struct{}

func (mcqStrategy) Grade(_ context.Context, q Q, r Response) (Result, error) {
	res := Result{AutoGraded: true}
	key, err := ParseAnswerKey(q.CorrectAnswer)
	if err != nil {
		return res, err
	}
	if !sameOrder(key, r.SelectedOptions) {
		return res, nil
	}
	res.IsCorrect = true
	res.Marks = q.Marks
	return res, nil
}

type trueFalseStrategy struct{}

func (trueFalseStrategy) Grade(_ context.Context, q Q, r Response) (Result, error) {
	res := Result{AutoGraded: true}
	if r.Text == "" || q.CorrectAnswer == "" {
		return res, nil
	}
	if strings.EqualFold(r.Text, q.CorrectAnswer) {
		res.IsCorrect = true
		res.Marks = q.Marks
	}
	return res, nil
}

// ParseAnswerKey decodes an MCQ correct answer stored as a non-empty JSON
// array of option indices.
func ParseAnswerKey(s string) ([]int, error) {
	var key []int
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &key); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedAnswerKey, s)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedAnswerKey, s)
	}
	return key, nil
}

func sameOrder(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
