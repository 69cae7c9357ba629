package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{Validation("bad %s", "x"), http.StatusBadRequest},
		{NotFound("missing"), http.StatusNotFound},
		{ErrAlreadySubmitted, http.StatusConflict},
		{ErrDuplicateQuestion, http.StatusConflict},
		{ErrNoAssociation, http.StatusNotFound},
		{Permission("nope"), http.StatusForbidden},
		{fmt.Errorf("submit: %w", ErrAlreadySubmitted), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := Status(c.err); got != c.want {
			t.Errorf("Status(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestWrappedSentinelStillMatches(t *testing.T) {
	err := fmt.Errorf("grade answer: %w", ErrNoAssociation)
	if !errors.Is(err, ErrNoAssociation) {
		t.Fatal("expected ErrNoAssociation")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected ErrNotFound kind")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatal("unexpected conflict kind")
	}
}
