package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-assess/internal/submission"
)

// GET /submissions?assessment_id=&status=
func ListSubmissionsHandler(ss *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		offset, limit := parsePage(r, 0, 100)
		list, err := ss.List(r.Context(), viewer(r), submission.ListOpts{
			AssessmentID: q.Get("assessment_id"), Status: q.Get("status"), Offset: offset, Limit: limit,
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /submissions/{id}
func GetSubmissionHandler(ss *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := ss.Get(r.Context(), viewer(r), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// POST /submissions/{id}/submit {answers:[{question_id, answer_text, selected_options, time_spent_seconds}]}
func SubmitHandler(ss *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Answers []submission.AnswerInput `json:"answers" validate:"dive"`
		}
		if !decode(w, r, &req) {
			return
		}
		s, err := ss.Submit(r.Context(), viewer(r), chi.URLParam(r, "id"), req.Answers)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// POST /submissions/{id}/grade {feedback, answers:[{question_id, marks_obtained?, is_correct?}]}
func GradeHandler(ss *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submission.GradeInput
		if !decode(w, r, &req) {
			return
		}
		s, err := ss.Grade(r.Context(), viewer(r), chi.URLParam(r, "id"), req)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}
