package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-assess/internal/enrollment"
	"github.com/mind-engage/mindengage-assess/internal/qbank"
)

// GET /enrollments?product_id=&student_id=&kind=&status=
func ListEnrollmentsHandler(es *enrollment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		offset, limit := parsePage(r, 0, 100)
		list, err := es.List(r.Context(), viewer(r), enrollment.ListOpts{
			ProductID: q.Get("product_id"),
			StudentID: q.Get("student_id"),
			Kind:      qbank.Kind(q.Get("kind")),
			Status:    q.Get("status"),
			Offset:    offset,
			Limit:     limit,
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /enrollments/status: active enrollment counts of the caller per kind.
func EnrollmentStatusHandler(es *enrollment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := es.CheckStatus(r.Context(), viewer(r).ID)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// GET /enrollments/{id}
func GetEnrollmentHandler(es *enrollment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := es.GetFor(r.Context(), viewer(r), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// PATCH /enrollments/{id} {status?, is_paid?, payment_amount?, transaction_id?}
func SaveEnrollmentHandler(es *enrollment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p enrollment.Patch
		if !decode(w, r, &p) {
			return
		}
		e, err := es.Save(r.Context(), viewer(r), chi.URLParam(r, "id"), p)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// DELETE /enrollments/{id}
func DeleteEnrollmentHandler(es *enrollment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := es.Delete(r.Context(), viewer(r), chi.URLParam(r, "id")); err != nil {
			fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /enrollments/{id}/progress {progress}
func UpdateProgressHandler(es *enrollment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Progress *float64 `json:"progress" validate:"required"`
		}
		if !decode(w, r, &req) {
			return
		}
		e, err := es.UpdateProgress(r.Context(), viewer(r), chi.URLParam(r, "id"), *req.Progress)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// POST /enrollments/{id}/complete
func CompleteEnrollmentHandler(es *enrollment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := es.MarkComplete(r.Context(), viewer(r), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// GET /enrollments/{id}/certificate
func CertificateHandler(es *enrollment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ok, err := es.CertificateEligible(r.Context(), viewer(r), id)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"enrollment_id": id, "eligible": ok})
	}
}
