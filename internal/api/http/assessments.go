package http

import (
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-assess/internal/assessment"
	"github.com/mind-engage/mindengage-assess/internal/submission"
)

type assessmentReq struct {
	Title                  string     `json:"title" validate:"required,max=200"`
	Description            string     `json:"description"`
	Type                   string     `json:"assessment_type" validate:"omitempty,oneof=assignment quiz exam flashcard"`
	Status                 string     `json:"status" validate:"omitempty,oneof=draft published archived"`
	CourseID               string     `json:"course_id"`
	StartDate              *time.Time `json:"start_date"`
	EndDate                *time.Time `json:"end_date"`
	DurationMinutes        *int       `json:"duration_minutes" validate:"omitempty,gt=0"`
	TotalMarks             *float64   `json:"total_marks" validate:"omitempty,gte=0"`
	PassingMarks           *float64   `json:"passing_marks" validate:"omitempty,gte=0"`
	IsRandomized           bool       `json:"is_randomized"`
	AllowMultipleAttempts  bool       `json:"allow_multiple_attempts"`
	MaxAttempts            *int       `json:"max_attempts" validate:"omitempty,gte=0"`
	ShowCorrectAnswers     *bool      `json:"show_correct_answers"`
	ShowResultsImmediately *bool      `json:"show_results_immediately"`
}

func (q assessmentReq) assessment() assessment.Assessment {
	a := assessment.Assessment{
		Title: q.Title, Description: q.Description, Type: q.Type, Status: q.Status, CourseID: q.CourseID,
		StartDate: q.StartDate, EndDate: q.EndDate, DurationMinutes: q.DurationMinutes,
		TotalMarks: 100, PassingMarks: q.PassingMarks, IsRandomized: q.IsRandomized,
		AllowMultipleAttempts: q.AllowMultipleAttempts, MaxAttempts: 1,
		ShowCorrectAnswers: true, ShowResultsImmediately: true,
	}
	if q.TotalMarks != nil {
		a.TotalMarks = *q.TotalMarks
	}
	if q.MaxAttempts != nil {
		a.MaxAttempts = *q.MaxAttempts
	}
	if q.ShowCorrectAnswers != nil {
		a.ShowCorrectAnswers = *q.ShowCorrectAnswers
	}
	if q.ShowResultsImmediately != nil {
		a.ShowResultsImmediately = *q.ShowResultsImmediately
	}
	return a
}

// POST /assessments
func CreateAssessmentHandler(as *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assessmentReq
		if !decode(w, r, &req) {
			return
		}
		a, err := as.Create(r.Context(), viewer(r), req.assessment())
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

// GET /assessments?course_id=&type=&status=&q=
func ListAssessmentsHandler(as *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		offset, limit := parsePage(r, 0, 50)
		list, err := as.List(r.Context(), viewer(r), assessment.ListOpts{
			CourseID: q.Get("course_id"), Type: q.Get("type"), Status: q.Get("status"), Q: q.Get("q"),
			Offset: offset, Limit: limit,
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /assessments/available: published and inside their window.
func AvailableAssessmentsHandler(as *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := as.Available(r.Context(), time.Now().UTC())
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /assessments/{id}
func GetAssessmentHandler(as *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := as.GetFor(r.Context(), viewer(r), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"assessment": a, "is_active": a.IsActive(time.Now().UTC())})
	}
}

// PUT /assessments/{id}
func UpdateAssessmentHandler(as *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assessmentReq
		if !decode(w, r, &req) {
			return
		}
		a := req.assessment()
		a.ID = chi.URLParam(r, "id")
		out, err := as.Update(r.Context(), viewer(r), a)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// DELETE /assessments/{id}
func DeleteAssessmentHandler(as *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := as.Delete(r.Context(), viewer(r), chi.URLParam(r, "id")); err != nil {
			fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /assessments/{id}/questions. Students get no answer keys, and a
// shuffled order when the assessment is randomized.
func AssessmentQuestionsHandler(as *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := viewer(r)
		a, err := as.GetFor(r.Context(), v, chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		qs, err := as.Questions(r.Context(), a.ID)
		if err != nil {
			fail(w, r, err)
			return
		}
		if v.IsStudent() {
			for i := range qs {
				qs[i].CorrectAnswer = ""
				qs[i].Explanation = ""
			}
			if a.IsRandomized {
				rand.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
			}
		}
		writeJSON(w, http.StatusOK, qs)
	}
}

// POST /assessments/{id}/questions {question_id, marks_allocated?, order?}
func AddAssessmentQuestionHandler(as *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuestionID string   `json:"question_id" validate:"required"`
			Marks      *float64 `json:"marks_allocated" validate:"omitempty,gte=0"`
			Order      *int     `json:"order" validate:"omitempty,gt=0"`
		}
		if !decode(w, r, &req) {
			return
		}
		q, err := as.AddQuestion(r.Context(), viewer(r), chi.URLParam(r, "id"), req.QuestionID, req.Marks, req.Order)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

// DELETE /assessments/{id}/questions/{questionID}
func RemoveAssessmentQuestionHandler(as *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := as.RemoveQuestion(r.Context(), viewer(r), chi.URLParam(r, "id"), chi.URLParam(r, "questionID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /assessments/{id}/stats: owner or admin.
func AssessmentStatsHandler(as *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := as.Owned(r.Context(), viewer(r), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		st, err := as.Stats(r.Context(), a.ID)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// GET /assessments/{id}/submissions?status=
func AssessmentSubmissionsHandler(ss *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, limit := parsePage(r, 0, 100)
		list, err := ss.List(r.Context(), viewer(r), submission.ListOpts{
			AssessmentID: chi.URLParam(r, "id"), Status: r.URL.Query().Get("status"), Offset: offset, Limit: limit,
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// POST /assessments/{id}/start: resume or begin an attempt.
func StartAssessmentHandler(ss *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := ss.Start(r.Context(), viewer(r), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}
