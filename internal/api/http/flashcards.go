package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-assess/internal/flashcard"
)

type flashcardReq struct {
	TopicID    string   `json:"topic_id"`
	FrontText  string   `json:"front_text" validate:"required"`
	BackText   string   `json:"back_text" validate:"required"`
	QuestionID string   `json:"related_question"`
	Tags       []string `json:"tags"`
	FrontImage string   `json:"front_image"`
	BackImage  string   `json:"back_image"`
}

func (f flashcardReq) card() flashcard.Flashcard {
	return flashcard.Flashcard{
		TopicID: f.TopicID, FrontText: f.FrontText, BackText: f.BackText, QuestionID: f.QuestionID,
		Tags: f.Tags, FrontImage: f.FrontImage, BackImage: f.BackImage,
	}
}

// POST /flashcards (topic_id in body) and POST /topics/{id}/flashcards.
func CreateFlashcardHandler(fs *flashcard.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req flashcardReq
		if !decode(w, r, &req) {
			return
		}
		if id := chi.URLParam(r, "id"); id != "" {
			req.TopicID = id
		}
		if req.TopicID == "" {
			writeErr(w, http.StatusBadRequest, "topic_id is required")
			return
		}
		f, err := fs.Create(r.Context(), viewer(r), req.card())
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, f)
	}
}

// GET /flashcards?product_id=&topic_id=&q= and GET /topics/{id}/flashcards.
func ListFlashcardsHandler(fs *flashcard.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		offset, limit := parsePage(r, 0, 100)
		f := flashcard.Filter{
			ProductID: q.Get("product_id"), TopicID: q.Get("topic_id"), Q: q.Get("q"), Offset: offset, Limit: limit,
		}
		if id := chi.URLParam(r, "id"); id != "" {
			f.TopicID = id
		}
		list, err := fs.List(r.Context(), viewer(r), f)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /flashcards/{id}
func GetFlashcardHandler(fs *flashcard.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fs.Get(r.Context(), viewer(r), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

// PUT /flashcards/{id}
func UpdateFlashcardHandler(fs *flashcard.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req flashcardReq
		if !decode(w, r, &req) {
			return
		}
		f := req.card()
		f.ID = chi.URLParam(r, "id")
		out, err := fs.Update(r.Context(), viewer(r), f)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// DELETE /flashcards/{id}
func DeleteFlashcardHandler(fs *flashcard.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fs.Delete(r.Context(), viewer(r), chi.URLParam(r, "id")); err != nil {
			fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /flashcards/{id}/review {is_correct}
func ReviewFlashcardHandler(fs *flashcard.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IsCorrect bool `json:"is_correct"`
		}
		if !decode(w, r, &req) {
			return
		}
		p, err := fs.Review(r.Context(), viewer(r), chi.URLParam(r, "id"), req.IsCorrect)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// GET /flashcards/progress
func FlashcardProgressHandler(fs *flashcard.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := fs.MyProgress(r.Context(), viewer(r).ID)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /flashcards/stats
func FlashcardStatsHandler(fs *flashcard.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := fs.Stats(r.Context(), viewer(r))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
