package http

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/qbank"
	"github.com/mind-engage/mindengage-assess/internal/storage"
)

type questionReq struct {
	TopicID       string   `json:"topic_id"`
	Text          string   `json:"question_text" validate:"required"`
	Type          string   `json:"question_type" validate:"required"`
	Difficulty    string   `json:"difficulty_level" validate:"omitempty,oneof=easy medium hard"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
	Tags          []string `json:"tags"`
}

func (q questionReq) question() qbank.Question {
	return qbank.Question{
		TopicID: q.TopicID, Text: q.Text, Type: q.Type, Difficulty: q.Difficulty, Options: q.Options,
		CorrectAnswer: q.CorrectAnswer, Explanation: q.Explanation, Tags: q.Tags,
	}
}

// POST /questions (topic_id in body) and POST /topics/{id}/questions.
func CreateQuestionHandler(qs *qbank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req questionReq
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
		q, err := qs.CreateQuestion(r.Context(), viewer(r), req.question())
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

// GET /questions?product_id=&topic_id=&product__in=a,b&topic__in=&chapter__in=
// &created_by=&type=&difficulty=&q=&random=1 and GET /topics/{id}/questions.
func ListQuestionsHandler(qs *qbank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		offset, limit := parsePage(r, 0, 100)
		f := qbank.QuestionFilter{
			ProductID:  q.Get("product_id"),
			TopicID:    q.Get("topic_id"),
			ProductIDs: queryList(r, "product__in"),
			TopicIDs:   queryList(r, "topic__in"),
			ChapterIDs: queryList(r, "chapter__in"),
			CreatedBy:  q.Get("created_by"),
			Random:     queryBool(r, "random"),
			Type:       q.Get("type"),
			Difficulty: q.Get("difficulty"),
			Search:     q.Get("q"),
			Offset:     offset,
			Limit:      limit,
		}
		if id := chi.URLParam(r, "id"); id != "" {
			f.TopicID = id
		}
		list, err := qs.ListQuestions(r.Context(), viewer(r), f)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /questions/{id}
func GetQuestionHandler(qs *qbank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := qs.QuestionFor(r.Context(), viewer(r), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// PUT /questions/{id}
func UpdateQuestionHandler(qs *qbank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req questionReq
		if !decode(w, r, &req) {
			return
		}
		q := req.question()
		q.ID = chi.URLParam(r, "id")
		out, err := qs.UpdateQuestion(r.Context(), viewer(r), q)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// DELETE /questions/{id}
func DeleteQuestionHandler(qs *qbank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := qs.DeleteQuestion(r.Context(), viewer(r), chi.URLParam(r, "id")); err != nil {
			fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /questions/stats
func QuestionStatsHandler(qs *qbank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := qs.QuestionStats(r.Context(), viewer(r))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

var mediaExts = map[string][]string{
	qbank.MediaImage: {".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg"},
	qbank.MediaAudio: {".mp3", ".wav", ".ogg", ".m4a"},
	qbank.MediaVideo: {".mp4", ".webm", ".mov"},
}

// POST /questions/{id}/media?kind=image|audio|video (multipart file=)
func UploadQuestionMediaHandler(qs *qbank.SQLStore, bs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := viewer(r)
		kind := r.URL.Query().Get("kind")
		exts, ok := mediaExts[kind]
		if !ok {
			writeErr(w, http.StatusBadRequest, "kind must be image, audio or video")
			return
		}
		q, err := qs.GetQuestion(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		if !v.IsAdmin() && q.CreatedBy != v.ID {
			fail(w, r, apperr.Permission("only the author can attach media"))
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeErr(w, http.StatusBadRequest, "file required")
			return
		}
		defer f.Close()
		ext := strings.ToLower(filepath.Ext(hdr.Filename))
		if !contains(exts, ext) {
			writeErr(w, http.StatusBadRequest, "unsupported "+kind+" file type "+ext)
			return
		}

		key, err := bs.Put(r.Context(), storage.MediaKey("questions", q.ID, kind, hdr.Filename), f)
		if err != nil {
			failBlob(w, r, err)
			return
		}
		if err := qs.SetMedia(r.Context(), v, q.ID, kind, key); err != nil {
			_ = bs.Delete(r.Context(), key)
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"key": key, "url": bs.URL(key)})
	}
}

func failBlob(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		writeErr(w, http.StatusRequestEntityTooLarge, "file too large")
	case errors.Is(err, storage.ErrBadKey):
		writeErr(w, http.StatusBadRequest, "invalid file name")
	case errors.Is(err, storage.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not found")
	default:
		fail(w, r, err)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
