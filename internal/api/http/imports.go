package http

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-assess/internal/importer"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
)

const maxImportSize = 10 << 20

type importFunc func(ctx context.Context, v rbac.Viewer, topicID string, r io.Reader, filename string) (importer.Report, error)

func importHandler(run importFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeErr(w, http.StatusBadRequest, "No file provided")
			return
		}
		defer f.Close()
		rep, err := run(r.Context(), viewer(r), chi.URLParam(r, "id"), f, hdr.Filename)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

// POST /topics/{id}/import/questions (multipart file=, .xlsx or .csv)
func ImportQuestionsHandler(im *importer.Importer) http.HandlerFunc {
	return importHandler(im.Questions)
}

// POST /topics/{id}/import/flashcards
func ImportFlashcardsHandler(im *importer.Importer) http.HandlerFunc {
	return importHandler(im.Flashcards)
}

func templateHandler(filename string, write func(io.Writer) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := write(&buf); err != nil {
			fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		_, _ = buf.WriteTo(w)
	}
}

// GET /templates/questions.xlsx
func QuestionTemplateHandler() http.HandlerFunc {
	return templateHandler("question_import_template.xlsx", importer.QuestionTemplate)
}

// GET /templates/flashcards.xlsx
func FlashcardTemplateHandler() http.HandlerFunc {
	return templateHandler("flashcard_import_template.xlsx", importer.FlashcardTemplate)
}
