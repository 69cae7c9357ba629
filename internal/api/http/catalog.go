package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/catalog"
)

type courseReq struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
	CategoryID  string `json:"category_id"`
}

// POST /courses
func CreateCourseHandler(cs *catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req courseReq
		if !decode(w, r, &req) {
			return
		}
		c, err := cs.CreateCourse(r.Context(), catalog.Course{
			Title: req.Title, Description: req.Description, CategoryID: req.CategoryID, CreatedBy: viewer(r).ID,
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

// GET /courses?category_id=&offset=&limit=
func ListCoursesHandler(cs *catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, limit := parsePage(r, 0, 50)
		list, err := cs.ListCourses(r.Context(), strings.TrimSpace(r.URL.Query().Get("category_id")), offset, limit)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /courses/{id}
func GetCourseHandler(cs *catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cs.GetCourse(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// DELETE /courses/{id}: owner or admin.
func DeleteCourseHandler(cs *catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := viewer(r)
		c, err := cs.GetCourse(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		if !v.IsAdmin() && c.CreatedBy != v.ID {
			fail(w, r, apperr.Permission("only the course owner can delete it"))
			return
		}
		if err := cs.DeleteCourse(r.Context(), c.ID); err != nil {
			fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /categories
func ListCategoriesHandler(cs *catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := cs.ListCategories(r.Context())
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// POST /categories
func CreateCategoryHandler(cs *catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name        string `json:"name" validate:"required,max=100"`
			Description string `json:"description"`
		}
		if !decode(w, r, &req) {
			return
		}
		c, err := cs.CreateCategory(r.Context(), catalog.Category{Name: req.Name, Description: req.Description})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}
