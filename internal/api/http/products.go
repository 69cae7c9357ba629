package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-assess/internal/enrollment"
	"github.com/mind-engage/mindengage-assess/internal/qbank"
)

type productReq struct {
	Kind        qbank.Kind `json:"kind" validate:"omitempty,oneof=question_bank flashcard"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description"`
	Status      string     `json:"status" validate:"omitempty,oneof=draft published archived"`
	CourseID    string     `json:"course_id"`
	Price       float64    `json:"price" validate:"gte=0"`
	IsFree      bool       `json:"is_free"`
	IsCertified bool       `json:"is_certified"`
	Tags        []string   `json:"tags"`
}

func (p productReq) product() qbank.Product {
	return qbank.Product{
		Kind: p.Kind, Title: p.Title, Description: p.Description, Status: p.Status, CourseID: p.CourseID,
		Price: p.Price, IsFree: p.IsFree, IsCertified: p.IsCertified, Tags: p.Tags,
	}
}

// POST /products
func CreateProductHandler(qs *qbank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req productReq
		if !decode(w, r, &req) {
			return
		}
		p := req.product()
		p.CreatedBy = viewer(r).ID
		out, err := qs.CreateProduct(r.Context(), p)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

// GET /products?kind=&course_id=&enrolled_only=1
func ListProductsHandler(qs *qbank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, limit := parsePage(r, 0, 50)
		q := r.URL.Query()
		list, err := qs.ListProducts(r.Context(), viewer(r), qbank.ProductFilter{
			Kind:         qbank.Kind(q.Get("kind")),
			CourseID:     q.Get("course_id"),
			EnrolledOnly: queryBool(r, "enrolled_only"),
			Offset:       offset,
			Limit:        limit,
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /products/{id}
func GetProductHandler(qs *qbank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := qs.ProductFor(r.Context(), viewer(r), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// PUT /products/{id}
func UpdateProductHandler(qs *qbank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req productReq
		if !decode(w, r, &req) {
			return
		}
		p := req.product()
		p.ID = chi.URLParam(r, "id")
		out, err := qs.UpdateProduct(r.Context(), viewer(r), p)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// DELETE /products/{id}
func DeleteProductHandler(qs *qbank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := qs.DeleteProduct(r.Context(), viewer(r), chi.URLParam(r, "id")); err != nil {
			fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /products/{id}/enroll {student_id?}. Students always enroll themselves.
func EnrollHandler(es *enrollment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			StudentID string `json:"student_id"`
		}
		if r.ContentLength != 0 && !decode(w, r, &req) {
			return
		}
		e, err := es.Enroll(r.Context(), viewer(r), chi.URLParam(r, "id"), req.StudentID)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

type orderedReq struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
	Order       int    `json:"order" validate:"gte=0"`
}

// POST /products/{id}/chapters
func CreateChapterHandler(qs *qbank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req orderedReq
		if !decode(w, r, &req) {
			return
		}
		c, err := qs.CreateChapter(r.Context(), viewer(r), qbank.Chapter{
			ProductID: chi.URLParam(r, "id"), Title: req.Title, Description: req.Description, Order: req.Order,
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

// GET /products/{id}/chapters
func ListChaptersHandler(qs *qbank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := qs.ListChapters(r.Context(), viewer(r), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// POST /chapters/{id}/topics
func CreateTopicHandler(qs *qbank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req orderedReq
		if !decode(w, r, &req) {
			return
		}
		t, err := qs.CreateTopic(r.Context(), viewer(r), qbank.Topic{
			ChapterID: chi.URLParam(r, "id"), Title: req.Title, Description: req.Description, Order: req.Order,
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

// GET /chapters/{id}/topics
func ListTopicsHandler(qs *qbank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := qs.ListTopics(r.Context(), viewer(r), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
