package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-assess/internal/content"
)

// GET /banners/active?type= (public)
func ActiveBannersHandler(cs *content.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := cs.ActiveBanners(r.Context(), r.URL.Query().Get("type"), time.Now().UTC())
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /banners?type=
func ListBannersHandler(cs *content.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, limit := parsePage(r, 0, 100)
		list, err := cs.ListBanners(r.Context(), r.URL.Query().Get("type"), offset, limit)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// POST /banners
func CreateBannerHandler(cs *content.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var b content.Banner
		if !decode(w, r, &b) {
			return
		}
		out, err := cs.CreateBanner(r.Context(), b)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

// PUT /banners/{id}
func UpdateBannerHandler(cs *content.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var b content.Banner
		if !decode(w, r, &b) {
			return
		}
		b.ID = chi.URLParam(r, "id")
		out, err := cs.UpdateBanner(r.Context(), b)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// DELETE /banners/{id}
func DeleteBannerHandler(cs *content.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cs.DeleteBanner(r.Context(), chi.URLParam(r, "id")); err != nil {
			fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /contact (public)
func CreateContactHandler(cs *content.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m content.ContactMessage
		if !decode(w, r, &m) {
			return
		}
		out, err := cs.CreateContact(r.Context(), m)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "Thank you for your message. We will get back to you soon.",
			"id":      out.ID,
		})
	}
}

// GET /contact?unread=1
func ListContactsHandler(cs *content.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, limit := parsePage(r, 0, 100)
		list, err := cs.ListContacts(r.Context(), queryBool(r, "unread"), offset, limit)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// POST /contact/{id}/read
func MarkContactReadHandler(cs *content.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cs.MarkContactRead(r.Context(), chi.URLParam(r, "id")); err != nil {
			fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /contact/stats
func ContactStatsHandler(cs *content.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := cs.ContactStats(r.Context())
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// GET /collections. activeOnly hides inactive collections from the public listing.
func ListCollectionsHandler(cs *content.Store, activeOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := cs.ListCollections(r.Context(), activeOnly)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// POST /collections
func CreateCollectionHandler(cs *content.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c content.Collection
		if !decode(w, r, &c) {
			return
		}
		out, err := cs.CreateCollection(r.Context(), c)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

// DELETE /collections/{id}
func DeleteCollectionHandler(cs *content.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cs.DeleteCollection(r.Context(), chi.URLParam(r, "id")); err != nil {
			fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type pageRequest struct {
	Title        string            `json:"title" validate:"max=300"`
	Content      string            `json:"content"`
	Fields       map[string]string `json:"fields"`
	IsActive     *bool             `json:"is_active"`
	DisplayOrder int               `json:"display_order" validate:"gte=0"`
}

func (req pageRequest) page(r *http.Request) content.Page {
	p := content.Page{
		ID:           chi.URLParam(r, "id"),
		Kind:         chi.URLParam(r, "kind"),
		Title:        req.Title,
		Content:      req.Content,
		Fields:       req.Fields,
		IsActive:     true,
		DisplayOrder: req.DisplayOrder,
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	return p
}

// GET /pages/{kind} (public). activeOnly is false for the staff listing.
func ListPagesHandler(cs *content.Store, activeOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := cs.ListPages(r.Context(), chi.URLParam(r, "kind"), activeOnly)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /pages/{kind}/latest (public)
func LatestPageHandler(cs *content.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := cs.LatestPage(r.Context(), chi.URLParam(r, "kind"))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// POST /pages/{kind}
func CreatePageHandler(cs *content.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pageRequest
		if !decode(w, r, &req) {
			return
		}
		out, err := cs.CreatePage(r.Context(), req.page(r))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

// PUT /pages/{kind}/{id}
func UpdatePageHandler(cs *content.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pageRequest
		if !decode(w, r, &req) {
			return
		}
		out, err := cs.UpdatePage(r.Context(), req.page(r))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// DELETE /pages/{kind}/{id}
func DeletePageHandler(cs *content.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cs.DeletePage(r.Context(), chi.URLParam(r, "kind"), chi.URLParam(r, "id")); err != nil {
			fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
