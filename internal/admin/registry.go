// Package admin exposes read-only, paginated listings of the platform's
// records for operators. The set of resources is fixed at startup: main
// builds one Registry and mounts its routes under /admin.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ListFunc returns one page of a resource. The result is encoded as JSON.
type ListFunc func(ctx context.Context, offset, limit int) (any, error)

type Resource struct {
	Name  string // URL segment, e.g. "submissions"
	Title string
	List  ListFunc
}

type Registry struct {
	resources []Resource
	byName    map[string]Resource
	log       *slog.Logger
}

// NewRegistry validates the resource list. Names must be unique, non-empty
// URL segments.
func NewRegistry(log *slog.Logger, resources ...Resource) (*Registry, error) {
	if log == nil {
		log = slog.Default()
	}
	reg := &Registry{byName: make(map[string]Resource, len(resources)), log: log}
	for _, res := range resources {
		name := strings.TrimSpace(res.Name)
		if name == "" || strings.ContainsAny(name, "/?# ") {
			return nil, fmt.Errorf("admin: invalid resource name %q", res.Name)
		}
		if res.List == nil {
			return nil, fmt.Errorf("admin: resource %q has no list function", name)
		}
		if _, dup := reg.byName[name]; dup {
			return nil, fmt.Errorf("admin: duplicate resource %q", name)
		}
		res.Name = name
		if res.Title == "" {
			res.Title = name
		}
		reg.byName[name] = res
		reg.resources = append(reg.resources, res)
	}
	return reg, nil
}

type entry struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Entries lists the registered resources in registration order.
func (reg *Registry) Entries() []entry {
	out := make([]entry, 0, len(reg.resources))
	for _, r := range reg.resources {
		out = append(out, entry{Name: r.Name, Title: r.Title})
	}
	return out
}

// Routes serves GET / (resource index) and GET /{resource}?offset&limit.
func (reg *Registry) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, reg.Entries())
	})
	r.Get("/{resource}", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "resource")
		res, ok := reg.byName[name]
		if !ok {
			writeErr(w, http.StatusNotFound, "unknown resource")
			return
		}
		offset, limit := parsePage(r, 0, 50)
		items, err := res.List(r.Context(), offset, limit)
		if err != nil {
			reg.log.Error("admin list failed", "resource", name, "err", err)
			writeErr(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"resource": name, "offset": offset, "limit": limit, "items": items,
		})
	})
	return r
}

func parsePage(r *http.Request, defOffset, defLimit int) (offset, limit int) {
	q := r.URL.Query()
	offset = defOffset
	limit = defLimit

	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	return
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errResp struct {
	Error string `json:"error"`
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResp{Error: msg})
}
