package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func list(items ...string) ListFunc {
	return func(_ context.Context, offset, limit int) (any, error) {
		if offset >= len(items) {
			return []string{}, nil
		}
		end := offset + limit
		if end > len(items) {
			end = len(items)
		}
		return items[offset:end], nil
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(nil,
		Resource{Name: "users", List: list()},
		Resource{Name: "users", List: list()},
	)
	if err == nil {
		t.Fatal("duplicate accepted")
	}
	if _, err := NewRegistry(nil, Resource{Name: "a/b", List: list()}); err == nil {
		t.Fatal("slash accepted")
	}
	if _, err := NewRegistry(nil, Resource{Name: "x"}); err == nil {
		t.Fatal("missing list func accepted")
	}
}

func TestRoutes(t *testing.T) {
	reg, err := NewRegistry(nil,
		Resource{Name: "banners", Title: "Banners", List: list("a", "b", "c")},
		Resource{Name: "broken", List: func(context.Context, int, int) (any, error) { return nil, errors.New("db down") }},
	)
	if err != nil {
		t.Fatal(err)
	}
	h := reg.Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var idx []entry
	json.Unmarshal(rec.Body.Bytes(), &idx)
	if len(idx) != 2 || idx[0].Name != "banners" || idx[1].Title != "broken" {
		t.Fatalf("index = %+v", idx)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/banners?offset=1&limit=1", nil))
	var page struct {
		Items  []string `json:"items"`
		Offset int      `json:"offset"`
	}
	json.Unmarshal(rec.Body.Bytes(), &page)
	if rec.Code != http.StatusOK || len(page.Items) != 1 || page.Items[0] != "b" || page.Offset != 1 {
		t.Fatalf("page = %d %+v", rec.Code, page)
	}

	for path, want := range map[string]int{"/nope": http.StatusNotFound, "/broken": http.StatusInternalServerError} {
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Errorf("%s = %d, want %d", path, rec.Code, want)
		}
	}
}
