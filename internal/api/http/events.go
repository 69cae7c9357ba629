package http

import (
	"net/http"
	"strconv"

	syncx "github.com/mind-engage/mindengage-assess/internal/sync"
)

// GET /events?after=<seq>&limit=: the domain event feed, oldest first.
func EventsHandler(repo *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		_, limit := parsePage(r, 0, 100)
		evs, err := repo.Since(r.Context(), after, limit)
		if err != nil {
			fail(w, r, err)
			return
		}
		next := after
		if len(evs) > 0 {
			next = evs[len(evs)-1].Seq
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": evs, "next": next})
	}
}
