package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-assess/internal/users"
)

// Directory is the user store as seen by the handlers.
type Directory interface {
	List(ctx context.Context, role string) ([]users.User, error)
	BulkUpsert(ctx context.Context, rows []users.Row) (inserted, updated int, err error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
}

// GET /users?role=
func ListUsersHandler(dir Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := dir.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("role")))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// POST /users/bulk accepts a multipart file= (CSV or JSON) or a raw JSON array.
func BulkUpsertUsersHandler(dir Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []users.Row
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				writeErr(w, http.StatusBadRequest, "file required")
				return
			}
			defer f.Close()
			body, err := io.ReadAll(io.LimitReader(f, 10<<20))
			if err != nil {
				writeErr(w, http.StatusBadRequest, "read file")
				return
			}
			trimmed := strings.TrimSpace(string(body))
			if strings.HasPrefix(trimmed, "[") {
				if err := json.Unmarshal(body, &rows); err != nil {
					writeErr(w, http.StatusBadRequest, "bad json")
					return
				}
			} else if rows, err = parseUserCSV(strings.NewReader(trimmed)); err != nil {
				writeErr(w, http.StatusBadRequest, "bad csv: "+err.Error())
				return
			}
		} else if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&rows); err != nil {
			writeErr(w, http.StatusBadRequest, "expected JSON array or multipart file")
			return
		}
		if len(rows) == 0 {
			writeJSON(w, http.StatusOK, map[string]int{"inserted": 0, "updated": 0})
			return
		}
		ins, upd, err := dir.BulkUpsert(r.Context(), rows)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"inserted": ins, "updated": upd})
	}
}

func parseUserCSV(r io.Reader) ([]users.Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"id", "username", "role"} {
		if _, ok := idx[k]; !ok {
			return nil, errors.New("missing column: " + k)
		}
	}
	var rows []users.Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := users.Row{
			ID:       rec[idx["id"]],
			Username: rec[idx["username"]],
			Role:     strings.ToLower(rec[idx["role"]]),
		}
		if i, ok := idx["password"]; ok {
			row.Password = rec[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// POST /users/change-password {old_password,new_password}
func ChangePasswordHandler(dir Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OldPassword string `json:"old_password" validate:"required"`
			NewPassword string `json:"new_password" validate:"required,min=8"`
		}
		if !decode(w, r, &req) {
			return
		}
		if err := dir.ChangePassword(r.Context(), viewer(r).ID, req.OldPassword, req.NewPassword); err != nil {
			fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
