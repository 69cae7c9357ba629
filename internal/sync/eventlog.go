// Package syncx keeps an append-only log of domain events (submissions,
// grades, completions) that downstream consumers read by sequence number.
package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mind-engage/mindengage-assess/internal/db"
)

// Event types.
const (
	TypeSubmissionStarted   = "submission.started"
	TypeSubmissionSubmitted = "submission.submitted"
	TypeSubmissionGraded    = "submission.graded"
	TypeSubmissionLate      = "submission.late"
	TypeEnrollmentCreated   = "enrollment.created"
	TypeEnrollmentCompleted = "enrollment.completed"
	TypeImportFinished      = "import.finished"
)

type Event struct {
	Seq       int64           `json:"seq"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"`
}

type EventRepo struct{ db *sql.DB }

func NewEventRepo(h *sql.DB) *EventRepo { return &EventRepo{db: h} }

// Append writes one event through q, so callers can log inside their own
// transaction. data is JSON encoded.
func (r *EventRepo) Append(ctx context.Context, q db.Querier, typ, key string, data any) error {
	if q == nil {
		q = r.db
	}
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at) VALUES ($1,$2,$3,$4)`,
		typ, key, string(b), time.Now().Unix())
	return err
}

// Since returns up to limit events with seq > after, oldest first.
func (r *EventRepo) Since(ctx context.Context, after int64, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, typ, key, data, created_at FROM event_log WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var e Event
		var data string
		if err := rows.Scan(&e.Seq, &e.Type, &e.Key, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		out = append(out, e)
	}
	return out, rows.Err()
}
