package content

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/db"
)

// Collection is a curated, ordered group of courses for the landing page.
type Collection struct {
	ID           string    `json:"id"`
	Title        string    `json:"title" validate:"required,max=200"`
	Description  string    `json:"description"`
	CourseIDs    []string  `json:"course_ids"`
	IsActive     bool      `json:"is_active"`
	DisplayOrder int       `json:"display_order" validate:"gte=0"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *Store) CreateCollection(ctx context.Context, c Collection) (Collection, error) {
	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		return Collection{}, apperr.Validation("title is required")
	}
	if c.CourseIDs == nil {
		c.CourseIDs = []string{}
	}
	c.ID = uuid.NewString()
	c.CreatedAt = s.now().Truncate(time.Second)
	_, err := s.db.ExecContext(ctx, `INSERT INTO collections (id,title,description,course_ids_json,is_active,
		display_order,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.Title, c.Description, db.EncodeList(c.CourseIDs), c.IsActive, c.DisplayOrder, c.CreatedAt.Unix())
	if err != nil {
		return Collection{}, err
	}
	return c, nil
}

// ListCollections lists collections by display order. activeOnly hides the
// inactive ones from the public listing.
func (s *Store) ListCollections(ctx context.Context, activeOnly bool) ([]Collection, error) {
	var args db.Args
	var conds []string
	if activeOnly {
		conds = append(conds, "is_active="+args.Add(true))
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,title,description,course_ids_json,is_active,display_order,created_at
		FROM collections`+db.Where(conds)+` ORDER BY display_order, created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Collection{}
	for rows.Next() {
		var c Collection
		var ids string
		var created int64
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &ids, &c.IsActive, &c.DisplayOrder, &created); err != nil {
			return nil, err
		}
		c.CourseIDs = db.DecodeList[string](ids)
		c.CreatedAt = db.FromUnix(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("collection %s not found", id)
	}
	return nil
}
