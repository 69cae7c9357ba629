// Package catalog owns course and category metadata. Products and
// assessments reference courses by id.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/db"
)

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type Course struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CategoryID  string    `json:"category_id,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store struct {
	db *sql.DB
}

func NewStore(h *sql.DB) *Store { return &Store{db: h} }

func (s *Store) CreateCategory(ctx context.Context, c Category) (Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return Category{}, apperr.Validation("category name required")
	}
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().UTC().Truncate(time.Second)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id,name,description,created_at) VALUES ($1,$2,$3,$4)`,
		c.ID, c.Name, c.Description, c.CreatedAt.Unix())
	if db.IsUniqueViolation(err) {
		return Category{}, apperr.Conflict("category %q already exists", c.Name)
	}
	return c, err
}

func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,name,description,created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Category{}
	for rows.Next() {
		var c Category
		var created int64
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = db.FromUnix(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCourse(ctx context.Context, c Course) (Course, error) {
	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		return Course{}, apperr.Validation("course title required")
	}
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().UTC().Truncate(time.Second)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO courses (id,title,description,category_id,created_by,created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.Title, c.Description, db.NullStr(c.CategoryID), c.CreatedBy, c.CreatedAt.Unix())
	if err != nil {
		return Course{}, err
	}
	return c, nil
}

func (s *Store) GetCourse(ctx context.Context, id string) (Course, error) {
	var c Course
	var cat sql.NullString
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id,title,description,category_id,created_by,created_at FROM courses WHERE id=$1`, id).
		Scan(&c.ID, &c.Title, &c.Description, &cat, &c.CreatedBy, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, apperr.NotFound("course %s not found", id)
	}
	if err != nil {
		return Course{}, err
	}
	c.CategoryID = cat.String
	c.CreatedAt = db.FromUnix(created)
	return c, nil
}

func (s *Store) ListCourses(ctx context.Context, categoryID string, offset, limit int) ([]Course, error) {
	var args db.Args
	var conds []string
	if categoryID != "" {
		conds = append(conds, "category_id="+args.Add(categoryID))
	}
	q := `SELECT id,title,description,category_id,created_by,created_at FROM courses` +
		db.Where(conds) + ` ORDER BY title` + args.Page(offset, limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Course{}
	for rows.Next() {
		var c Course
		var cat sql.NullString
		var created int64
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &cat, &c.CreatedBy, &created); err != nil {
			return nil, err
		}
		c.CategoryID = cat.String
		c.CreatedAt = db.FromUnix(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) DeleteCourse(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM courses WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("course %s not found", id)
	}
	return nil
}
