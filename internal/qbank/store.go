package qbank

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
)

// SQLStore persists the product hierarchy and its questions.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(h *sql.DB) *SQLStore {
	return &SQLStore{db: h, now: func() time.Time { return time.Now().UTC() }}
}

// ---------------------------- products -------------------------------------

type ProductFilter struct {
	Kind         Kind
	CourseID     string
	EnrolledOnly bool // students: only products they hold an active enrollment for
	Offset       int
	Limit        int
}

const productCols = `id,kind,title,description,status,course_id,price,is_free,is_certified,tags_json,created_by,created_at,updated_at`

func scanProduct(sc interface{ Scan(...any) error }) (Product, error) {
	var p Product
	var course sql.NullString
	var tags string
	var created, updated int64
	err := sc.Scan(&p.ID, &p.Kind, &p.Title, &p.Description, &p.Status, &course, &p.Price,
		&p.IsFree, &p.IsCertified, &tags, &p.CreatedBy, &created, &updated)
	if err != nil {
		return Product{}, err
	}
	p.CourseID = course.String
	p.Tags = db.DecodeList[string](tags)
	p.CreatedAt = db.FromUnix(created)
	p.UpdatedAt = db.FromUnix(updated)
	return p, nil
}

func (p *Product) normalize() error {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return apperr.Validation("title is required")
	}
	if !p.Kind.Valid() {
		return apperr.Validation("invalid product kind %q", p.Kind)
	}
	if p.Status == "" {
		p.Status = StatusDraft
	}
	if !validStatus(p.Status) {
		return apperr.Validation("invalid status %q", p.Status)
	}
	if p.Price < 0 {
		return apperr.Validation("price must be >= 0")
	}
	if p.IsFree {
		p.Price = 0
	}
	return nil
}

func (s *SQLStore) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if err := p.normalize(); err != nil {
		return Product{}, err
	}
	now := s.now().Truncate(time.Second)
	p.ID = uuid.NewString()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Tags == nil {
		p.Tags = []string{}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO products (`+productCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID, p.Kind, p.Title, p.Description, p.Status, db.NullStr(p.CourseID), p.Price,
		p.IsFree, p.IsCertified, db.EncodeList(p.Tags), p.CreatedBy, now.Unix(), now.Unix())
	if db.IsUniqueViolation(err) {
		return Product{}, apperr.Conflict("a %s product already exists for this course", p.Kind)
	}
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *SQLStore) GetProduct(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, apperr.NotFound("product %s not found", id)
	}
	return p, err
}

// ProductFor returns the product if the viewer may see it.
func (s *SQLStore) ProductFor(ctx context.Context, v rbac.Viewer, id string) (Product, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if !canSeeProduct(v, p) {
		return Product{}, apperr.NotFound("product %s not found", id)
	}
	return p, nil
}

func canSeeProduct(v rbac.Viewer, p Product) bool {
	switch {
	case v.IsAdmin():
		return true
	case v.IsInstructor():
		return p.CreatedBy == v.ID
	default:
		return p.Status == StatusPublished
	}
}

func (s *SQLStore) ListProducts(ctx context.Context, v rbac.Viewer, f ProductFilter) ([]Product, error) {
	var args db.Args
	var conds []string
	if f.Kind != "" {
		conds = append(conds, "kind="+args.Add(string(f.Kind)))
	}
	if f.CourseID != "" {
		conds = append(conds, "course_id="+args.Add(f.CourseID))
	}
	switch {
	case v.IsAdmin():
	case v.IsInstructor():
		conds = append(conds, "created_by="+args.Add(v.ID))
	default:
		conds = append(conds, "status="+args.Add(StatusPublished))
		if f.EnrolledOnly {
			conds = append(conds, `id IN (SELECT product_id FROM enrollments
				WHERE student_id=`+args.Add(v.ID)+` AND status IN ('active','completed'))`)
		}
	}
	q := `SELECT ` + productCols + ` FROM products` + db.Where(conds) +
		` ORDER BY created_at DESC, id` + args.Page(f.Offset, f.Limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProduct replaces the editable fields. Kind and owner never change.
func (s *SQLStore) UpdateProduct(ctx context.Context, v rbac.Viewer, p Product) (Product, error) {
	cur, err := s.ownedProduct(ctx, v, p.ID)
	if err != nil {
		return Product{}, err
	}
	p.Kind, p.CreatedBy, p.CreatedAt = cur.Kind, cur.CreatedBy, cur.CreatedAt
	if err := p.normalize(); err != nil {
		return Product{}, err
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	p.UpdatedAt = s.now().Truncate(time.Second)
	_, err = s.db.ExecContext(ctx, `UPDATE products SET title=$1, description=$2, status=$3, course_id=$4,
		price=$5, is_free=$6, is_certified=$7, tags_json=$8, updated_at=$9 WHERE id=$10`,
		p.Title, p.Description, p.Status, db.NullStr(p.CourseID), p.Price, p.IsFree, p.IsCertified,
		db.EncodeList(p.Tags), p.UpdatedAt.Unix(), p.ID)
	if db.IsUniqueViolation(err) {
		return Product{}, apperr.Conflict("a %s product already exists for this course", p.Kind)
	}
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *SQLStore) DeleteProduct(ctx context.Context, v rbac.Viewer, id string) error {
	if _, err := s.ownedProduct(ctx, v, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id=$1`, id)
	return err
}

// ownedProduct loads a product the viewer may modify.
func (s *SQLStore) ownedProduct(ctx context.Context, v rbac.Viewer, id string) (Product, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if !v.IsAdmin() && p.CreatedBy != v.ID {
		return Product{}, apperr.Permission("only the product owner can modify it")
	}
	return p, nil
}

// ---------------------------- chapters / topics ----------------------------

func (s *SQLStore) CreateChapter(ctx context.Context, v rbac.Viewer, c Chapter) (Chapter, error) {
	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		return Chapter{}, apperr.Validation("title is required")
	}
	if _, err := s.ownedProduct(ctx, v, c.ProductID); err != nil {
		return Chapter{}, err
	}
	if c.Order <= 0 {
		if err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(ord),0)+1 FROM chapters WHERE product_id=$1`, c.ProductID).Scan(&c.Order); err != nil {
			return Chapter{}, err
		}
	}
	c.ID = uuid.NewString()
	c.CreatedAt = s.now().Truncate(time.Second)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chapters (id,product_id,title,description,ord,created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.ProductID, c.Title, c.Description, c.Order, c.CreatedAt.Unix())
	if db.IsUniqueViolation(err) {
		return Chapter{}, apperr.Conflict("chapter order %d already used in this product", c.Order)
	}
	if err != nil {
		return Chapter{}, err
	}
	return c, nil
}

func (s *SQLStore) ListChapters(ctx context.Context, v rbac.Viewer, productID string) ([]Chapter, error) {
	if _, err := s.ProductFor(ctx, v, productID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,product_id,title,description,ord,created_at FROM chapters WHERE product_id=$1 ORDER BY ord`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Chapter{}
	for rows.Next() {
		var c Chapter
		var created int64
		if err := rows.Scan(&c.ID, &c.ProductID, &c.Title, &c.Description, &c.Order, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = db.FromUnix(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateTopic(ctx context.Context, v rbac.Viewer, t Topic) (Topic, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return Topic{}, apperr.Validation("title is required")
	}
	var productID string
	err := s.db.QueryRowContext(ctx, `SELECT product_id FROM chapters WHERE id=$1`, t.ChapterID).Scan(&productID)
	if errors.Is(err, sql.ErrNoRows) {
		return Topic{}, apperr.NotFound("chapter %s not found", t.ChapterID)
	}
	if err != nil {
		return Topic{}, err
	}
	if _, err := s.ownedProduct(ctx, v, productID); err != nil {
		return Topic{}, err
	}
	if t.Order <= 0 {
		if err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(ord),0)+1 FROM topics WHERE chapter_id=$1`, t.ChapterID).Scan(&t.Order); err != nil {
			return Topic{}, err
		}
	}
	t.ID = uuid.NewString()
	t.CreatedAt = s.now().Truncate(time.Second)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO topics (id,chapter_id,title,description,ord,created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.ChapterID, t.Title, t.Description, t.Order, t.CreatedAt.Unix())
	if db.IsUniqueViolation(err) {
		return Topic{}, apperr.Conflict("topic order %d already used in this chapter", t.Order)
	}
	if err != nil {
		return Topic{}, err
	}
	return t, nil
}

func (s *SQLStore) ListTopics(ctx context.Context, v rbac.Viewer, chapterID string) ([]Topic, error) {
	var productID string
	err := s.db.QueryRowContext(ctx, `SELECT product_id FROM chapters WHERE id=$1`, chapterID).Scan(&productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("chapter %s not found", chapterID)
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.ProductFor(ctx, v, productID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,chapter_id,title,description,ord,created_at FROM topics WHERE chapter_id=$1 ORDER BY ord`, chapterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Topic{}
	for rows.Next() {
		var t Topic
		var created int64
		if err := rows.Scan(&t.ID, &t.ChapterID, &t.Title, &t.Description, &t.Order, &created); err != nil {
			return nil, err
		}
		t.CreatedAt = db.FromUnix(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

// TopicProduct resolves the product that owns a topic.
func (s *SQLStore) TopicProduct(ctx context.Context, topicID string) (Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT p.`+strings.ReplaceAll(productCols, ",", ",p.")+`
		FROM topics t JOIN chapters c ON c.id=t.chapter_id JOIN products p ON p.id=c.product_id
		WHERE t.id=$1`, topicID))
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, apperr.NotFound("topic %s not found", topicID)
	}
	return p, err
}

// OwnedTopicProduct is TopicProduct plus the ownership check for writes.
func (s *SQLStore) OwnedTopicProduct(ctx context.Context, v rbac.Viewer, topicID string) (Product, error) {
	p, err := s.TopicProduct(ctx, topicID)
	if err != nil {
		return Product{}, err
	}
	if !v.IsAdmin() && p.CreatedBy != v.ID {
		return Product{}, apperr.Permission("only the product owner can modify it")
	}
	return p, nil
}
