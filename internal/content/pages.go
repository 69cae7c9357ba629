package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/db"
)

// Page kinds. Policy pages are read through LatestPage; FAQ entries and
// partners are listed in display order.
const (
	PagePrivacyPolicy = "privacy_policy"
	PageTerms         = "terms_conditions"
	PageRefundFAQ     = "refunding_faq"
	PageContactInfo   = "contact_info"
	PagePartnership   = "partnership"
)

var defaultPageTitles = map[string]string{
	PagePrivacyPolicy: "Privacy Policy",
	PageTerms:         "Terms and Conditions",
	PageContactInfo:   "Contact Us",
}

func ValidPageKind(k string) bool {
	switch k {
	case PagePrivacyPolicy, PageTerms, PageRefundFAQ, PageContactInfo, PagePartnership:
		return true
	}
	return false
}

// Page is one versioned entry of static site content. For FAQ entries Title
// is the question and Content the answer; partners keep their logo and
// website in Fields, contact info its email, phone and social links.
type Page struct {
	ID           string            `json:"id"`
	Kind         string            `json:"kind"`
	Title        string            `json:"title" validate:"max=300"`
	Content      string            `json:"content"`
	Fields       map[string]string `json:"fields"`
	IsActive     bool              `json:"is_active"`
	DisplayOrder int               `json:"display_order" validate:"gte=0"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

const pageCols = `id,kind,title,content,fields_json,is_active,display_order,created_at,updated_at`

func scanPage(sc interface{ Scan(...any) error }) (Page, error) {
	var p Page
	var fields string
	var created, updated int64
	if err := sc.Scan(&p.ID, &p.Kind, &p.Title, &p.Content, &fields, &p.IsActive, &p.DisplayOrder,
		&created, &updated); err != nil {
		return Page{}, err
	}
	p.Fields = map[string]string{}
	_ = json.Unmarshal([]byte(fields), &p.Fields)
	p.CreatedAt, p.UpdatedAt = db.FromUnix(created), db.FromUnix(updated)
	return p, nil
}

func normalizePage(p *Page) error {
	if !ValidPageKind(p.Kind) {
		return apperr.Validation("unknown page kind %q", p.Kind)
	}
	p.Title = strings.TrimSpace(p.Title)
	p.Content = strings.TrimSpace(p.Content)
	if p.Title == "" {
		p.Title = defaultPageTitles[p.Kind]
	}
	if p.Fields == nil {
		p.Fields = map[string]string{}
	}
	if p.DisplayOrder < 0 {
		return apperr.Validation("display_order must be >= 0")
	}
	switch p.Kind {
	case PagePrivacyPolicy, PageTerms:
		if p.Content == "" {
			return apperr.Validation("content is required")
		}
	case PageRefundFAQ:
		if p.Title == "" || p.Content == "" {
			return apperr.Validation("question and answer are required")
		}
	case PageContactInfo:
		if _, err := mail.ParseAddress(p.Fields["email"]); err != nil {
			return apperr.Validation("contact info needs a valid email")
		}
	case PagePartnership:
		if p.Title == "" {
			return apperr.Validation("partner name is required")
		}
	}
	return nil
}

func (s *Store) CreatePage(ctx context.Context, p Page) (Page, error) {
	if err := normalizePage(&p); err != nil {
		return Page{}, err
	}
	now := s.now().Truncate(time.Second)
	p.ID = uuid.NewString()
	p.CreatedAt, p.UpdatedAt = now, now
	fields, _ := json.Marshal(p.Fields)
	_, err := s.db.ExecContext(ctx, `INSERT INTO pages (`+pageCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.Kind, p.Title, p.Content, string(fields), p.IsActive, p.DisplayOrder, now.Unix(), now.Unix())
	if err != nil {
		return Page{}, err
	}
	return p, nil
}

// UpdatePage replaces a page of the same kind and bumps updated_at, which
// makes it the latest version.
func (s *Store) UpdatePage(ctx context.Context, p Page) (Page, error) {
	if err := normalizePage(&p); err != nil {
		return Page{}, err
	}
	cur, err := s.getPage(ctx, p.Kind, p.ID)
	if err != nil {
		return Page{}, err
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = s.now().Truncate(time.Second)
	fields, _ := json.Marshal(p.Fields)
	_, err = s.db.ExecContext(ctx, `UPDATE pages SET title=$1, content=$2, fields_json=$3, is_active=$4,
		display_order=$5, updated_at=$6 WHERE id=$7`,
		p.Title, p.Content, string(fields), p.IsActive, p.DisplayOrder, p.UpdatedAt.Unix(), p.ID)
	if err != nil {
		return Page{}, err
	}
	return p, nil
}

func (s *Store) getPage(ctx context.Context, kind, id string) (Page, error) {
	p, err := scanPage(s.db.QueryRowContext(ctx, `SELECT `+pageCols+` FROM pages WHERE id=$1 AND kind=$2`, id, kind))
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, apperr.NotFound("%s page %s not found", kind, id)
	}
	return p, err
}

func (s *Store) DeletePage(ctx context.Context, kind, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE id=$1 AND kind=$2`, id, kind)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("%s page %s not found", kind, id)
	}
	return nil
}

// ListPages lists the pages of one kind by display order, newest first
// within the same order.
func (s *Store) ListPages(ctx context.Context, kind string, activeOnly bool) ([]Page, error) {
	if !ValidPageKind(kind) {
		return nil, apperr.Validation("unknown page kind %q", kind)
	}
	var args db.Args
	conds := []string{"kind=" + args.Add(kind)}
	if activeOnly {
		conds = append(conds, "is_active="+args.Add(true))
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+pageCols+` FROM pages`+db.Where(conds)+
		` ORDER BY display_order, updated_at DESC, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Page{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LatestPage returns the most recently updated active page of kind.
func (s *Store) LatestPage(ctx context.Context, kind string) (Page, error) {
	if !ValidPageKind(kind) {
		return Page{}, apperr.Validation("unknown page kind %q", kind)
	}
	p, err := scanPage(s.db.QueryRowContext(ctx, `SELECT `+pageCols+` FROM pages WHERE kind=$1 AND is_active=$2
		ORDER BY updated_at DESC, created_at DESC, id LIMIT 1`, kind, true))
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, apperr.NotFound("no active %s page", kind)
	}
	return p, err
}
