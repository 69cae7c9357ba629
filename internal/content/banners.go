// Package content serves the public site content: banners, course
// collections, static pages and the contact form inbox.
package content

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

var BannerTypes = []string{"main", "header", "sidebar", "promo", "about_us", "why_choose_us"}

func validBannerType(t string) bool {
	for _, v := range BannerTypes {
		if v == t {
			return true
		}
	}
	return false
}

type Banner struct {
	ID           string     `json:"id"`
	Title        string     `json:"title" validate:"required,max=200"`
	Description  string     `json:"description"`
	Image        string     `json:"image,omitempty"`
	URL          string     `json:"url,omitempty" validate:"omitempty,url"`
	Type         string     `json:"banner_type"`
	IsActive     bool       `json:"is_active"`
	DisplayOrder int        `json:"display_order" validate:"gte=0"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	ButtonText   string     `json:"button_text,omitempty"`
	ButtonURL    string     `json:"button_url,omitempty" validate:"omitempty,url"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Live reports whether the banner should be displayed at now.
func (b Banner) Live(now time.Time) bool {
	if !b.IsActive || now.Before(b.StartDate) {
		return false
	}
	return b.EndDate == nil || !now.After(*b.EndDate)
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(h *sql.DB) *Store {
	return &Store{db: h, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source. Tests only.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

const bannerCols = `id,title,description,image_key,url,banner_type,is_active,display_order,start_date,end_date,
	button_text,button_url,created_at`

func scanBanner(sc interface{ Scan(...any) error }) (Banner, error) {
	var b Banner
	var start, created int64
	var end sql.NullInt64
	err := sc.Scan(&b.ID, &b.Title, &b.Description, &b.Image, &b.URL, &b.Type, &b.IsActive, &b.DisplayOrder,
		&start, &end, &b.ButtonText, &b.ButtonURL, &created)
	if err != nil {
		return Banner{}, err
	}
	b.StartDate = db.FromUnix(start)
	b.EndDate = db.TimePtr(end)
	b.CreatedAt = db.FromUnix(created)
	return b, nil
}

func (s *Store) normalizeBanner(b *Banner) error {
	b.Title = strings.TrimSpace(b.Title)
	if b.Title == "" {
		return apperr.Validation("title is required")
	}
	if b.Type == "" {
		b.Type = "main"
	}
	if !validBannerType(b.Type) {
		return apperr.Validation("invalid banner type %q", b.Type)
	}
	if b.StartDate.IsZero() {
		b.StartDate = s.now()
	}
	b.StartDate = b.StartDate.Truncate(time.Second)
	if b.EndDate != nil && b.EndDate.Before(b.StartDate) {
		return apperr.Validation("end_date must not be before start_date")
	}
	return nil
}

func (s *Store) CreateBanner(ctx context.Context, b Banner) (Banner, error) {
	if err := s.normalizeBanner(&b); err != nil {
		return Banner{}, err
	}
	b.ID = uuid.NewString()
	b.CreatedAt = s.now().Truncate(time.Second)
	_, err := s.db.ExecContext(ctx, `INSERT INTO banners (`+bannerCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		b.ID, b.Title, b.Description, b.Image, b.URL, b.Type, b.IsActive, b.DisplayOrder,
		b.StartDate.Unix(), db.NullUnix(b.EndDate), b.ButtonText, b.ButtonURL, b.CreatedAt.Unix())
	if err != nil {
		return Banner{}, err
	}
	return b, nil
}

func (s *Store) GetBanner(ctx context.Context, id string) (Banner, error) {
	b, err := scanBanner(s.db.QueryRowContext(ctx, `SELECT `+bannerCols+` FROM banners WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Banner{}, apperr.NotFound("banner %s not found", id)
	}
	return b, err
}

func (s *Store) UpdateBanner(ctx context.Context, b Banner) (Banner, error) {
	cur, err := s.GetBanner(ctx, b.ID)
	if err != nil {
		return Banner{}, err
	}
	if err := s.normalizeBanner(&b); err != nil {
		return Banner{}, err
	}
	b.CreatedAt = cur.CreatedAt
	_, err = s.db.ExecContext(ctx, `UPDATE banners SET title=$1, description=$2, image_key=$3, url=$4, banner_type=$5,
		is_active=$6, display_order=$7, start_date=$8, end_date=$9, button_text=$10, button_url=$11 WHERE id=$12`,
		b.Title, b.Description, b.Image, b.URL, b.Type, b.IsActive, b.DisplayOrder, b.StartDate.Unix(),
		db.NullUnix(b.EndDate), b.ButtonText, b.ButtonURL, b.ID)
	if err != nil {
		return Banner{}, err
	}
	return b, nil
}

func (s *Store) DeleteBanner(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM banners WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("banner %s not found", id)
	}
	return nil
}

// ListBanners returns every banner, optionally of one type, for admins.
func (s *Store) ListBanners(ctx context.Context, typ string, offset, limit int) ([]Banner, error) {
	var args db.Args
	var conds []string
	if typ != "" {
		conds = append(conds, "banner_type="+args.Add(typ))
	}
	return s.banners(ctx, `SELECT `+bannerCols+` FROM banners`+db.Where(conds)+
		` ORDER BY display_order, created_at DESC`+args.Page(offset, limit), args...)
}

// ActiveBanners lists the banners live at now, optionally of one type,
// ordered by display_order then newest first.
func (s *Store) ActiveBanners(ctx context.Context, typ string, now time.Time) ([]Banner, error) {
	if typ != "" && !validBannerType(typ) {
		return nil, apperr.Validation("Invalid banner type. Valid types are: %s", strings.Join(BannerTypes, ", "))
	}
	var args db.Args
	ts := args.Add(now.Unix())
	conds := []string{"is_active=" + args.Add(true), "start_date<=" + ts, "(end_date IS NULL OR end_date>=" + ts + ")"}
	if typ != "" {
		conds = append(conds, "banner_type="+args.Add(typ))
	}
	return s.banners(ctx, `SELECT `+bannerCols+` FROM banners`+db.Where(conds)+
		` ORDER BY display_order, created_at DESC`, args...)
}

func (s *Store) banners(ctx context.Context, q string, args ...any) ([]Banner, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Banner{}
	for rows.Next() {
		b, err := scanBanner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
