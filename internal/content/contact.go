package content

import (
	"context"
	"database/sql"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/db"
)

type ContactMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"required,max=200"`
	Email     string    `json:"email" validate:"required,email"`
	Subject   string    `json:"subject" validate:"max=300"`
	Message   string    `json:"message" validate:"required"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateContact stores a message from the public contact form.
func (s *Store) CreateContact(ctx context.Context, m ContactMessage) (ContactMessage, error) {
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.TrimSpace(m.Email)
	m.Message = strings.TrimSpace(m.Message)
	if m.Name == "" || m.Message == "" {
		return ContactMessage{}, apperr.Validation("name and message are required")
	}
	if _, err := mail.ParseAddress(m.Email); err != nil {
		return ContactMessage{}, apperr.Validation("invalid email %q", m.Email)
	}
	m.ID = uuid.NewString()
	m.IsRead = false
	m.CreatedAt = s.now().Truncate(time.Second)
	_, err := s.db.ExecContext(ctx, `INSERT INTO contact_messages (id,name,email,subject,message,is_read,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.Name, m.Email, m.Subject, m.Message, false, m.CreatedAt.Unix())
	if err != nil {
		return ContactMessage{}, err
	}
	return m, nil
}

func (s *Store) ListContacts(ctx context.Context, unreadOnly bool, offset, limit int) ([]ContactMessage, error) {
	var args db.Args
	var conds []string
	if unreadOnly {
		conds = append(conds, "is_read="+args.Add(false))
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,name,email,subject,message,is_read,created_at
		FROM contact_messages`+db.Where(conds)+` ORDER BY created_at DESC, id`+args.Page(offset, limit), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ContactMessage{}
	for rows.Next() {
		var m ContactMessage
		var created int64
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Subject, &m.Message, &m.IsRead, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = db.FromUnix(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) MarkContactRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE contact_messages SET is_read=$1 WHERE id=$2`, true, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("message %s not found", id)
	}
	return nil
}

type ContactStats struct {
	Total  int `json:"total_messages"`
	Unread int `json:"unread_messages"`
}

func (s *Store) ContactStats(ctx context.Context) (ContactStats, error) {
	var st ContactStats
	var unread sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), SUM(CASE WHEN is_read THEN 0 ELSE 1 END)
		FROM contact_messages`).Scan(&st.Total, &unread)
	st.Unread = int(unread.Int64)
	return st, err
}
