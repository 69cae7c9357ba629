// Package users is the user directory: accounts, roles and bcrypt password
// hashes. Other packages only hold user ids.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
)

const bcryptCost = 12

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Row is one entry of a bulk upsert. Password is optional for existing users.
type Row struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Password string `json:"password,omitempty"`
}

type Store struct {
	db *sql.DB
}

func NewStore(h *sql.DB) *Store { return &Store{db: h} }

// Authenticate checks username/password and returns the user.
func (s *Store) Authenticate(ctx context.Context, username, password string) (User, error) {
	var u User
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, role, password_hash FROM users WHERE username=$1`,
		strings.TrimSpace(username)).Scan(&u.ID, &u.Username, &u.Role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apperr.Permission("invalid credentials")
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, apperr.Permission("invalid credentials")
	}
	return u, nil
}

// RoleOf returns the stored role for an id or username.
func (s *Store) RoleOf(ctx context.Context, sub string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM users WHERE id=$1 OR username=$1`, sub).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFound("user %s not found", sub)
	}
	return role, err
}

func (s *Store) List(ctx context.Context, role string) ([]User, error) {
	var rows *sql.Rows
	var err error
	if role == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT id,username,role FROM users ORDER BY username`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT id,username,role FROM users WHERE role=$1 ORDER BY username`, role)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// BulkUpsert inserts new users and updates existing ones (matched by id or
// username) in one transaction.
func (s *Store) BulkUpsert(ctx context.Context, rows []Row) (inserted, updated int, err error) {
	now := time.Now().Unix()
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, r := range rows {
			r.Username = strings.TrimSpace(r.Username)
			r.Role = strings.ToLower(strings.TrimSpace(r.Role))
			if r.Role == "" {
				r.Role = rbac.RoleStudent
			}
			if !rbac.ValidRole(r.Role) {
				return apperr.Validation("invalid role: %s", r.Role)
			}
			if r.Username == "" {
				return apperr.Validation("username required")
			}
			var phash string
			if r.Password != "" {
				b, err := bcrypt.GenerateFromPassword([]byte(r.Password), bcryptCost)
				if err != nil {
					return err
				}
				phash = string(b)
			}

			var existingID string
			err := tx.QueryRowContext(ctx,
				`SELECT id FROM users WHERE id=$1 OR username=$2`, r.ID, r.Username).Scan(&existingID)
			switch {
			case err == nil:
				if phash != "" {
					_, err = tx.ExecContext(ctx, `UPDATE users SET username=$1, role=$2, password_hash=$3 WHERE id=$4`,
						r.Username, r.Role, phash, existingID)
				} else {
					_, err = tx.ExecContext(ctx, `UPDATE users SET username=$1, role=$2 WHERE id=$3`,
						r.Username, r.Role, existingID)
				}
				if err != nil {
					return err
				}
				updated++
			case errors.Is(err, sql.ErrNoRows):
				if phash == "" {
					return apperr.Validation("password required for new user: %s", r.Username)
				}
				if r.ID == "" {
					r.ID = uuid.NewString()
				}
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$2,$3,$4,$5)`,
					r.ID, r.Username, phash, r.Role, now); err != nil {
					return err
				}
				inserted++
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

func (s *Store) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if newPassword == "" {
		return apperr.Validation("new password required")
	}
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id=$1`, userID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("user not found")
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte(oldPassword)) != nil {
		return apperr.Permission("incorrect old password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, string(hash), userID)
	return err
}

// EnsureAdmin creates the bootstrap admin account if it does not exist yet.
func (s *Store) EnsureAdmin(ctx context.Context, username, passHash string) error {
	if username == "" || passHash == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (username) DO NOTHING`,
		uuid.NewString(), username, passHash, rbac.RoleAdmin, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	return nil
}
