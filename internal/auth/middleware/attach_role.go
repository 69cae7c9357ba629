package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
)

// RoleSource looks up the authoritative role of a subject.
type RoleSource interface {
	RoleOf(ctx context.Context, sub string) (string, error)
}

// AttachRoleFromDB replaces the token role with the stored one, so demoting a
// user takes effect before their token expires. allowClaimFallback keeps the
// claim role for subjects missing from the directory (dev/offline only).
func AttachRoleFromDB(src RoleSource, allowClaimFallback bool, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := rbac.SubjectFromContext(ctx)
			claimRole := rbac.RoleFromContext(ctx)

			role, err := src.RoleOf(ctx, sub)
			switch {
			case err == nil && role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case errors.Is(err, apperr.ErrNotFound) && allowClaimFallback && claimRole != "":
				next.ServeHTTP(w, r)
			case err != nil && !errors.Is(err, apperr.ErrNotFound):
				log.Error("role lookup failed", "sub", sub, "err", err)
				http.Error(w, "forbidden", http.StatusForbidden)
			default:
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}
