package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
	"github.com/mind-engage/mindengage-assess/internal/users"
)

type fakeDir struct{ roles map[string]string }

func (f fakeDir) Authenticate(_ context.Context, username, password string) (users.User, error) {
	if username == "ann" && password == "pw" {
		return users.User{ID: "u-ann", Username: "ann", Role: rbac.RoleInstructor}, nil
	}
	return users.User{}, apperr.Permission("invalid credentials")
}

func (f fakeDir) RoleOf(_ context.Context, sub string) (string, error) {
	if r, ok := f.roles[sub]; ok {
		return r, nil
	}
	return "", apperr.NotFound("user %s not found", sub)
}

func echoViewer() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := rbac.ViewerFromContext(r.Context())
		_, _ = io.WriteString(w, v.ID+"|"+v.Role)
	})
}

func TestLoginThenJWTMiddleware(t *testing.T) {
	a := NewAuthService("test-secret", 0)
	login := LoginHandler(a, fakeDir{})

	rec := httptest.NewRecorder()
	login(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"ann","password":"pw"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d", rec.Code)
	}
	body := rec.Body.String()
	start := strings.Index(body, `"access_token":"`) + len(`"access_token":"`)
	tok := body[start : start+strings.Index(body[start:], `"`)]

	h := JWTMiddleware(a)(echoViewer())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Body.String(); got != "u-ann|instructor" {
		t.Fatalf("viewer = %q", got)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	rec := httptest.NewRecorder()
	LoginHandler(NewAuthService("s", 0), fakeDir{})(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"ann","password":"nope"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestJWTMiddlewareRejectsForeignToken(t *testing.T) {
	other := NewAuthService("other-secret", 0)
	tok, _ := other.IssueJWT("x", rbac.RoleAdmin)
	h := JWTMiddleware(NewAuthService("test-secret", 0))(echoViewer())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestAttachRoleFromDB(t *testing.T) {
	dir := fakeDir{roles: map[string]string{"u1": rbac.RoleStudent}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	run := func(sub, claim string, fallback bool) *httptest.ResponseRecorder {
		h := AttachRoleFromDB(dir, fallback, log)(echoViewer())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := rbac.WithRole(rbac.WithSubject(req.Context(), sub), claim)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req.WithContext(ctx))
		return rec
	}

	if got := run("u1", rbac.RoleAdmin, false).Body.String(); got != "u1|student" {
		t.Fatalf("stored role should win, got %q", got)
	}
	if rec := run("ghost", rbac.RoleStudent, false); rec.Code != http.StatusForbidden {
		t.Fatalf("unknown subject without fallback: %d", rec.Code)
	}
	if got := run("ghost", rbac.RoleStudent, true).Body.String(); got != "ghost|student" {
		t.Fatalf("fallback = %q", got)
	}
}
