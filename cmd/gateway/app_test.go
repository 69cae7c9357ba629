package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-assess/internal/config"
	"github.com/mind-engage/mindengage-assess/internal/db/dbtest"
	"github.com/mind-engage/mindengage-assess/internal/storage"
	"github.com/mind-engage/mindengage-assess/internal/users"
)

type harness struct {
	t *testing.T
	h http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dbh := dbtest.Open(t)
	bs, err := storage.NewFSStore(t.TempDir(), 1<<20, "/api/assets/")
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Config{
		Mode:               config.ModeOffline,
		EnableLocalAuth:    true,
		AuthSecret:         "test-secret",
		TokenTTL:           time.Hour,
		CORSOriginsOffline: []string{"http://localhost:3000"},
	}
	a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), dbh, bs)
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = a.users.BulkUpsert(context.Background(), []users.Row{
		{ID: "a1", Username: "root", Role: "admin", Password: "admin-pass"},
		{ID: "t1", Username: "teacher", Role: "instructor", Password: "teacher-pass"},
		{ID: "s1", Username: "student", Role: "student", Password: "student-pass"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return &harness{t: t, h: a.router()}
}

func (x *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	x.t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	x.h.ServeHTTP(rec, req)
	return rec
}

func (x *harness) upload(path, token, filename string, content []byte) *httptest.ResponseRecorder {
	x.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", filename)
	fw.Write(content)
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	x.h.ServeHTTP(rec, req)
	return rec
}

// must asserts the status and decodes the body into a map.
func (x *harness) must(rec *httptest.ResponseRecorder, want int) map[string]any {
	x.t.Helper()
	if rec.Code != want {
		x.t.Fatalf("status %d, want %d: %s", rec.Code, want, rec.Body.String())
	}
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return out
}

func (x *harness) login(username, password string) string {
	x.t.Helper()
	body := x.must(x.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username, "password": password,
	}), http.StatusOK)
	return body["access_token"].(string)
}

func TestAssessmentFlowEndToEnd(t *testing.T) {
	x := newHarness(t)
	teacher := x.login("teacher", "teacher-pass")
	student := x.login("student", "student-pass")

	p := x.must(x.do(http.MethodPost, "/api/products", teacher, map[string]any{
		"kind": "question_bank", "title": "Algebra bank", "status": "published",
	}), http.StatusCreated)
	ch := x.must(x.do(http.MethodPost, "/api/products/"+p["id"].(string)+"/chapters", teacher,
		map[string]any{"title": "Basics"}), http.StatusCreated)
	tp := x.must(x.do(http.MethodPost, "/api/chapters/"+ch["id"].(string)+"/topics", teacher,
		map[string]any{"title": "Sums"}), http.StatusCreated)
	q := x.must(x.do(http.MethodPost, "/api/topics/"+tp["id"].(string)+"/questions", teacher, map[string]any{
		"question_text": "2 + 2?", "question_type": "mcq", "options": []string{"3", "4", "5"}, "correct_answer": "[1]",
	}), http.StatusCreated)
	qid := q["id"].(string)

	a := x.must(x.do(http.MethodPost, "/api/assessments", teacher, map[string]any{
		"title": "Quiz 1", "status": "published", "total_marks": 10, "passing_marks": 5,
	}), http.StatusCreated)
	aid := a["id"].(string)
	x.must(x.do(http.MethodPost, "/api/assessments/"+aid+"/questions", teacher,
		map[string]any{"question_id": qid, "marks_allocated": 10}), http.StatusCreated)
	x.must(x.do(http.MethodPost, "/api/assessments/"+aid+"/questions", teacher,
		map[string]any{"question_id": qid}), http.StatusConflict)

	// Students never receive answer keys.
	rec := x.do(http.MethodGet, "/api/assessments/"+aid+"/questions", student, nil)
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), "correct_answer") {
		t.Fatalf("student questions: %d %s", rec.Code, rec.Body.String())
	}

	sub := x.must(x.do(http.MethodPost, "/api/assessments/"+aid+"/start", student, nil), http.StatusOK)
	sid := sub["id"].(string)
	answers := map[string]any{"answers": []map[string]any{{"question_id": qid, "selected_options": []int{1}}}}
	done := x.must(x.do(http.MethodPost, "/api/submissions/"+sid+"/submit", student, answers), http.StatusOK)
	if done["status"] != "submitted" || done["total_score"] != 10.0 || done["percentage"] != 100.0 || done["is_passed"] != true {
		t.Fatalf("submitted = %+v", done)
	}
	x.must(x.do(http.MethodPost, "/api/submissions/"+sid+"/submit", student, answers), http.StatusConflict)
	x.must(x.do(http.MethodPost, "/api/submissions/"+sid+"/grade", student, map[string]any{}), http.StatusForbidden)

	graded := x.must(x.do(http.MethodPost, "/api/submissions/"+sid+"/grade", teacher, map[string]any{
		"feedback": "ok", "answers": []map[string]any{{"question_id": qid, "marks_obtained": 4}},
	}), http.StatusOK)
	if graded["status"] != "graded" || graded["total_score"] != 4.0 || graded["is_passed"] != false {
		t.Fatalf("graded = %+v", graded)
	}

	stats := x.must(x.do(http.MethodGet, "/api/assessments/"+aid+"/stats", teacher, nil), http.StatusOK)
	if stats["total_submissions"] != 1.0 || stats["graded_count"] != 1.0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestAuthAndPermissions(t *testing.T) {
	x := newHarness(t)
	student := x.login("student", "student-pass")
	root := x.login("root", "admin-pass")

	x.must(x.do(http.MethodGet, "/api/products", "", nil), http.StatusUnauthorized)
	x.must(x.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "student", "password": "nope"}),
		http.StatusUnauthorized)
	x.must(x.do(http.MethodPost, "/api/products", student, map[string]any{"kind": "flashcard", "title": "x"}),
		http.StatusForbidden)
	x.must(x.do(http.MethodGet, "/api/admin", student, nil), http.StatusForbidden)

	rec := x.do(http.MethodGet, "/api/admin", root, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"submissions"`) {
		t.Fatalf("admin index: %d %s", rec.Code, rec.Body.String())
	}
	page := x.must(x.do(http.MethodGet, "/api/admin/users?limit=2", root, nil), http.StatusOK)
	if items := page["items"].([]any); len(items) != 2 {
		t.Fatalf("admin users page = %+v", page)
	}

	body := x.must(x.do(http.MethodPost, "/api/assessments", root, map[string]any{"description": "no title"}),
		http.StatusBadRequest)
	if fields, _ := body["fields"].(map[string]any); fields["title"] != "required" {
		t.Fatalf("validation body = %+v", body)
	}
}

func TestPublicContentAndEvents(t *testing.T) {
	x := newHarness(t)
	root := x.login("root", "admin-pass")

	x.must(x.do(http.MethodPost, "/api/banners", root, map[string]any{"title": "Welcome", "is_active": true}),
		http.StatusCreated)
	rec := x.do(http.MethodGet, "/api/banners/active", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Welcome") {
		t.Fatalf("active banners: %d %s", rec.Code, rec.Body.String())
	}
	x.must(x.do(http.MethodGet, "/api/banners/active?type=footer", "", nil), http.StatusBadRequest)

	x.must(x.do(http.MethodPost, "/api/contact", "", map[string]any{
		"name": "Ann", "email": "ann@example.com", "message": "hello",
	}), http.StatusCreated)
	x.must(x.do(http.MethodPost, "/api/contact", "", map[string]any{"name": "Ann", "email": "bad", "message": "x"}),
		http.StatusBadRequest)
	st := x.must(x.do(http.MethodGet, "/api/contact/stats", root, nil), http.StatusOK)
	if st["unread_messages"] != 1.0 {
		t.Fatalf("contact stats = %+v", st)
	}

	x.must(x.do(http.MethodGet, "/api/pages/terms_conditions/latest", "", nil), http.StatusNotFound)
	x.must(x.do(http.MethodPost, "/api/pages/terms_conditions", root, map[string]any{"content": "Be nice."}),
		http.StatusCreated)
	terms := x.must(x.do(http.MethodGet, "/api/pages/terms_conditions/latest", "", nil), http.StatusOK)
	if terms["title"] != "Terms and Conditions" || terms["content"] != "Be nice." || terms["is_active"] != true {
		t.Fatalf("terms = %+v", terms)
	}
	x.must(x.do(http.MethodGet, "/api/pages/careers/latest", "", nil), http.StatusBadRequest)

	// Enrolling logs an event on the feed.
	p := x.must(x.do(http.MethodPost, "/api/products", root, map[string]any{
		"kind": "flashcard", "title": "Capitals", "status": "published",
	}), http.StatusCreated)
	student := x.login("student", "student-pass")
	e := x.must(x.do(http.MethodPost, "/api/products/"+p["id"].(string)+"/enroll", student, nil), http.StatusCreated)
	x.must(x.do(http.MethodPost, "/api/products/"+p["id"].(string)+"/enroll", student, nil), http.StatusConflict)
	x.must(x.do(http.MethodPost, "/api/enrollments/"+e["id"].(string)+"/complete", student, nil), http.StatusForbidden)
	prog := x.must(x.do(http.MethodPost, "/api/enrollments/"+e["id"].(string)+"/progress", student,
		map[string]any{"progress": 150}), http.StatusOK)
	if prog["status"] != "completed" || prog["progress"] != 100.0 {
		t.Fatalf("progress = %+v", prog)
	}
	feed := x.must(x.do(http.MethodGet, "/api/events", root, nil), http.StatusOK)
	if evs := feed["events"].([]any); len(evs) != 2 {
		t.Fatalf("events = %+v", feed)
	}
}

func TestImportAndMediaUpload(t *testing.T) {
	x := newHarness(t)
	teacher := x.login("teacher", "teacher-pass")
	student := x.login("student", "student-pass")

	p := x.must(x.do(http.MethodPost, "/api/products", teacher, map[string]any{
		"kind": "question_bank", "title": "Bank", "status": "published",
	}), http.StatusCreated)
	ch := x.must(x.do(http.MethodPost, "/api/products/"+p["id"].(string)+"/chapters", teacher,
		map[string]any{"title": "Ch"}), http.StatusCreated)
	tp := x.must(x.do(http.MethodPost, "/api/chapters/"+ch["id"].(string)+"/topics", teacher,
		map[string]any{"title": "Tp"}), http.StatusCreated)

	csv := "question_text,question_type,correct_answer,difficulty_level,answer1,answer2\n" +
		"Sky colour?,mcq,Blue,easy,Red,Blue\n" +
		"Bad row,riddle,x,easy,,\n"
	rep := x.must(x.upload("/api/topics/"+tp["id"].(string)+"/import/questions", teacher, "bank.csv", []byte(csv)),
		http.StatusOK)
	if rep["created_count"] != 1.0 || len(rep["errors"].([]any)) != 1 {
		t.Fatalf("report = %+v", rep)
	}
	x.must(x.upload("/api/topics/"+tp["id"].(string)+"/import/questions", student, "bank.csv", []byte(csv)),
		http.StatusForbidden)

	rec := x.do(http.MethodGet, "/api/templates/questions.xlsx", teacher, nil)
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 || !strings.Contains(rec.Header().Get("Content-Disposition"), ".xlsx") {
		t.Fatalf("template: %d %v", rec.Code, rec.Header())
	}

	q := x.must(x.do(http.MethodPost, "/api/questions", teacher, map[string]any{
		"topic_id": tp["id"], "question_text": "Describe", "question_type": "essay",
	}), http.StatusCreated)
	up := x.must(x.upload("/api/questions/"+q["id"].(string)+"/media?kind=image", teacher, "fig.png", []byte("png-bytes")),
		http.StatusCreated)
	x.must(x.upload("/api/questions/"+q["id"].(string)+"/media?kind=image", teacher, "fig.exe", []byte("x")),
		http.StatusBadRequest)

	rec = x.do(http.MethodGet, "/api/assets/"+up["key"].(string), student, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "png-bytes" || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("asset: %d %q %s", rec.Code, rec.Body.String(), rec.Header().Get("Content-Type"))
	}
	got := x.must(x.do(http.MethodGet, "/api/questions/"+q["id"].(string), teacher, nil), http.StatusOK)
	if got["image"] != up["key"] {
		t.Fatalf("question image = %v, want %v", got["image"], up["key"])
	}
}
