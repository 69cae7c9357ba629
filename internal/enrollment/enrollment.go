// Package enrollment tracks which students are enrolled in which products,
// their progress and completion.
package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/qbank"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
	syncx "github.com/mind-engage/mindengage-assess/internal/sync"
)

const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusDropped   = "dropped"
	StatusSuspended = "suspended"
)

func validStatus(s string) bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusDropped, StatusSuspended:
		return true
	}
	return false
}

type Enrollment struct {
	ID             string     `json:"id"`
	StudentID      string     `json:"student_id"`
	ProductID      string     `json:"product_id"`
	ProductKind    qbank.Kind `json:"product_kind"`
	ProductTitle   string     `json:"product_title"`
	Status         string     `json:"status"`
	Progress       float64    `json:"progress"`
	EnrollmentDate time.Time  `json:"enrollment_date"`
	CompletionDate *time.Time `json:"completion_date,omitempty"`
	LastAccessed   time.Time  `json:"last_accessed"`
	IsPaid         bool       `json:"is_paid"`
	PaymentAmount  float64    `json:"payment_amount"`
	PaymentDate    *time.Time `json:"payment_date,omitempty"`
	TransactionID  string     `json:"transaction_id,omitempty"`
}

// IsActiveEnrollment reports whether the enrollment still grants access.
func (e Enrollment) IsActiveEnrollment() bool {
	return e.Status == StatusActive || e.Status == StatusCompleted
}

type EventLog interface {
	Append(ctx context.Context, q db.Querier, typ, key string, data any) error
}

type Store struct {
	db     *sql.DB
	events EventLog
	log    *slog.Logger
	now    func() time.Time
}

func NewStore(h *sql.DB, events EventLog, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: h, events: events, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source. Tests only.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

const cols = `e.id,e.student_id,e.product_id,p.kind,p.title,e.status,e.progress,e.enrollment_date,e.completion_date,
	e.last_accessed,e.is_paid,e.payment_amount,e.payment_date,e.transaction_id`

const from = ` FROM enrollments e JOIN products p ON p.id=e.product_id`

func scan(sc interface{ Scan(...any) error }) (Enrollment, error) {
	var e Enrollment
	var enrolled, accessed int64
	var completed, paid sql.NullInt64
	err := sc.Scan(&e.ID, &e.StudentID, &e.ProductID, &e.ProductKind, &e.ProductTitle, &e.Status, &e.Progress,
		&enrolled, &completed, &accessed, &e.IsPaid, &e.PaymentAmount, &paid, &e.TransactionID)
	if err != nil {
		return Enrollment{}, err
	}
	e.EnrollmentDate = db.FromUnix(enrolled)
	e.LastAccessed = db.FromUnix(accessed)
	e.CompletionDate = db.TimePtr(completed)
	e.PaymentDate = db.TimePtr(paid)
	return e, nil
}

func (s *Store) Get(ctx context.Context, id string) (Enrollment, error) {
	e, err := scan(s.db.QueryRowContext(ctx, `SELECT `+cols+from+` WHERE e.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, apperr.NotFound("enrollment %s not found", id)
	}
	return e, err
}

// GetFor is Get restricted to what the viewer may see: students their own,
// instructors enrollments in their products.
func (s *Store) GetFor(ctx context.Context, v rbac.Viewer, id string) (Enrollment, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	switch {
	case v.IsAdmin():
		return e, nil
	case v.IsInstructor():
		var owner string
		if err := s.db.QueryRowContext(ctx, `SELECT created_by FROM products WHERE id=$1`, e.ProductID).Scan(&owner); err != nil {
			return Enrollment{}, err
		}
		if owner == v.ID {
			return e, nil
		}
	default:
		if e.StudentID == v.ID {
			return e, nil
		}
	}
	return Enrollment{}, apperr.NotFound("enrollment %s not found", id)
}

// Enroll creates an active enrollment. Students may only enroll themselves,
// and only in published products.
func (s *Store) Enroll(ctx context.Context, v rbac.Viewer, productID, studentID string) (Enrollment, error) {
	if v.IsStudent() || studentID == "" {
		studentID = v.ID
	}
	var kind qbank.Kind
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT kind, status FROM products WHERE id=$1`, productID).Scan(&kind, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, apperr.NotFound("product %s not found", productID)
	}
	if err != nil {
		return Enrollment{}, err
	}
	if v.IsStudent() && status != qbank.StatusPublished {
		return Enrollment{}, apperr.NotFound("product %s not found", productID)
	}

	now := s.now().Truncate(time.Second)
	id := uuid.NewString()
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO enrollments (id,student_id,product_id,status,progress,
			enrollment_date,last_accessed) VALUES ($1,$2,$3,$4,0,$5,$5)`,
			id, studentID, productID, StatusActive, now.Unix())
		if db.IsUniqueViolation(err) {
			return apperr.ErrAlreadyEnrolled
		}
		if err != nil {
			return err
		}
		return s.record(ctx, tx, syncx.TypeEnrollmentCreated, id, map[string]any{
			"student_id": studentID, "product_id": productID, "kind": kind,
		})
	})
	if err != nil {
		return Enrollment{}, err
	}
	s.log.Info("student enrolled", "enrollment", id, "student", studentID, "product", productID)
	return s.Get(ctx, id)
}

type ListOpts struct {
	ProductID string
	StudentID string
	Kind      qbank.Kind
	Status    string
	Offset    int
	Limit     int
}

func (s *Store) List(ctx context.Context, v rbac.Viewer, o ListOpts) ([]Enrollment, error) {
	var args db.Args
	var conds []string
	switch {
	case v.IsAdmin():
	case v.IsInstructor():
		conds = append(conds, "p.created_by="+args.Add(v.ID))
	default:
		o.StudentID = v.ID
	}
	if o.StudentID != "" {
		conds = append(conds, "e.student_id="+args.Add(o.StudentID))
	}
	if o.ProductID != "" {
		conds = append(conds, "e.product_id="+args.Add(o.ProductID))
	}
	if o.Kind != "" {
		conds = append(conds, "p.kind="+args.Add(string(o.Kind)))
	}
	if o.Status != "" {
		conds = append(conds, "e.status="+args.Add(o.Status))
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+cols+from+db.Where(conds)+
		` ORDER BY e.enrollment_date DESC, e.id`+args.Page(o.Offset, o.Limit), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Enrollment{}
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// KindStatus is the enrollment check result for one product kind.
type KindStatus struct {
	IsEnrolled       bool `json:"is_enrolled"`
	EnrollmentsCount int  `json:"enrollments_count"`
}

type Status struct {
	QuestionBank KindStatus `json:"questionBank"`
	Flashcards   KindStatus `json:"flashcards"`
}

// CheckStatus counts the student's active enrollments per product kind.
func (s *Store) CheckStatus(ctx context.Context, studentID string) (Status, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT p.kind, COUNT(*)`+from+`
		WHERE e.student_id=$1 AND e.status=$2 GROUP BY p.kind`, studentID, StatusActive)
	if err != nil {
		return Status{}, err
	}
	defer rows.Close()
	var st Status
	for rows.Next() {
		var kind qbank.Kind
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return Status{}, err
		}
		ks := KindStatus{IsEnrolled: n > 0, EnrollmentsCount: n}
		switch kind {
		case qbank.KindQuestionBank:
			st.QuestionBank = ks
		case qbank.KindFlashcard:
			st.Flashcards = ks
		}
	}
	return st, rows.Err()
}

// ProgressUpdate sets an enrollment's progress. The value is clamped to
// [0,100]; reaching 100 completes the enrollment once. The completion
// decision runs inside the UPDATE so a stale read cannot re-date it.
type ProgressUpdate struct {
	EnrollmentID string
	Value        float64
}

func (u ProgressUpdate) clamped() float64 {
	if math.IsNaN(u.Value) {
		return 0
	}
	return math.Min(100, math.Max(0, u.Value))
}

// Apply runs the update through q and reports whether this call completed
// the enrollment.
func (u ProgressUpdate) Apply(ctx context.Context, q db.Querier, now time.Time) (completed bool, err error) {
	p := u.clamped()
	var wasCompleted bool
	err = q.QueryRowContext(ctx, `SELECT status=$1 FROM enrollments WHERE id=$2`, StatusCompleted, u.EnrollmentID).
		Scan(&wasCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, apperr.NotFound("enrollment %s not found", u.EnrollmentID)
	}
	if err != nil {
		return false, err
	}
	res, err := q.ExecContext(ctx, `UPDATE enrollments SET
		progress=$1,
		completion_date=CASE WHEN $1>=100 AND status<>$2 THEN $3 ELSE completion_date END,
		status=CASE WHEN $1>=100 AND status<>$2 THEN $2 ELSE status END,
		last_accessed=$3
		WHERE id=$4`, p, StatusCompleted, now.Unix(), u.EnrollmentID)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, apperr.NotFound("enrollment %s not found", u.EnrollmentID)
	}
	return p >= 100 && !wasCompleted, nil
}

// UpdateProgress applies a ProgressUpdate for the enrolled student.
func (s *Store) UpdateProgress(ctx context.Context, v rbac.Viewer, id string, value float64) (Enrollment, error) {
	if _, err := s.GetFor(ctx, v, id); err != nil {
		return Enrollment{}, err
	}
	now := s.now().Truncate(time.Second)
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		completed, err := ProgressUpdate{EnrollmentID: id, Value: value}.Apply(ctx, tx, now)
		if err != nil || !completed {
			return err
		}
		return s.record(ctx, tx, syncx.TypeEnrollmentCompleted, id, map[string]any{"via": "progress"})
	})
	if err != nil {
		return Enrollment{}, err
	}
	return s.Get(ctx, id)
}

// MarkComplete completes the enrollment unconditionally, re-dating it.
// Students reach completion only through progress updates.
func (s *Store) MarkComplete(ctx context.Context, v rbac.Viewer, id string) (Enrollment, error) {
	if v.IsStudent() {
		return Enrollment{}, apperr.Permission("only staff can mark an enrollment complete")
	}
	if _, err := s.GetFor(ctx, v, id); err != nil {
		return Enrollment{}, err
	}
	now := s.now().Truncate(time.Second)
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE enrollments SET status=$1, progress=100, completion_date=$2,
			last_accessed=$2 WHERE id=$3`, StatusCompleted, now.Unix(), id); err != nil {
			return err
		}
		return s.record(ctx, tx, syncx.TypeEnrollmentCompleted, id, map[string]any{"via": "mark_complete"})
	})
	if err != nil {
		return Enrollment{}, err
	}
	return s.Get(ctx, id)
}

// CertificateEligible: completed, full progress and a certified product.
func (s *Store) CertificateEligible(ctx context.Context, v rbac.Viewer, id string) (bool, error) {
	e, err := s.GetFor(ctx, v, id)
	if err != nil {
		return false, err
	}
	var certified bool
	if err := s.db.QueryRowContext(ctx, `SELECT is_certified FROM products WHERE id=$1`, e.ProductID).Scan(&certified); err != nil {
		return false, err
	}
	return e.Status == StatusCompleted && e.Progress >= 100 && certified, nil
}

// Patch is the generic edit surface for status and payment fields.
type Patch struct {
	Status        *string  `json:"status" validate:"omitempty,oneof=pending active completed dropped suspended"`
	IsPaid        *bool    `json:"is_paid"`
	PaymentAmount *float64 `json:"payment_amount" validate:"omitempty,gte=0"`
	TransactionID *string  `json:"transaction_id"`
}

// Save applies a Patch. It always refreshes last_accessed, stamps
// payment_date when the enrollment becomes paid, and sets completion_date
// when the status becomes completed without one.
func (s *Store) Save(ctx context.Context, v rbac.Viewer, id string, p Patch) (Enrollment, error) {
	e, err := s.GetFor(ctx, v, id)
	if err != nil {
		return Enrollment{}, err
	}
	now := s.now().Truncate(time.Second)
	if p.Status != nil {
		if !validStatus(*p.Status) {
			return Enrollment{}, apperr.Validation("invalid status %q", *p.Status)
		}
		e.Status = *p.Status
	}
	if p.IsPaid != nil {
		if *p.IsPaid && !e.IsPaid {
			e.PaymentDate = &now
		}
		e.IsPaid = *p.IsPaid
	}
	if p.PaymentAmount != nil {
		if *p.PaymentAmount < 0 {
			return Enrollment{}, apperr.Validation("payment_amount must be >= 0")
		}
		e.PaymentAmount = *p.PaymentAmount
	}
	if p.TransactionID != nil {
		e.TransactionID = *p.TransactionID
	}
	if e.Status == StatusCompleted && e.CompletionDate == nil {
		e.CompletionDate = &now
	}
	_, err = s.db.ExecContext(ctx, `UPDATE enrollments SET status=$1, is_paid=$2, payment_amount=$3, payment_date=$4,
		transaction_id=$5, completion_date=$6, last_accessed=$7 WHERE id=$8`,
		e.Status, e.IsPaid, e.PaymentAmount, db.NullUnix(e.PaymentDate), e.TransactionID,
		db.NullUnix(e.CompletionDate), now.Unix(), id)
	if err != nil {
		return Enrollment{}, err
	}
	return s.Get(ctx, id)
}

// Delete removes an enrollment; admins and the product owner only.
func (s *Store) Delete(ctx context.Context, v rbac.Viewer, id string) error {
	if v.IsStudent() {
		return apperr.Permission("students cannot delete enrollments")
	}
	if _, err := s.GetFor(ctx, v, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM enrollments WHERE id=$1`, id)
	return err
}

func (s *Store) record(ctx context.Context, q db.Querier, typ, key string, data any) error {
	if s.events == nil {
		return nil
	}
	return s.events.Append(ctx, q, typ, key, data)
}
