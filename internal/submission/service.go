// Package submission runs the attempt lifecycle: start (get-or-create),
// submit with auto-grading, teacher grading with overrides, and the late
// sweep. Scores are always recomputed from the stored answers.
package submission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/assessment"
	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/grading"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
	syncx "github.com/mind-engage/mindengage-assess/internal/sync"
)

// Assessments is the read side of the assessment engine used here.
type Assessments interface {
	Get(ctx context.Context, id string) (assessment.Assessment, error)
	Questions(ctx context.Context, assessmentID string) ([]assessment.Question, error)
}

// EventLog records domain events, optionally inside a transaction.
type EventLog interface {
	Append(ctx context.Context, q db.Querier, typ, key string, data any) error
}

type Service struct {
	db          *sql.DB
	assessments Assessments
	grader      grading.Grader
	events      EventLog
	log         *slog.Logger
	now         func() time.Time
}

type Option func(*Service)

func WithEventLog(e EventLog) Option       { return func(s *Service) { s.events = e } }
func WithLogger(l *slog.Logger) Option     { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithGrader(g grading.Grader) Option   { return func(s *Service) { s.grader = g } }

func NewService(h *sql.DB, a Assessments, opts ...Option) *Service {
	s := &Service{
		db:          h,
		assessments: a,
		grader:      grading.NewDefaultGrader(),
		log:         slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

const subCols = `id,assessment_id,student_id,attempt_number,status,started_at,submitted_at,time_taken_minutes,
	total_score,percentage,is_passed,is_late,graded_by,graded_at,feedback`

func scanSubmission(sc interface{ Scan(...any) error }) (Submission, error) {
	var s Submission
	var started int64
	var submitted, gradedAt, taken sql.NullInt64
	err := sc.Scan(&s.ID, &s.AssessmentID, &s.StudentID, &s.AttemptNumber, &s.Status, &started, &submitted, &taken,
		&s.TotalScore, &s.Percentage, &s.IsPassed, &s.IsLate, &s.GradedBy, &gradedAt, &s.Feedback)
	if err != nil {
		return Submission{}, err
	}
	s.StartedAt = db.FromUnix(started)
	s.SubmittedAt = db.TimePtr(submitted)
	s.GradedAt = db.TimePtr(gradedAt)
	if taken.Valid {
		m := int(taken.Int64)
		s.TimeTakenMinutes = &m
	}
	return s, nil
}

func (s *Service) load(ctx context.Context, q db.Querier, id string) (Submission, error) {
	sub, err := scanSubmission(q.QueryRowContext(ctx, `SELECT `+subCols+` FROM submissions WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Submission{}, apperr.NotFound("submission %s not found", id)
	}
	return sub, err
}

func (s *Service) latest(ctx context.Context, studentID, assessmentID string) (Submission, bool, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, `SELECT `+subCols+` FROM submissions
		WHERE student_id=$1 AND assessment_id=$2 ORDER BY attempt_number DESC LIMIT 1`, studentID, assessmentID))
	if errors.Is(err, sql.ErrNoRows) {
		return Submission{}, false, nil
	}
	if err != nil {
		return Submission{}, false, err
	}
	return sub, true, nil
}

// Start returns the student's open attempt or creates the next one. Two
// concurrent starts race on the (student, assessment, attempt) unique key;
// the loser fetches the winner's row.
func (s *Service) Start(ctx context.Context, v rbac.Viewer, assessmentID string) (Submission, error) {
	a, err := s.assessments.Get(ctx, assessmentID)
	if err != nil {
		return Submission{}, err
	}
	now := s.now()
	if !a.IsActive(now) {
		return Submission{}, apperr.Validation("assessment is not active")
	}

	prev, ok, err := s.latest(ctx, v.ID, assessmentID)
	if err != nil {
		return Submission{}, err
	}
	attempt := 1
	if ok {
		if !prev.Closed() {
			return prev, nil
		}
		if !a.AllowMultipleAttempts {
			return Submission{}, apperr.ErrAlreadySubmitted
		}
		if a.MaxAttempts > 0 && prev.AttemptNumber >= a.MaxAttempts {
			return Submission{}, apperr.Conflict("maximum attempts (%d) reached", a.MaxAttempts)
		}
		attempt = prev.AttemptNumber + 1
	}

	sub := Submission{
		ID:            uuid.NewString(),
		AssessmentID:  assessmentID,
		StudentID:     v.ID,
		AttemptNumber: attempt,
		Status:        StatusInProgress,
		StartedAt:     now.Truncate(time.Second),
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO submissions (id,assessment_id,student_id,attempt_number,status,started_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		sub.ID, sub.AssessmentID, sub.StudentID, sub.AttemptNumber, sub.Status, sub.StartedAt.Unix())
	if db.IsUniqueViolation(err) {
		existing, err := scanSubmission(s.db.QueryRowContext(ctx, `SELECT `+subCols+` FROM submissions
			WHERE student_id=$1 AND assessment_id=$2 AND attempt_number=$3`, v.ID, assessmentID, attempt))
		if err != nil {
			return Submission{}, fmt.Errorf("refetch after concurrent start: %w", err)
		}
		return existing, nil
	}
	if err != nil {
		return Submission{}, err
	}
	if err := s.record(ctx, nil, syncx.TypeSubmissionStarted, sub.ID, map[string]any{
		"assessment_id": assessmentID, "student_id": v.ID, "attempt": attempt,
	}); err != nil {
		return Submission{}, err
	}
	s.log.Info("submission started", "submission", sub.ID, "assessment", assessmentID, "student", v.ID, "attempt", attempt)
	return sub, nil
}

// Submit stores the answer batch, auto-grades objective questions and closes
// the attempt. A closed attempt fails with ErrAlreadySubmitted.
func (s *Service) Submit(ctx context.Context, v rbac.Viewer, submissionID string, answers []AnswerInput) (Submission, error) {
	sub, err := s.load(ctx, s.db, submissionID)
	if err != nil {
		return Submission{}, err
	}
	if sub.StudentID != v.ID {
		return Submission{}, apperr.NotFound("submission %s not found", submissionID)
	}
	if sub.Closed() {
		return Submission{}, apperr.ErrAlreadySubmitted
	}
	if len(answers) == 0 {
		return Submission{}, apperr.Validation("No answers provided")
	}
	a, err := s.assessments.Get(ctx, sub.AssessmentID)
	if err != nil {
		return Submission{}, err
	}
	assoc, err := s.associations(ctx, sub.AssessmentID)
	if err != nil {
		return Submission{}, err
	}

	seen := make(map[string]bool, len(answers))
	for _, in := range answers {
		if seen[in.QuestionID] {
			return Submission{}, apperr.Validation("duplicate answer for question %s", in.QuestionID)
		}
		seen[in.QuestionID] = true
		if _, ok := assoc[in.QuestionID]; !ok {
			return Submission{}, fmt.Errorf("question %s: %w", in.QuestionID, apperr.ErrNoAssociation)
		}
	}

	now := s.now().Truncate(time.Second)
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, in := range answers {
			q := assoc[in.QuestionID]
			res := s.autoGrade(ctx, sub.ID, q, in)
			opts := in.SelectedOptions
			if opts == nil {
				opts = []int{}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO student_answers (id,submission_id,question_id,answer_text,
				selected_options,is_correct,marks_obtained,is_auto_graded,answered_at,time_spent_seconds)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
				ON CONFLICT (submission_id, question_id) DO UPDATE SET answer_text=EXCLUDED.answer_text,
				selected_options=EXCLUDED.selected_options, is_correct=EXCLUDED.is_correct,
				marks_obtained=EXCLUDED.marks_obtained, is_auto_graded=EXCLUDED.is_auto_graded,
				answered_at=EXCLUDED.answered_at, time_spent_seconds=EXCLUDED.time_spent_seconds`,
				uuid.NewString(), sub.ID, in.QuestionID, in.AnswerText, db.EncodeList(opts),
				res.IsCorrect, round2(res.Marks), res.AutoGraded, now.Unix(), in.TimeSpentSeconds)
			if err != nil {
				return err
			}
		}

		total, pct, passed, err := s.rescore(ctx, tx, sub.ID, a)
		if err != nil {
			return err
		}
		// The status guard makes a concurrent second submit lose cleanly.
		res, err := tx.ExecContext(ctx, `UPDATE submissions SET status=$1, submitted_at=$2,
			time_taken_minutes=COALESCE(time_taken_minutes,$3), total_score=$4, percentage=$5, is_passed=$6
			WHERE id=$7 AND status NOT IN ('submitted','graded')`,
			StatusSubmitted, now.Unix(), minutesBetween(sub.StartedAt, now), total, pct, passed, sub.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.ErrAlreadySubmitted
		}
		return s.record(ctx, tx, syncx.TypeSubmissionSubmitted, sub.ID, map[string]any{
			"assessment_id": sub.AssessmentID, "student_id": sub.StudentID, "total_score": total,
		})
	})
	if err != nil {
		return Submission{}, err
	}
	s.log.Info("submission submitted", "submission", sub.ID, "assessment", sub.AssessmentID, "answers", len(answers))
	return s.withAnswers(ctx, sub.ID)
}

// autoGrade runs the grader. A malformed stored key earns no credit and is
// logged instead of failing the whole submission.
func (s *Service) autoGrade(ctx context.Context, submissionID string, q assessment.Question, in AnswerInput) grading.Result {
	res, err := s.grader.Grade(ctx,
		grading.Q{Type: q.Type, CorrectAnswer: q.CorrectAnswer, Marks: q.Marks},
		grading.Response{Text: in.AnswerText, SelectedOptions: in.SelectedOptions})
	if err != nil {
		s.log.Warn("auto-grading failed, no credit awarded",
			"submission", submissionID, "question", q.QuestionID, "type", q.Type, "err", err)
		return grading.Result{AutoGraded: s.grader.CanAutoGrade(q.Type)}
	}
	return res
}

func (s *Service) associations(ctx context.Context, assessmentID string) (map[string]assessment.Question, error) {
	qs, err := s.assessments.Questions(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	m := make(map[string]assessment.Question, len(qs))
	for _, q := range qs {
		m[q.QuestionID] = q
	}
	return m, nil
}

// rescore sums the stored answer marks of a submission.
func (s *Service) rescore(ctx context.Context, q db.Querier, submissionID string, a assessment.Assessment) (total, pct float64, passed bool, err error) {
	rows, err := q.QueryContext(ctx, `SELECT marks_obtained FROM student_answers WHERE submission_id=$1`, submissionID)
	if err != nil {
		return 0, 0, false, err
	}
	defer rows.Close()
	var marks []float64
	for rows.Next() {
		var m float64
		if err := rows.Scan(&m); err != nil {
			return 0, 0, false, err
		}
		marks = append(marks, m)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, false, err
	}
	total, pct, passed = Score(a, marks)
	return total, pct, passed, nil
}

// Grade applies teacher overrides and marks the submission graded. Overrides
// for questions without an answer are skipped. Re-grading is allowed.
func (s *Service) Grade(ctx context.Context, v rbac.Viewer, submissionID string, in GradeInput) (Submission, error) {
	sub, err := s.load(ctx, s.db, submissionID)
	if err != nil {
		return Submission{}, err
	}
	a, err := s.assessments.Get(ctx, sub.AssessmentID)
	if err != nil {
		return Submission{}, err
	}
	if !v.IsAdmin() && a.CreatedBy != v.ID {
		return Submission{}, apperr.Permission("only the assessment owner can grade it")
	}
	if !sub.Closed() {
		return Submission{}, apperr.Conflict("only submitted assessments can be graded")
	}

	now := s.now().Truncate(time.Second)
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, o := range in.Overrides {
			if o.MarksObtained != nil && *o.MarksObtained < 0 {
				return apperr.Validation("marks_obtained must be >= 0")
			}
			var marks, correct any
			if o.MarksObtained != nil {
				marks = round2(*o.MarksObtained)
			}
			if o.IsCorrect != nil {
				correct = *o.IsCorrect
			}
			if _, err := tx.ExecContext(ctx, `UPDATE student_answers SET
				marks_obtained=COALESCE($1, marks_obtained), is_correct=COALESCE($2, is_correct)
				WHERE submission_id=$3 AND question_id=$4`,
				marks, correct, sub.ID, o.QuestionID); err != nil {
				return err
			}
		}
		total, pct, passed, err := s.rescore(ctx, tx, sub.ID, a)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE submissions SET status=$1, graded_by=$2, graded_at=$3, feedback=$4,
			total_score=$5, percentage=$6, is_passed=$7 WHERE id=$8`,
			StatusGraded, v.ID, now.Unix(), in.Feedback, total, pct, passed, sub.ID); err != nil {
			return err
		}
		return s.record(ctx, tx, syncx.TypeSubmissionGraded, sub.ID, map[string]any{
			"assessment_id": sub.AssessmentID, "student_id": sub.StudentID, "graded_by": v.ID,
			"total_score": total, "is_passed": passed,
		})
	})
	if err != nil {
		return Submission{}, err
	}
	s.log.Info("submission graded", "submission", sub.ID, "grader", v.ID, "overrides", len(in.Overrides))
	return s.withAnswers(ctx, sub.ID)
}

func (s *Service) record(ctx context.Context, q db.Querier, typ, key string, data any) error {
	if s.events == nil {
		return nil
	}
	return s.events.Append(ctx, q, typ, key, data)
}

func (s *Service) withAnswers(ctx context.Context, id string) (Submission, error) {
	sub, err := s.load(ctx, s.db, id)
	if err != nil {
		return Submission{}, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,submission_id,question_id,answer_text,selected_options,is_correct,
		marks_obtained,is_auto_graded,answered_at,time_spent_seconds FROM student_answers
		WHERE submission_id=$1 ORDER BY answered_at, id`, id)
	if err != nil {
		return Submission{}, err
	}
	defer rows.Close()
	sub.Answers = []Answer{}
	for rows.Next() {
		var a Answer
		var opts string
		var answered int64
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.QuestionID, &a.AnswerText, &opts, &a.IsCorrect,
			&a.MarksObtained, &a.IsAutoGraded, &answered, &a.TimeSpentSeconds); err != nil {
			return Submission{}, err
		}
		a.SelectedOptions = db.DecodeList[int](opts)
		a.AnsweredAt = db.FromUnix(answered)
		sub.Answers = append(sub.Answers, a)
	}
	return sub, rows.Err()
}

// Get returns a submission with its answers. Students see their own,
// instructors those of their assessments.
func (s *Service) Get(ctx context.Context, v rbac.Viewer, id string) (Submission, error) {
	sub, err := s.withAnswers(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	switch {
	case v.IsAdmin():
	case v.IsInstructor():
		a, err := s.assessments.Get(ctx, sub.AssessmentID)
		if err != nil {
			return Submission{}, err
		}
		if a.CreatedBy != v.ID {
			return Submission{}, apperr.NotFound("submission %s not found", id)
		}
	default:
		if sub.StudentID != v.ID {
			return Submission{}, apperr.NotFound("submission %s not found", id)
		}
	}
	return sub, nil
}

type ListOpts struct {
	AssessmentID string
	Status       string
	Offset       int
	Limit        int
}

// List is role filtered like Get.
func (s *Service) List(ctx context.Context, v rbac.Viewer, o ListOpts) ([]Submission, error) {
	var args db.Args
	var conds []string
	switch {
	case v.IsAdmin():
	case v.IsInstructor():
		conds = append(conds, "assessment_id IN (SELECT id FROM assessments WHERE created_by="+args.Add(v.ID)+")")
	default:
		conds = append(conds, "student_id="+args.Add(v.ID))
	}
	if o.AssessmentID != "" {
		conds = append(conds, "assessment_id="+args.Add(o.AssessmentID))
	}
	if o.Status != "" {
		conds = append(conds, "status="+args.Add(o.Status))
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+subCols+` FROM submissions`+db.Where(conds)+
		` ORDER BY started_at DESC, id`+args.Page(o.Offset, o.Limit), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// SweepLate flags open attempts whose assessment window has closed or whose
// time limit has run out. The late mark survives the final submit.
func (s *Service) SweepLate(ctx context.Context) (int64, error) {
	now := s.now()
	var n int64
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE submissions SET status=$1, is_late=$2
			WHERE status=$3 AND EXISTS (SELECT 1 FROM assessments a WHERE a.id=submissions.assessment_id AND (
				(a.end_date IS NOT NULL AND a.end_date < $4) OR
				(a.duration_minutes IS NOT NULL AND submissions.started_at + a.duration_minutes*60 < $4)))`,
			StatusLate, true, StatusInProgress, now.Unix())
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		if n == 0 {
			return nil
		}
		return s.record(ctx, tx, syncx.TypeSubmissionLate, "sweep", map[string]any{"count": n, "at": now.Unix()})
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("late sweep flagged submissions", "count", n)
	}
	return n, nil
}
