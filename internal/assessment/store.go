package assessment

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
)

type ListOpts struct {
	CourseID string
	Type     string
	Status   string
	Q        string
	Offset   int
	Limit    int
}

type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(h *sql.DB) *SQLStore {
	return &SQLStore{db: h, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source. Tests only.
func (s *SQLStore) WithClock(now func() time.Time) *SQLStore {
	s.now = now
	return s
}

const cols = `a.id,a.title,a.description,a.type,a.status,a.course_id,a.start_date,a.end_date,a.duration_minutes,
	a.total_marks,a.passing_marks,a.is_randomized,a.allow_multiple_attempts,a.max_attempts,a.show_correct_answers,
	a.show_results_immediately,a.created_by,a.created_at,a.updated_at,
	(SELECT COUNT(*) FROM assessment_questions aq WHERE aq.assessment_id=a.id),
	(SELECT COALESCE(SUM(aq.marks),0) FROM assessment_questions aq WHERE aq.assessment_id=a.id)`

func scan(sc interface{ Scan(...any) error }) (Assessment, error) {
	var a Assessment
	var course sql.NullString
	var start, end sql.NullInt64
	var dur sql.NullInt64
	var passing sql.NullFloat64
	var created, updated int64
	err := sc.Scan(&a.ID, &a.Title, &a.Description, &a.Type, &a.Status, &course, &start, &end, &dur,
		&a.TotalMarks, &passing, &a.IsRandomized, &a.AllowMultipleAttempts, &a.MaxAttempts, &a.ShowCorrectAnswers,
		&a.ShowResultsImmediately, &a.CreatedBy, &created, &updated, &a.QuestionsCount, &a.TotalQuestionsMarks)
	if err != nil {
		return Assessment{}, err
	}
	a.CourseID = course.String
	a.StartDate = db.TimePtr(start)
	a.EndDate = db.TimePtr(end)
	if dur.Valid {
		d := int(dur.Int64)
		a.DurationMinutes = &d
	}
	if passing.Valid {
		p := passing.Float64
		a.PassingMarks = &p
	}
	a.CreatedAt = db.FromUnix(created)
	a.UpdatedAt = db.FromUnix(updated)
	return a, nil
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func (s *SQLStore) Create(ctx context.Context, v rbac.Viewer, a Assessment) (Assessment, error) {
	a.Title = strings.TrimSpace(a.Title)
	if err := a.Validate(); err != nil {
		return Assessment{}, err
	}
	now := s.now().Truncate(time.Second)
	a.ID = uuid.NewString()
	a.CreatedBy = v.ID
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `INSERT INTO assessments (id,title,description,type,status,course_id,start_date,
		end_date,duration_minutes,total_marks,passing_marks,is_randomized,allow_multiple_attempts,max_attempts,
		show_correct_answers,show_results_immediately,created_by,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		a.ID, a.Title, a.Description, a.Type, a.Status, db.NullStr(a.CourseID), db.NullUnix(a.StartDate),
		db.NullUnix(a.EndDate), nullInt(a.DurationMinutes), a.TotalMarks, nullFloat(a.PassingMarks),
		a.IsRandomized, a.AllowMultipleAttempts, a.MaxAttempts, a.ShowCorrectAnswers, a.ShowResultsImmediately,
		a.CreatedBy, now.Unix(), now.Unix())
	if err != nil {
		return Assessment{}, err
	}
	return a, nil
}

// Get loads an assessment without visibility checks.
func (s *SQLStore) Get(ctx context.Context, id string) (Assessment, error) {
	a, err := scan(s.db.QueryRowContext(ctx, `SELECT `+cols+` FROM assessments a WHERE a.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Assessment{}, apperr.NotFound("assessment %s not found", id)
	}
	return a, err
}

func canSee(v rbac.Viewer, a Assessment) bool {
	switch {
	case v.IsAdmin():
		return true
	case v.IsInstructor():
		return a.CreatedBy == v.ID
	default:
		return a.Status == StatusPublished
	}
}

// GetFor loads an assessment the viewer may see.
func (s *SQLStore) GetFor(ctx context.Context, v rbac.Viewer, id string) (Assessment, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return Assessment{}, err
	}
	if !canSee(v, a) {
		return Assessment{}, apperr.NotFound("assessment %s not found", id)
	}
	return a, nil
}

// Owned loads an assessment the viewer may modify.
func (s *SQLStore) Owned(ctx context.Context, v rbac.Viewer, id string) (Assessment, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return Assessment{}, err
	}
	if !v.IsAdmin() && a.CreatedBy != v.ID {
		return Assessment{}, apperr.Permission("only the assessment owner can modify it")
	}
	return a, nil
}

func (s *SQLStore) List(ctx context.Context, v rbac.Viewer, o ListOpts) ([]Assessment, error) {
	var args db.Args
	var conds []string
	switch {
	case v.IsAdmin():
	case v.IsInstructor():
		conds = append(conds, "a.created_by="+args.Add(v.ID))
	default:
		conds = append(conds, "a.status="+args.Add(StatusPublished))
	}
	if o.CourseID != "" {
		conds = append(conds, "a.course_id="+args.Add(o.CourseID))
	}
	if o.Type != "" {
		conds = append(conds, "a.type="+args.Add(o.Type))
	}
	if o.Status != "" {
		conds = append(conds, "a.status="+args.Add(o.Status))
	}
	if q := strings.TrimSpace(o.Q); q != "" {
		conds = append(conds, "LOWER(a.title) LIKE "+args.Add("%"+strings.ToLower(q)+"%"))
	}
	return s.query(ctx, `SELECT `+cols+` FROM assessments a`+db.Where(conds)+
		` ORDER BY a.created_at DESC, a.id`+args.Page(o.Offset, o.Limit), args...)
}

// Available lists published assessments whose window contains now.
func (s *SQLStore) Available(ctx context.Context, now time.Time) ([]Assessment, error) {
	return s.query(ctx, `SELECT `+cols+` FROM assessments a
		WHERE a.status=$1 AND (a.start_date IS NULL OR a.start_date <= $2)
		AND (a.end_date IS NULL OR a.end_date >= $2)
		ORDER BY a.start_date, a.id`, StatusPublished, now.Unix())
}

func (s *SQLStore) query(ctx context.Context, q string, args ...any) ([]Assessment, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Assessment{}
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Update replaces the editable fields. Owner and creation time are kept.
func (s *SQLStore) Update(ctx context.Context, v rbac.Viewer, a Assessment) (Assessment, error) {
	cur, err := s.Owned(ctx, v, a.ID)
	if err != nil {
		return Assessment{}, err
	}
	a.Title = strings.TrimSpace(a.Title)
	if err := a.Validate(); err != nil {
		return Assessment{}, err
	}
	a.CreatedBy, a.CreatedAt = cur.CreatedBy, cur.CreatedAt
	a.UpdatedAt = s.now().Truncate(time.Second)
	_, err = s.db.ExecContext(ctx, `UPDATE assessments SET title=$1, description=$2, type=$3, status=$4, course_id=$5,
		start_date=$6, end_date=$7, duration_minutes=$8, total_marks=$9, passing_marks=$10, is_randomized=$11,
		allow_multiple_attempts=$12, max_attempts=$13, show_correct_answers=$14, show_results_immediately=$15,
		updated_at=$16 WHERE id=$17`,
		a.Title, a.Description, a.Type, a.Status, db.NullStr(a.CourseID), db.NullUnix(a.StartDate),
		db.NullUnix(a.EndDate), nullInt(a.DurationMinutes), a.TotalMarks, nullFloat(a.PassingMarks),
		a.IsRandomized, a.AllowMultipleAttempts, a.MaxAttempts, a.ShowCorrectAnswers, a.ShowResultsImmediately,
		a.UpdatedAt.Unix(), a.ID)
	if err != nil {
		return Assessment{}, err
	}
	return s.Get(ctx, a.ID)
}

func (s *SQLStore) Delete(ctx context.Context, v rbac.Viewer, id string) error {
	if _, err := s.Owned(ctx, v, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM assessments WHERE id=$1`, id)
	return err
}

// ---------------------------- question associations ------------------------

// AddQuestion attaches a question. marks defaults to 1 and order to the
// current count + 1.
func (s *SQLStore) AddQuestion(ctx context.Context, v rbac.Viewer, assessmentID, questionID string, marks *float64, order *int) (Question, error) {
	if _, err := s.Owned(ctx, v, assessmentID); err != nil {
		return Question{}, err
	}
	m := 1.0
	if marks != nil {
		m = *marks
	}
	if m < 0 || math.IsNaN(m) {
		return Question{}, apperr.Validation("marks must be >= 0")
	}

	var out Question
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM questions WHERE id=$1`, questionID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("question %s not found", questionID)
		}
		if err != nil {
			return err
		}
		err = tx.QueryRowContext(ctx,
			`SELECT 1 FROM assessment_questions WHERE assessment_id=$1 AND question_id=$2`,
			assessmentID, questionID).Scan(&one)
		if err == nil {
			return apperr.ErrDuplicateQuestion
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		ord := 0
		if order != nil {
			ord = *order
		} else if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*)+1 FROM assessment_questions WHERE assessment_id=$1`, assessmentID).Scan(&ord); err != nil {
			return err
		}
		out = Question{ID: uuid.NewString(), AssessmentID: assessmentID, QuestionID: questionID, Marks: m, Order: ord}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO assessment_questions (id,assessment_id,question_id,marks,ord) VALUES ($1,$2,$3,$4,$5)`,
			out.ID, out.AssessmentID, out.QuestionID, out.Marks, out.Order)
		if db.IsUniqueViolation(err) {
			return apperr.ErrDuplicateQuestion
		}
		return err
	})
	if err != nil {
		return Question{}, err
	}
	return out, nil
}

func (s *SQLStore) RemoveQuestion(ctx context.Context, v rbac.Viewer, assessmentID, questionID string) error {
	if _, err := s.Owned(ctx, v, assessmentID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM assessment_questions WHERE assessment_id=$1 AND question_id=$2`, assessmentID, questionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNoAssociation
	}
	return nil
}

// Questions lists the associations in display order, joined with the
// question text. Answer keys are included; callers strip them for students.
func (s *SQLStore) Questions(ctx context.Context, assessmentID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT aq.id, aq.assessment_id, aq.question_id, aq.marks, aq.ord,
		q.text, q.type, q.options_json, q.correct_answer, q.explanation
		FROM assessment_questions aq JOIN questions q ON q.id=aq.question_id
		WHERE aq.assessment_id=$1 ORDER BY aq.ord, aq.id`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Question{}
	for rows.Next() {
		var q Question
		var opts string
		if err := rows.Scan(&q.ID, &q.AssessmentID, &q.QuestionID, &q.Marks, &q.Order,
			&q.Text, &q.Type, &opts, &q.CorrectAnswer, &q.Explanation); err != nil {
			return nil, err
		}
		q.Options = db.DecodeList[string](opts)
		out = append(out, q)
	}
	return out, rows.Err()
}

// TotalQuestionsMarks sums marks_allocated over the associations. It is
// independent of the assessment's total_marks.
func (s *SQLStore) TotalQuestionsMarks(ctx context.Context, assessmentID string) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(marks),0) FROM assessment_questions WHERE assessment_id=$1`, assessmentID).Scan(&total)
	return total, err
}

// Stats aggregates the submissions of one assessment.
func (s *SQLStore) Stats(ctx context.Context, assessmentID string) (Stats, error) {
	var st Stats
	var avg sql.NullFloat64
	var passed int
	err := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status='submitted' THEN 1 ELSE 0 END),0),
		COALESCE(SUM(CASE WHEN status='graded' THEN 1 ELSE 0 END),0),
		AVG(CASE WHEN status IN ('submitted','graded') THEN total_score END),
		COALESCE(SUM(CASE WHEN is_passed THEN 1 ELSE 0 END),0)
		FROM submissions WHERE assessment_id=$1`, assessmentID).
		Scan(&st.TotalSubmissions, &st.SubmittedCount, &st.GradedCount, &avg, &passed)
	if err != nil {
		return Stats{}, err
	}
	st.AverageScore = round2(avg.Float64)
	if done := st.SubmittedCount + st.GradedCount; done > 0 {
		st.PassRate = round2(float64(passed) / float64(done) * 100)
	}
	return st, nil
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
