// Package flashcard stores flashcards of flashcard-kind products and the
// per-student review tallies.
package flashcard

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
	"github.com/mind-engage/mindengage-assess/internal/qbank"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
)

type Flashcard struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	TopicID    string    `json:"topic_id"`
	FrontText  string    `json:"front_text"`
	BackText   string    `json:"back_text"`
	QuestionID string    `json:"related_question,omitempty"`
	Tags       []string  `json:"tags"`
	FrontImage string    `json:"front_image,omitempty"`
	BackImage  string    `json:"back_image,omitempty"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (f *Flashcard) validate() error {
	f.FrontText = strings.TrimSpace(f.FrontText)
	f.BackText = strings.TrimSpace(f.BackText)
	if f.FrontText == "" || f.BackText == "" {
		return apperr.Validation("front_text and back_text are required")
	}
	if f.Tags == nil {
		f.Tags = []string{}
	}
	return nil
}

// Progress is one student's review tally for one flashcard.
type Progress struct {
	ID              string    `json:"id"`
	StudentID       string    `json:"student_id"`
	FlashcardID     string    `json:"flashcard_id"`
	TimesReviewed   int       `json:"times_reviewed"`
	CorrectCount    int       `json:"correct_count"`
	LastReviewed    time.Time `json:"last_reviewed"`
	DifficultyLevel string    `json:"difficulty_level"`
	AccuracyRate    float64   `json:"accuracy_rate"`
}

func (p *Progress) fillAccuracy() {
	if p.TimesReviewed == 0 {
		p.AccuracyRate = 0
		return
	}
	p.AccuracyRate = math.Round(float64(p.CorrectCount)/float64(p.TimesReviewed)*10000) / 100
}

// Topics resolves the product owning a topic, checking the viewer owns it.
type Topics interface {
	OwnedTopicProduct(ctx context.Context, v rbac.Viewer, topicID string) (qbank.Product, error)
}

type Store struct {
	db     *sql.DB
	topics Topics
	now    func() time.Time
}

func NewStore(h *sql.DB, topics Topics) *Store {
	return &Store{db: h, topics: topics, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source. Tests only.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

const cols = `f.id,f.product_id,f.topic_id,f.front_text,f.back_text,f.question_id,f.tags_json,
	f.front_image_key,f.back_image_key,f.created_by,f.created_at,f.updated_at`

func scan(sc interface{ Scan(...any) error }) (Flashcard, error) {
	var f Flashcard
	var qid sql.NullString
	var tags string
	var created, updated int64
	err := sc.Scan(&f.ID, &f.ProductID, &f.TopicID, &f.FrontText, &f.BackText, &qid, &tags,
		&f.FrontImage, &f.BackImage, &f.CreatedBy, &created, &updated)
	if err != nil {
		return Flashcard{}, err
	}
	f.QuestionID = qid.String
	f.Tags = db.DecodeList[string](tags)
	f.CreatedAt = db.FromUnix(created)
	f.UpdatedAt = db.FromUnix(updated)
	return f, nil
}

// scope limits rows to what the viewer may see. Students see cards of
// published products or cards tied to a question of a published assessment.
func scope(v rbac.Viewer, args *db.Args) string {
	switch {
	case v.IsAdmin():
		return ""
	case v.IsInstructor():
		return "f.created_by=" + args.Add(v.ID)
	default:
		return `(EXISTS (SELECT 1 FROM products p WHERE p.id=f.product_id AND p.status='published')
			OR EXISTS (SELECT 1 FROM assessment_questions aq JOIN assessments a ON a.id=aq.assessment_id
				WHERE aq.question_id=f.question_id AND a.status='published'))`
	}
}

// Create adds a card under a topic of a flashcard product owned by v.
func (s *Store) Create(ctx context.Context, v rbac.Viewer, f Flashcard) (Flashcard, error) {
	if err := f.validate(); err != nil {
		return Flashcard{}, err
	}
	p, err := s.topics.OwnedTopicProduct(ctx, v, f.TopicID)
	if err != nil {
		return Flashcard{}, err
	}
	if p.Kind != qbank.KindFlashcard {
		return Flashcard{}, apperr.Validation("topic %s does not belong to a flashcard product", f.TopicID)
	}
	now := s.now().Truncate(time.Second)
	f.ID = uuid.NewString()
	f.ProductID = p.ID
	f.CreatedBy = v.ID
	f.CreatedAt, f.UpdatedAt = now, now
	_, err = s.db.ExecContext(ctx, `INSERT INTO flashcards (id,product_id,topic_id,front_text,back_text,question_id,
		tags_json,front_image_key,back_image_key,created_by,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		f.ID, f.ProductID, f.TopicID, f.FrontText, f.BackText, db.NullStr(f.QuestionID), db.EncodeList(f.Tags),
		f.FrontImage, f.BackImage, f.CreatedBy, now.Unix(), now.Unix())
	if err != nil {
		return Flashcard{}, err
	}
	return f, nil
}

func (s *Store) Get(ctx context.Context, v rbac.Viewer, id string) (Flashcard, error) {
	var args db.Args
	conds := []string{"f.id=" + args.Add(id)}
	if c := scope(v, &args); c != "" {
		conds = append(conds, c)
	}
	f, err := scan(s.db.QueryRowContext(ctx, `SELECT `+cols+` FROM flashcards f`+db.Where(conds), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Flashcard{}, apperr.NotFound("flashcard %s not found", id)
	}
	return f, err
}

type Filter struct {
	ProductID string
	TopicID   string
	Q         string
	Offset    int
	Limit     int
}

func (s *Store) List(ctx context.Context, v rbac.Viewer, fl Filter) ([]Flashcard, error) {
	var args db.Args
	var conds []string
	if c := scope(v, &args); c != "" {
		conds = append(conds, c)
	}
	if fl.ProductID != "" {
		conds = append(conds, "f.product_id="+args.Add(fl.ProductID))
	}
	if fl.TopicID != "" {
		conds = append(conds, "f.topic_id="+args.Add(fl.TopicID))
	}
	if q := strings.TrimSpace(fl.Q); q != "" {
		p := args.Add("%" + strings.ToLower(q) + "%")
		conds = append(conds, "(LOWER(f.front_text) LIKE "+p+" OR LOWER(f.back_text) LIKE "+p+")")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+cols+` FROM flashcards f`+db.Where(conds)+
		` ORDER BY f.created_at DESC, f.id`+args.Page(fl.Offset, fl.Limit), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Flashcard{}
	for rows.Next() {
		f, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) owned(ctx context.Context, v rbac.Viewer, id string) (Flashcard, error) {
	if v.IsStudent() {
		return Flashcard{}, apperr.Permission("students cannot modify flashcards")
	}
	return s.Get(ctx, v, id)
}

func (s *Store) Update(ctx context.Context, v rbac.Viewer, f Flashcard) (Flashcard, error) {
	cur, err := s.owned(ctx, v, f.ID)
	if err != nil {
		return Flashcard{}, err
	}
	if err := f.validate(); err != nil {
		return Flashcard{}, err
	}
	cur.FrontText, cur.BackText, cur.Tags = f.FrontText, f.BackText, f.Tags
	cur.QuestionID = f.QuestionID
	cur.FrontImage, cur.BackImage = f.FrontImage, f.BackImage
	cur.UpdatedAt = s.now().Truncate(time.Second)
	_, err = s.db.ExecContext(ctx, `UPDATE flashcards SET front_text=$1, back_text=$2, question_id=$3, tags_json=$4,
		front_image_key=$5, back_image_key=$6, updated_at=$7 WHERE id=$8`,
		cur.FrontText, cur.BackText, db.NullStr(cur.QuestionID), db.EncodeList(cur.Tags),
		cur.FrontImage, cur.BackImage, cur.UpdatedAt.Unix(), cur.ID)
	if err != nil {
		return Flashcard{}, err
	}
	return cur, nil
}

func (s *Store) Delete(ctx context.Context, v rbac.Viewer, id string) error {
	if _, err := s.owned(ctx, v, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM flashcards WHERE id=$1`, id)
	return err
}

// Review records one review of a visible card. The first review creates the
// tally; later ones increment it.
func (s *Store) Review(ctx context.Context, v rbac.Viewer, flashcardID string, correct bool) (Progress, error) {
	if _, err := s.Get(ctx, v, flashcardID); err != nil {
		return Progress{}, err
	}
	now := s.now().Truncate(time.Second)
	inc := 0
	if correct {
		inc = 1
	}
	var out Progress
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO flashcard_progress (id,student_id,flashcard_id,times_reviewed,
			correct_count,last_reviewed) VALUES ($1,$2,$3,1,$4,$5)
			ON CONFLICT (student_id, flashcard_id) DO UPDATE SET
			times_reviewed=flashcard_progress.times_reviewed+1,
			correct_count=flashcard_progress.correct_count+EXCLUDED.correct_count,
			last_reviewed=EXCLUDED.last_reviewed`,
			uuid.NewString(), v.ID, flashcardID, inc, now.Unix())
		if err != nil {
			return err
		}
		out, err = scanProgress(tx.QueryRowContext(ctx, `SELECT `+progressCols+` FROM flashcard_progress
			WHERE student_id=$1 AND flashcard_id=$2`, v.ID, flashcardID))
		return err
	})
	return out, err
}

const progressCols = `id,student_id,flashcard_id,times_reviewed,correct_count,last_reviewed,difficulty_level`

func scanProgress(sc interface{ Scan(...any) error }) (Progress, error) {
	var p Progress
	var last int64
	if err := sc.Scan(&p.ID, &p.StudentID, &p.FlashcardID, &p.TimesReviewed, &p.CorrectCount, &last,
		&p.DifficultyLevel); err != nil {
		return Progress{}, err
	}
	p.LastReviewed = db.FromUnix(last)
	p.fillAccuracy()
	return p, nil
}

// MyProgress lists the student's tallies, most recently reviewed first.
func (s *Store) MyProgress(ctx context.Context, studentID string) ([]Progress, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+progressCols+` FROM flashcard_progress
		WHERE student_id=$1 ORDER BY last_reviewed DESC, id`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Progress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type Stats struct {
	Total     int            `json:"total_flashcards"`
	ByTopic   map[string]int `json:"flashcards_by_topic"`
	ByProduct map[string]int `json:"flashcards_by_product"`
	Recent    []Flashcard    `json:"recent_flashcards"`
}

// Stats summarises the cards visible to v, keyed by topic and product title.
func (s *Store) Stats(ctx context.Context, v rbac.Viewer) (Stats, error) {
	st := Stats{ByTopic: map[string]int{}, ByProduct: map[string]int{}}
	var args db.Args
	var conds []string
	if c := scope(v, &args); c != "" {
		conds = append(conds, c)
	}
	where := db.Where(conds)

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flashcards f`+where, args...).Scan(&st.Total); err != nil {
		return Stats{}, err
	}
	group := func(q string, into map[string]int) error {
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var k string
			var n int
			if err := rows.Scan(&k, &n); err != nil {
				return err
			}
			into[k] = n
		}
		return rows.Err()
	}
	if err := group(`SELECT t.title, COUNT(*) FROM flashcards f JOIN topics t ON t.id=f.topic_id`+where+
		` GROUP BY t.title`, st.ByTopic); err != nil {
		return Stats{}, err
	}
	if err := group(`SELECT pr.title, COUNT(*) FROM flashcards f JOIN products pr ON pr.id=f.product_id`+where+
		` GROUP BY pr.title`, st.ByProduct); err != nil {
		return Stats{}, err
	}
	recent, err := s.List(ctx, v, Filter{Limit: 5})
	if err != nil {
		return Stats{}, err
	}
	st.Recent = recent
	return st, nil
}
