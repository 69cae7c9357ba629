package qbank

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
)

type QuestionFilter struct {
	ProductID  string
	TopicID    string
	ProductIDs []string
	TopicIDs   []string
	ChapterIDs []string
	CreatedBy  string
	Type       string
	Difficulty string
	Search     string
	// Random shuffles the result, for practice quizzes.
	Random bool
	Offset int
	Limit  int
}

const questionCols = `q.id,q.product_id,q.topic_id,q.text,q.type,q.difficulty,q.options_json,q.correct_answer,
	q.explanation,q.tags_json,q.image_key,q.audio_key,q.video_key,q.created_by,q.created_at,q.updated_at`

func scanQuestion(sc interface{ Scan(...any) error }) (Question, error) {
	var q Question
	var opts, tags string
	var created, updated int64
	err := sc.Scan(&q.ID, &q.ProductID, &q.TopicID, &q.Text, &q.Type, &q.Difficulty, &opts, &q.CorrectAnswer,
		&q.Explanation, &tags, &q.ImageKey, &q.AudioKey, &q.VideoKey, &q.CreatedBy, &created, &updated)
	if err != nil {
		return Question{}, err
	}
	q.Options = db.DecodeList[string](opts)
	q.Tags = db.DecodeList[string](tags)
	q.CreatedAt = db.FromUnix(created)
	q.UpdatedAt = db.FromUnix(updated)
	return q, nil
}

// studentVisible limits students to questions of published products or of
// published assessments.
const studentVisible = `(EXISTS (SELECT 1 FROM products p WHERE p.id=q.product_id AND p.status='published')
	OR EXISTS (SELECT 1 FROM assessment_questions aq JOIN assessments a ON a.id=aq.assessment_id
		WHERE aq.question_id=q.id AND a.status='published'))`

func viewerScope(v rbac.Viewer, args *db.Args) string {
	switch {
	case v.IsAdmin():
		return ""
	case v.IsInstructor():
		return "q.created_by=" + args.Add(v.ID)
	default:
		return studentVisible
	}
}

// CreateQuestion validates q and stores it under its topic. The product is
// derived from the topic.
func (s *SQLStore) CreateQuestion(ctx context.Context, v rbac.Viewer, q Question) (Question, error) {
	p, err := s.OwnedTopicProduct(ctx, v, q.TopicID)
	if err != nil {
		return Question{}, err
	}
	if p.Kind != KindQuestionBank {
		return Question{}, apperr.Validation("topic belongs to a %s product", p.Kind)
	}
	q.ProductID = p.ID
	q.CreatedBy = v.ID
	return s.insertQuestion(ctx, q)
}

func (s *SQLStore) insertQuestion(ctx context.Context, q Question) (Question, error) {
	q.Text = strings.TrimSpace(q.Text)
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	if q.Options == nil {
		q.Options = []string{}
	}
	if q.Tags == nil {
		q.Tags = []string{}
	}
	now := s.now().Truncate(time.Second)
	q.ID = uuid.NewString()
	q.CreatedAt, q.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `INSERT INTO questions (id,product_id,topic_id,text,type,difficulty,options_json,
		correct_answer,explanation,tags_json,image_key,audio_key,video_key,created_by,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		q.ID, q.ProductID, q.TopicID, q.Text, q.Type, q.Difficulty, db.EncodeList(q.Options),
		q.CorrectAnswer, q.Explanation, db.EncodeList(q.Tags), q.ImageKey, q.AudioKey, q.VideoKey,
		q.CreatedBy, now.Unix(), now.Unix())
	if err != nil {
		return Question{}, err
	}
	return q, nil
}

// GetQuestion loads a question without visibility checks. Used by grading.
func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx, `SELECT `+questionCols+` FROM questions q WHERE q.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, apperr.NotFound("question %s not found", id)
	}
	return q, err
}

// QuestionFor loads a question the viewer may see. Students never receive the
// answer key.
func (s *SQLStore) QuestionFor(ctx context.Context, v rbac.Viewer, id string) (Question, error) {
	var args db.Args
	conds := []string{"q.id=" + args.Add(id)}
	if c := viewerScope(v, &args); c != "" {
		conds = append(conds, c)
	}
	q, err := scanQuestion(s.db.QueryRowContext(ctx, `SELECT `+questionCols+` FROM questions q`+db.Where(conds), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, apperr.NotFound("question %s not found", id)
	}
	if err != nil {
		return Question{}, err
	}
	if v.IsStudent() {
		q.CorrectAnswer = ""
	}
	return q, nil
}

func (s *SQLStore) ListQuestions(ctx context.Context, v rbac.Viewer, f QuestionFilter) ([]Question, error) {
	var args db.Args
	var conds []string
	if c := viewerScope(v, &args); c != "" {
		conds = append(conds, c)
	}
	if f.ProductID != "" {
		conds = append(conds, "q.product_id="+args.Add(f.ProductID))
	}
	if f.TopicID != "" {
		conds = append(conds, "q.topic_id="+args.Add(f.TopicID))
	}
	if len(f.ProductIDs) > 0 {
		conds = append(conds, "q.product_id IN "+args.In(f.ProductIDs))
	}
	if len(f.TopicIDs) > 0 {
		conds = append(conds, "q.topic_id IN "+args.In(f.TopicIDs))
	}
	if len(f.ChapterIDs) > 0 {
		conds = append(conds, "q.topic_id IN (SELECT id FROM topics WHERE chapter_id IN "+args.In(f.ChapterIDs)+")")
	}
	if f.CreatedBy != "" {
		conds = append(conds, "q.created_by="+args.Add(f.CreatedBy))
	}
	if f.Type != "" {
		conds = append(conds, "q.type="+args.Add(f.Type))
	}
	if f.Difficulty != "" {
		conds = append(conds, "q.difficulty="+args.Add(f.Difficulty))
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		conds = append(conds, "LOWER(q.text) LIKE "+args.Add("%"+strings.ToLower(term)+"%"))
	}
	order := ` ORDER BY q.created_at DESC, q.id`
	if f.Random {
		order = ` ORDER BY RANDOM()`
	}
	q := `SELECT ` + questionCols + ` FROM questions q` + db.Where(conds) + order + args.Page(f.Offset, f.Limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Question{}
	for rows.Next() {
		qq, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		if v.IsStudent() {
			qq.CorrectAnswer = ""
		}
		out = append(out, qq)
	}
	return out, rows.Err()
}

// UpdateQuestion replaces the editable fields of a question the viewer owns.
func (s *SQLStore) UpdateQuestion(ctx context.Context, v rbac.Viewer, q Question) (Question, error) {
	cur, err := s.GetQuestion(ctx, q.ID)
	if err != nil {
		return Question{}, err
	}
	if !v.IsAdmin() && cur.CreatedBy != v.ID {
		return Question{}, apperr.Permission("only the author can edit this question")
	}
	q.ProductID, q.TopicID, q.CreatedBy, q.CreatedAt = cur.ProductID, cur.TopicID, cur.CreatedBy, cur.CreatedAt
	q.ImageKey, q.AudioKey, q.VideoKey = cur.ImageKey, cur.AudioKey, cur.VideoKey
	q.Text = strings.TrimSpace(q.Text)
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	if q.Options == nil {
		q.Options = []string{}
	}
	if q.Tags == nil {
		q.Tags = []string{}
	}
	q.UpdatedAt = s.now().Truncate(time.Second)
	_, err = s.db.ExecContext(ctx, `UPDATE questions SET text=$1, type=$2, difficulty=$3, options_json=$4,
		correct_answer=$5, explanation=$6, tags_json=$7, updated_at=$8 WHERE id=$9`,
		q.Text, q.Type, q.Difficulty, db.EncodeList(q.Options), q.CorrectAnswer, q.Explanation,
		db.EncodeList(q.Tags), q.UpdatedAt.Unix(), q.ID)
	if err != nil {
		return Question{}, err
	}
	return q, nil
}

func (s *SQLStore) DeleteQuestion(ctx context.Context, v rbac.Viewer, id string) error {
	cur, err := s.GetQuestion(ctx, id)
	if err != nil {
		return err
	}
	if !v.IsAdmin() && cur.CreatedBy != v.ID {
		return apperr.Permission("only the author can delete this question")
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM questions WHERE id=$1`, id)
	return err
}

// Media kinds accepted by SetMedia.
const (
	MediaImage = "image"
	MediaAudio = "audio"
	MediaVideo = "video"
)

// SetMedia records the blob key of an uploaded media file.
func (s *SQLStore) SetMedia(ctx context.Context, v rbac.Viewer, id, kind, key string) error {
	col := map[string]string{MediaImage: "image_key", MediaAudio: "audio_key", MediaVideo: "video_key"}[kind]
	if col == "" {
		return apperr.Validation("unknown media kind %q", kind)
	}
	cur, err := s.GetQuestion(ctx, id)
	if err != nil {
		return err
	}
	if !v.IsAdmin() && cur.CreatedBy != v.ID {
		return apperr.Permission("only the author can attach media")
	}
	_, err = s.db.ExecContext(ctx, `UPDATE questions SET `+col+`=$1, updated_at=$2 WHERE id=$3`,
		key, s.now().Unix(), id)
	return err
}

// QuestionStats counts visible questions by type and difficulty and lists
// the ten questions used by the most assessments.
func (s *SQLStore) QuestionStats(ctx context.Context, v rbac.Viewer) (Stats, error) {
	var args db.Args
	var conds []string
	if c := viewerScope(v, &args); c != "" {
		conds = append(conds, c)
	}
	where := db.Where(conds)
	rows, err := s.db.QueryContext(ctx,
		`SELECT q.type, q.difficulty, COUNT(*) FROM questions q`+where+` GROUP BY q.type, q.difficulty`, args...)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	st := Stats{ByType: map[string]int{}, ByDifficulty: map[string]int{}, MostUsed: []QuestionUsage{}}
	for rows.Next() {
		var typ, diff string
		var n int
		if err := rows.Scan(&typ, &diff, &n); err != nil {
			return Stats{}, err
		}
		st.Total += n
		st.ByType[typ] += n
		st.ByDifficulty[diff] += n
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	used, err := s.db.QueryContext(ctx, `SELECT q.id, q.text,
		(SELECT COUNT(*) FROM assessment_questions aq WHERE aq.question_id=q.id) AS usage_count
		FROM questions q`+where+` ORDER BY usage_count DESC, q.created_at DESC, q.id LIMIT 10`, args...)
	if err != nil {
		return Stats{}, err
	}
	defer used.Close()
	for used.Next() {
		var u QuestionUsage
		if err := used.Scan(&u.ID, &u.Text, &u.UsageCount); err != nil {
			return Stats{}, err
		}
		st.MostUsed = append(st.MostUsed, u)
	}
	return st, used.Err()
}
