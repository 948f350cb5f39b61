package omr

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scanscore/omr-backend/internal/audit"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// --- answer keys ---

func (s *SQLStore) PutKey(ctx context.Context, k AnswerKey) error {
	if err := Validate(k); err != nil {
		return err
	}
	// A key already referenced by a result is frozen: editing it would
	// silently invalidate historical scores.
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM results WHERE key_id=$1`, k.ID).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d results reference key %s", ErrKeyInUse, n, k.ID)
	}
	sj, err := json.Marshal(k.Subjects)
	if err != nil {
		return err
	}
	aj, err := json.Marshal(k.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO answer_keys (id,name,version,total_questions,num_options,max_score,subjects_json,answers_json,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, version=EXCLUDED.version,
		   total_questions=EXCLUDED.total_questions, num_options=EXCLUDED.num_options,
		   max_score=EXCLUDED.max_score, subjects_json=EXCLUDED.subjects_json, answers_json=EXCLUDED.answers_json`,
		k.ID, k.Name, k.Version, k.TotalQuestions, k.NumOptions, k.MaxScore, string(sj), string(aj), time.Now().Unix())
	return err
}

func (s *SQLStore) GetKey(ctx context.Context, id string) (AnswerKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,name,version,total_questions,num_options,max_score,subjects_json,answers_json,created_at
		 FROM answer_keys WHERE id=$1`, id)
	return scanKey(row)
}

// GetKeyByVersion returns the newest key for a sheet layout version.
func (s *SQLStore) GetKeyByVersion(ctx context.Context, version string) (AnswerKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,name,version,total_questions,num_options,max_score,subjects_json,answers_json,created_at
		 FROM answer_keys WHERE version=$1 ORDER BY created_at DESC LIMIT 1`, version)
	return scanKey(row)
}

func (s *SQLStore) ListKeys(ctx context.Context) ([]AnswerKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,name,version,total_questions,num_options,max_score,subjects_json,answers_json,created_at
		 FROM answer_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AnswerKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteKey(ctx context.Context, id string) error {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM results WHERE key_id=$1`, id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d results reference key %s", ErrKeyInUse, n, id)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM answer_keys WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return fmt.Errorf("%w: key %s", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanKey(row rowScanner) (AnswerKey, error) {
	var k AnswerKey
	var sj, aj string
	err := row.Scan(&k.ID, &k.Name, &k.Version, &k.TotalQuestions, &k.NumOptions, &k.MaxScore, &sj, &aj, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AnswerKey{}, fmt.Errorf("%w: answer key", ErrNotFound)
		}
		return AnswerKey{}, err
	}
	if err := json.Unmarshal([]byte(sj), &k.Subjects); err != nil {
		return AnswerKey{}, err
	}
	if err := json.Unmarshal([]byte(aj), &k.Answers); err != nil {
		return AnswerKey{}, err
	}
	return k, nil
}

// --- sheets ---

func (s *SQLStore) CreateSheet(ctx context.Context, sh Sheet, ev audit.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := time.Now().Unix()
	if sh.UploadedAt == 0 {
		sh.UploadedAt = now
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sheets (id,student_id,student_name,version,image_key,status,status_note,uploaded_at,updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		sh.ID, sh.StudentID, sh.StudentName, sh.Version, sh.ImageKey, sh.Status, sh.StatusNote, sh.UploadedAt, now)
	if err != nil {
		return err
	}
	if err := audit.Append(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) GetSheet(ctx context.Context, id string) (Sheet, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,student_id,student_name,version,image_key,status,status_note,uploaded_at,updated_at
		 FROM sheets WHERE id=$1`, id)
	var sh Sheet
	err := row.Scan(&sh.ID, &sh.StudentID, &sh.StudentName, &sh.Version, &sh.ImageKey, &sh.Status, &sh.StatusNote, &sh.UploadedAt, &sh.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Sheet{}, fmt.Errorf("%w: sheet %s", ErrNotFound, id)
	}
	return sh, err
}

func (s *SQLStore) ListSheets(ctx context.Context, opts ListSheetsOpts) ([]Sheet, error) {
	q := `SELECT id,student_id,student_name,version,image_key,status,status_note,uploaded_at,updated_at FROM sheets WHERE 1=1`
	args := []any{}
	n := 0
	add := func(clause string, v any) {
		n++
		q += fmt.Sprintf(" AND %s$%d", clause, n)
		args = append(args, v)
	}
	if opts.Status != "" {
		add("status=", opts.Status)
	}
	if opts.Version != "" {
		add("version=", opts.Version)
	}
	if opts.Q != "" {
		n++
		q += fmt.Sprintf(" AND (student_id LIKE $%d OR student_name LIKE $%d)", n, n)
		args = append(args, "%"+opts.Q+"%")
	}
	q += " ORDER BY uploaded_at DESC"
	if opts.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d OFFSET %d", opts.Limit, opts.Offset)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Sheet
	for rows.Next() {
		var sh Sheet
		if err := rows.Scan(&sh.ID, &sh.StudentID, &sh.StudentName, &sh.Version, &sh.ImageKey, &sh.Status, &sh.StatusNote, &sh.UploadedAt, &sh.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateStatus(ctx context.Context, id, status, note string, ev audit.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx,
		`UPDATE sheets SET status=$1, status_note=$2, updated_at=$3 WHERE id=$4`,
		status, note, time.Now().Unix(), id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return fmt.Errorf("%w: sheet %s", ErrNotFound, id)
	}
	if err := audit.Append(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

// --- results ---

func (s *SQLStore) SaveResult(ctx context.Context, r SheetResult, status string, ev audit.Event) error {
	dj, err := json.Marshal(r.DetectedAnswers)
	if err != nil {
		return err
	}
	ssj, err := json.Marshal(r.SubjectScores)
	if err != nil {
		return err
	}
	amj, err := json.Marshal(r.Ambiguous)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	if r.CreatedAt == 0 {
		r.CreatedAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO results (id,sheet_id,key_id,detected_answers,subject_scores,total_score,max_score,percentage,
		   correct_answers,incorrect_answers,unanswered,ambiguous_answers,confidence_score,processing_time_ms,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		r.ID, r.SheetID, r.KeyID, string(dj), string(ssj), r.TotalScore, r.MaxScore, r.Percentage,
		r.CorrectCount, r.IncorrectCount, r.UnansweredCount, string(amj), r.ConfidenceScore, r.ProcessingTimeMs, r.CreatedAt)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE sheets SET status=$1, status_note='', updated_at=$2 WHERE id=$3`,
		status, now, r.SheetID)
	if err != nil {
		return err
	}
	if err := audit.Append(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

const resultCols = `id,sheet_id,key_id,detected_answers,subject_scores,total_score,max_score,percentage,
 correct_answers,incorrect_answers,unanswered,ambiguous_answers,confidence_score,processing_time_ms,created_at`

func (s *SQLStore) LatestResult(ctx context.Context, sheetID string) (SheetResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resultCols+` FROM results WHERE sheet_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1`, sheetID)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SheetResult{}, fmt.Errorf("%w: result for sheet %s", ErrNotFound, sheetID)
	}
	return r, err
}

func (s *SQLStore) ListLatestResults(ctx context.Context) ([]SheetWithResult, error) {
	// Latest row per sheet, created_at with id as tiebreak.
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id,s.student_id,s.student_name,s.version,s.image_key,s.status,s.status_note,s.uploaded_at,s.updated_at,
		       r.id,r.sheet_id,r.key_id,r.detected_answers,r.subject_scores,r.total_score,r.max_score,r.percentage,
		       r.correct_answers,r.incorrect_answers,r.unanswered,r.ambiguous_answers,r.confidence_score,r.processing_time_ms,r.created_at
		FROM sheets s
		JOIN results r ON r.sheet_id = s.id
		WHERE r.id = (SELECT r2.id FROM results r2 WHERE r2.sheet_id = s.id
		              ORDER BY r2.created_at DESC, r2.id DESC LIMIT 1)
		ORDER BY s.uploaded_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SheetWithResult
	for rows.Next() {
		var sh Sheet
		var r SheetResult
		var dj, ssj, amj string
		if err := rows.Scan(
			&sh.ID, &sh.StudentID, &sh.StudentName, &sh.Version, &sh.ImageKey, &sh.Status, &sh.StatusNote, &sh.UploadedAt, &sh.UpdatedAt,
			&r.ID, &r.SheetID, &r.KeyID, &dj, &ssj, &r.TotalScore, &r.MaxScore, &r.Percentage,
			&r.CorrectCount, &r.IncorrectCount, &r.UnansweredCount, &amj, &r.ConfidenceScore, &r.ProcessingTimeMs, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := decodeResultJSON(&r, dj, ssj, amj); err != nil {
			return nil, err
		}
		rr := r
		out = append(out, SheetWithResult{Sheet: sh, Result: &rr})
	}
	return out, rows.Err()
}

func scanResult(row rowScanner) (SheetResult, error) {
	var r SheetResult
	var dj, ssj, amj string
	err := row.Scan(&r.ID, &r.SheetID, &r.KeyID, &dj, &ssj, &r.TotalScore, &r.MaxScore, &r.Percentage,
		&r.CorrectCount, &r.IncorrectCount, &r.UnansweredCount, &amj, &r.ConfidenceScore, &r.ProcessingTimeMs, &r.CreatedAt)
	if err != nil {
		return SheetResult{}, err
	}
	if err := decodeResultJSON(&r, dj, ssj, amj); err != nil {
		return SheetResult{}, err
	}
	return r, nil
}

func decodeResultJSON(r *SheetResult, dj, ssj, amj string) error {
	if err := json.Unmarshal([]byte(dj), &r.DetectedAnswers); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(ssj), &r.SubjectScores); err != nil {
		return err
	}
	return json.Unmarshal([]byte(amj), &r.Ambiguous)
}
