package postgres

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BlockAce01/Examind-sub001/internal/domain"
	"github.com/BlockAce01/Examind-sub001/internal/errors"
)

const codeUniqueViolation = "23505"

// AttemptStore is the durable gate.AttemptStore. The submission claim is a
// partial unique index on (user_id, quiz_id) over non-open, non-retake
// attempts; postgres serializes concurrent claims for us.
type AttemptStore struct {
	db *pgxpool.Pool
}

func NewAttemptStore(db *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, a domain.QuizAttempt) error {
	const stmt = `
INSERT INTO quiz_attempts (attempt_token, user_id, quiz_id, retake, state, opened_at)
VALUES ($1, $2, $3, $4, $5, $6);`

	_, err := s.db.Exec(ctx, stmt, a.AttemptToken, a.UserID, a.QuizID, a.Retake, a.State, a.OpenedAt)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists, errors.WithCause(err))
	}

	return err
}

func (s *AttemptStore) GetAttempt(ctx context.Context, token string) (domain.QuizAttempt, error) {
	const stmt = `
SELECT attempt_token, user_id, quiz_id, retake, state, answers,
       correct_count, total_count, points_awarded, opened_at, submitted_at
FROM quiz_attempts
WHERE attempt_token = $1;`

	rows, err := s.db.Query(ctx, stmt, token)
	if err != nil {
		return domain.QuizAttempt{}, err
	}

	a, err := pgx.CollectOneRow(rows, scanAttempt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.QuizAttempt{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("attempt %s not found", token))
	}

	return a, err
}

// ClaimAttempt atomically transitions the attempt from open to submitted.
// The partial unique index fires 23505 when another attempt of the same user
// already submitted a non-retake quiz; zero affected rows means a concurrent
// caller claimed this token first.
func (s *AttemptStore) ClaimAttempt(ctx context.Context, token string, answers domain.AnswerSet, at time.Time) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	const stmt = `
UPDATE quiz_attempts
SET state = 'submitted', answers = $2, submitted_at = $3
WHERE attempt_token = $1 AND state = 'open';`

	tag, err := s.db.Exec(ctx, stmt, token, raw, at)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists, errors.WithCause(err))
	}
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("attempt %s is not open", token))
	}

	return nil
}

// RecordScore settles the attempt. The points_awarded IS NULL guard makes it
// idempotent: an already-scored attempt is never overwritten.
func (s *AttemptStore) RecordScore(ctx context.Context, token string, sr domain.ScoreResult) error {
	const stmt = `
UPDATE quiz_attempts
SET correct_count = $2, total_count = $3, points_awarded = $4, state = 'submitted'
WHERE attempt_token = $1 AND points_awarded IS NULL;`

	_, err := s.db.Exec(ctx, stmt, token, sr.CorrectCount, sr.TotalCount, sr.PointsAwarded)
	return err
}

func (s *AttemptStore) MarkUnscored(ctx context.Context, token string) error {
	const stmt = `
UPDATE quiz_attempts
SET state = 'submitted_unscored'
WHERE attempt_token = $1 AND points_awarded IS NULL;`

	_, err := s.db.Exec(ctx, stmt, token)
	return err
}

func (s *AttemptStore) ListUnscored(ctx context.Context, limit int) ([]domain.QuizAttempt, error) {
	const stmt = `
SELECT attempt_token, user_id, quiz_id, retake, state, answers,
       correct_count, total_count, points_awarded, opened_at, submitted_at
FROM quiz_attempts
WHERE state <> 'open' AND points_awarded IS NULL
ORDER BY submitted_at
LIMIT $1;`

	rows, err := s.db.Query(ctx, stmt, limit)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, scanAttempt)
}

func scanAttempt(r pgx.CollectableRow) (domain.QuizAttempt, error) {
	var (
		a            domain.QuizAttempt
		rawAnswers   []byte
		correctCount *int
		totalCount   *int
		points       *int64
		submittedAt  *time.Time
	)

	if err := r.Scan(&a.AttemptToken, &a.UserID, &a.QuizID, &a.Retake, &a.State,
		&rawAnswers, &correctCount, &totalCount, &points, &a.OpenedAt, &submittedAt); err != nil {
		return domain.QuizAttempt{}, err
	}

	if rawAnswers != nil {
		if err := json.Unmarshal(rawAnswers, &a.Answers); err != nil {
			return domain.QuizAttempt{}, fmt.Errorf("unmarshal answers: %w", err)
		}
	}

	if points != nil && correctCount != nil && totalCount != nil {
		a.Score = &domain.ScoreResult{
			CorrectCount:  *correctCount,
			TotalCount:    *totalCount,
			PointsAwarded: *points,
		}
	}

	if submittedAt != nil {
		a.SubmittedAt = *submittedAt
	}

	return a, nil
}
