package postgres

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BlockAce01/Examind-sub001/internal/domain"
	"github.com/BlockAce01/Examind-sub001/internal/errors"
)

// QuizStore reads quiz reference data and answer keys. Authoring writes these
// tables from outside the engine; here they are read-only.
type QuizStore struct {
	db *pgxpool.Pool
}

func NewQuizStore(db *pgxpool.Pool) *QuizStore {
	return &QuizStore{db: db}
}

func (s *QuizStore) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	const stmt = `
SELECT quiz_id, title, difficulty, allow_retake
FROM quizzes
WHERE quiz_id = $1;`

	var q domain.Quiz
	err := s.db.QueryRow(ctx, stmt, quizID).Scan(&q.QuizID, &q.Title, &q.Difficulty, &q.AllowRetake)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz %s not found", quizID))
	}

	return q, err
}

func (s *QuizStore) GetAnswerKey(ctx context.Context, quizID string) (domain.AnswerKey, error) {
	const stmt = `
SELECT question_id, correct_option
FROM answer_keys
WHERE quiz_id = $1;`

	rows, err := s.db.Query(ctx, stmt, quizID)
	if err != nil {
		return domain.AnswerKey{}, err
	}
	defer rows.Close()

	key := domain.AnswerKey{
		QuizID:  quizID,
		Correct: make(map[string]int),
	}
	for rows.Next() {
		var (
			question string
			correct  int
		)
		if err := rows.Scan(&question, &correct); err != nil {
			return domain.AnswerKey{}, err
		}
		key.Correct[question] = correct
	}
	if err := rows.Err(); err != nil {
		return domain.AnswerKey{}, err
	}

	if len(key.Correct) == 0 {
		return domain.AnswerKey{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("answer key for quiz %s not found", quizID))
	}

	return key, nil
}
