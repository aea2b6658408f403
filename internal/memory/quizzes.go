package memory

import (
	"context"
	"sync"

	"github.com/BlockAce01/Examind-sub001/internal/domain"
	"github.com/BlockAce01/Examind-sub001/internal/errors"
)

// QuizStore is an in-memory gate.QuizStore holding quizzes with their answer
// keys, for tests and infra-less local runs.
type QuizStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
	keys    map[string]domain.AnswerKey
}

func NewQuizStore() *QuizStore {
	return &QuizStore{
		quizzes: make(map[string]domain.Quiz),
		keys:    make(map[string]domain.AnswerKey),
	}
}

// AddQuiz registers a quiz and its answer key.
func (s *QuizStore) AddQuiz(q domain.Quiz, key domain.AnswerKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[q.QuizID] = q
	s.keys[q.QuizID] = key
}

// RemoveAnswerKey drops a key while keeping the quiz, simulating a corrupt or
// missing key for scoring-failure tests.
func (s *QuizStore) RemoveAnswerKey(quizID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, quizID)
}

func (s *QuizStore) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz %s not found", quizID))
	}
	return q, nil
}

func (s *QuizStore) GetAnswerKey(_ context.Context, quizID string) (domain.AnswerKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.keys[quizID]
	if !ok {
		return domain.AnswerKey{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("answer key for quiz %s not found", quizID))
	}
	return k, nil
}
