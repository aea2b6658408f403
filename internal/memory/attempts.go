package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BlockAce01/Examind-sub001/internal/domain"
	"github.com/BlockAce01/Examind-sub001/internal/errors"
)

// AttemptStore is an in-memory AttemptStore used by tests and infra-less local
// runs. A single mutex makes the claim transition atomic, mirroring the
// partial unique index the postgres store relies on.
type AttemptStore struct {
	mu       sync.Mutex
	attempts map[string]domain.QuizAttempt
	// claims holds the (user, quiz) pairs that already have a submitted
	// non-retake attempt, the in-memory twin of the unique index.
	claims map[claimKey]string
}

type claimKey struct {
	userID string
	quizID string
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]domain.QuizAttempt),
		claims:   make(map[claimKey]string),
	}
}

func (s *AttemptStore) CreateAttempt(_ context.Context, a domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[a.AttemptToken]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("attempt %s already exists", a.AttemptToken))
	}

	s.attempts[a.AttemptToken] = a
	return nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, token string) (domain.QuizAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[token]
	if !ok {
		return domain.QuizAttempt{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("attempt %s not found", token))
	}

	return a, nil
}

func (s *AttemptStore) ClaimAttempt(_ context.Context, token string, answers domain.AnswerSet, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[token]
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("attempt %s not found", token))
	}

	if a.State != domain.AttemptOpen {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("attempt %s is not open", token))
	}

	if !a.Retake {
		key := claimKey{userID: a.UserID, quizID: a.QuizID}
		if holder, claimed := s.claims[key]; claimed && holder != token {
			return errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("quiz %s already submitted by user %s", a.QuizID, a.UserID))
		}
		s.claims[key] = token
	}

	a.State = domain.AttemptSubmitted
	a.Answers = answers
	a.SubmittedAt = at
	s.attempts[token] = a
	return nil
}

func (s *AttemptStore) RecordScore(_ context.Context, token string, sr domain.ScoreResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[token]
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("attempt %s not found", token))
	}

	if a.Score != nil {
		return nil
	}

	a.Score = &sr
	a.State = domain.AttemptSubmitted
	s.attempts[token] = a
	return nil
}

func (s *AttemptStore) MarkUnscored(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[token]
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("attempt %s not found", token))
	}

	if a.Score == nil {
		a.State = domain.AttemptSubmittedUnscored
		s.attempts[token] = a
	}
	return nil
}

func (s *AttemptStore) ListUnscored(_ context.Context, limit int) ([]domain.QuizAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.QuizAttempt
	for _, a := range s.attempts {
		if a.State == domain.AttemptOpen || a.Score != nil {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	return out, nil
}
