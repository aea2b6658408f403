package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BlockAce01/Examind-sub001/internal/badge"
	"github.com/BlockAce01/Examind-sub001/internal/domain"
	"github.com/BlockAce01/Examind-sub001/internal/errors"
	"github.com/BlockAce01/Examind-sub001/internal/ledger"
	"github.com/BlockAce01/Examind-sub001/internal/scoring"
)

// AttemptStore persists quiz attempts. ClaimAttempt is the serialization
// point of the whole engine: it atomically transitions exactly one attempt
// from open to submitted.
//
// ClaimAttempt error contract:
//   - errors.CodeAlreadyExists: a different attempt already holds the
//     (user, quiz) submission claim (retakes disallowed).
//   - errors.CodeFailedPrecondition: this attempt is no longer open; a
//     concurrent caller claimed it first. The caller re-reads to resolve.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, a domain.QuizAttempt) error
	GetAttempt(ctx context.Context, token string) (domain.QuizAttempt, error)
	ClaimAttempt(ctx context.Context, token string, answers domain.AnswerSet, at time.Time) error
	// RecordScore stores the score and settles the attempt as submitted. It only
	// writes if the attempt is not scored yet, so re-delivery cannot overwrite.
	RecordScore(ctx context.Context, token string, sr domain.ScoreResult) error
	MarkUnscored(ctx context.Context, token string) error
	ListUnscored(ctx context.Context, limit int) ([]domain.QuizAttempt, error)
}

// QuizStore supplies quiz reference data and answer keys, owned by quiz
// authoring which is external to this engine.
type QuizStore interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	GetAnswerKey(ctx context.Context, quizID string) (domain.AnswerKey, error)
}

type Config struct {
	Attempts AttemptStore
	Quizzes  QuizStore
	Engine   *scoring.Engine
	Ledger   *ledger.Service
	Badges   *badge.Evaluator

	// ScoringRetries is how many times post-claim scoring is retried before the
	// attempt is parked as submitted_unscored. The claim already fixed the
	// at-most-once guarantee, so retries are always safe.
	ScoringRetries int
	RetryBackoff   time.Duration
}

// Service is the submission gate: it admits at most one submission per
// (user, quiz) — or per attempt for retakeable quizzes — then scores the
// answers, appends the points event and evaluates badges before returning.
type Service struct {
	attempts AttemptStore
	quizzes  QuizStore
	engine   *scoring.Engine
	ledger   *ledger.Service
	badges   *badge.Evaluator

	retries int
	backoff time.Duration
}

func NewService(c Config) *Service {
	if c.ScoringRetries <= 0 {
		c.ScoringRetries = 3
	}

	return &Service{
		attempts: c.Attempts,
		quizzes:  c.Quizzes,
		engine:   c.Engine,
		ledger:   c.Ledger,
		badges:   c.Badges,
		retries:  c.ScoringRetries,
		backoff:  c.RetryBackoff,
	}
}

type OpenRequest struct {
	UserID string
	QuizID string
}

// Open creates a new attempt for the user and returns it. The attempt token
// is the idempotency key for the eventual submission.
func (s *Service) Open(ctx context.Context, req OpenRequest) (domain.QuizAttempt, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return domain.QuizAttempt{}, errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonInvalidAttempt),
			errors.WithMessagef("quiz %s not found", req.QuizID),
			errors.WithCause(err),
		)
	}

	token, err := uuid.NewV7()
	if err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("generate attempt token: %w", err)
	}

	a := domain.QuizAttempt{
		AttemptToken: token.String(),
		UserID:       req.UserID,
		QuizID:       quiz.QuizID,
		Retake:       quiz.AllowRetake,
		State:        domain.AttemptOpen,
		OpenedAt:     time.Now().UTC(),
	}

	if err := s.attempts.CreateAttempt(ctx, a); err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("create attempt: %w", err)
	}

	return a, nil
}

type SubmitRequest struct {
	UserID       string
	QuizID       string
	AttemptToken string
	Answers      domain.AnswerSet
}

type SubmitResponse struct {
	Score       domain.ScoreResult
	PointsTotal int64
	NewBadges   []domain.UserBadge
	// Replayed is true when this call re-delivered an already-accepted
	// submission and the original score was returned.
	Replayed bool
}

// Submit admits or rejects a quiz submission. Among concurrent submissions for
// the same (user, quiz), exactly one is accepted; the rest are rejected with
// DUPLICATE_SUBMISSION or ALREADY_SUBMITTED. Retrying an accepted submission
// with the same attempt token and the same answers replays the original score.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	att, err := s.attempts.GetAttempt(ctx, req.AttemptToken)
	if err != nil {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonInvalidAttempt),
			errors.WithMessagef("attempt %s not found", req.AttemptToken),
			errors.WithCause(err),
		)
	}

	if att.UserID != req.UserID || att.QuizID != req.QuizID {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithReason(errors.ReasonInvalidAttempt),
			errors.WithMessagef("attempt %s does not belong to user=%s quiz=%s", req.AttemptToken, req.UserID, req.QuizID),
		)
	}

	quiz, err := s.quizzes.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonInvalidAttempt),
			errors.WithMessagef("quiz %s not found", req.QuizID),
			errors.WithCause(err),
		)
	}

	if att.State != domain.AttemptOpen {
		return s.resolveSettled(ctx, att, quiz, req.Answers)
	}

	now := time.Now().UTC()
	switch err := s.attempts.ClaimAttempt(ctx, req.AttemptToken, req.Answers, now); {
	case err == nil:
		// Claim won; this caller is the single accepted submission.

	case errors.Convert(err).Code == errors.CodeAlreadyExists:
		// Another attempt of the same user already submitted this quiz.
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithReason(errors.ReasonAlreadySubmitted),
			errors.WithMessagef("quiz %s already submitted by user %s", req.QuizID, req.UserID),
			errors.WithCause(err),
		)

	case errors.Convert(err).Code == errors.CodeFailedPrecondition:
		// A concurrent caller claimed this very attempt while we were racing.
		att, err := s.attempts.GetAttempt(ctx, req.AttemptToken)
		if err != nil {
			return nil, fmt.Errorf("reload attempt after lost claim: %w", err)
		}
		return s.resolveSettled(ctx, att, quiz, req.Answers)

	default:
		return nil, fmt.Errorf("claim attempt: %w", err)
	}

	sr, err := s.scoreClaimed(ctx, req.AttemptToken, quiz, req.Answers)
	if err != nil {
		return nil, err
	}

	return s.settle(ctx, req.UserID, req.AttemptToken, sr)
}

// resolveSettled handles a submission that raced with or re-delivered an
// already-claimed attempt. An identical answer set is an idempotent retry and
// replays the original result; a different one is a losing concurrent tab.
func (s *Service) resolveSettled(ctx context.Context, att domain.QuizAttempt, quiz domain.Quiz, answers domain.AnswerSet) (*SubmitResponse, error) {
	if !att.Answers.Equal(answers) {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithReason(errors.ReasonDuplicateSubmission),
			errors.WithMessagef("attempt %s was already submitted", att.AttemptToken),
		)
	}

	if att.Score == nil {
		// Claimed but unscored: an earlier call crashed between claim and score.
		// The claim fixed at-most-once, so scoring here is safe.
		sr, err := s.scoreClaimed(ctx, att.AttemptToken, quiz, att.Answers)
		if err != nil {
			return nil, err
		}
		resp, err := s.settle(ctx, att.UserID, att.AttemptToken, sr)
		if err != nil {
			return nil, err
		}
		resp.Replayed = true
		return resp, nil
	}

	total, err := s.ledger.Total(ctx, att.UserID)
	if err != nil {
		return nil, fmt.Errorf("ledger total: %w", err)
	}

	return &SubmitResponse{
		Score:       *att.Score,
		PointsTotal: total,
		Replayed:    true,
	}, nil
}

// scoreClaimed scores an attempt that already holds the claim, retrying on
// failure. Exhausted retries park the attempt as submitted_unscored for
// reconciliation; it is never silently dropped and never partially awarded.
func (s *Service) scoreClaimed(ctx context.Context, token string, quiz domain.Quiz, answers domain.AnswerSet) (domain.ScoreResult, error) {
	var lastErr error
	for i := 0; i < s.retries; i++ {
		if i > 0 && s.backoff > 0 {
			time.Sleep(s.backoff)
		}

		key, err := s.quizzes.GetAnswerKey(ctx, quiz.QuizID)
		if err != nil {
			lastErr = fmt.Errorf("load answer key: %w", err)
			continue
		}

		sr, unknown := s.engine.Score(answers, &key, quiz.Difficulty)
		if len(unknown) > 0 {
			slog.WarnContext(ctx, "gate: submission referenced unknown questions",
				"attempt", token,
				"quiz", quiz.QuizID,
				"questions", unknown,
			)
		}

		if err := s.attempts.RecordScore(ctx, token, sr); err != nil {
			lastErr = fmt.Errorf("record score: %w", err)
			continue
		}

		return sr, nil
	}

	if err := s.attempts.MarkUnscored(ctx, token); err != nil {
		slog.ErrorContext(ctx, "gate: mark attempt unscored failed",
			"attempt", token,
			"error", err,
		)
	}

	return domain.ScoreResult{}, errors.New(errors.CodeInternal,
		errors.WithReason(errors.ReasonScoringFailure),
		errors.WithMessagef("scoring attempt %s failed, parked for reconciliation", token),
		errors.WithCause(lastErr),
	)
}

// settle appends the points event and evaluates badges synchronously, so the
// response is not sent before a profile refresh would see the new badge set.
func (s *Service) settle(ctx context.Context, userID, token string, sr domain.ScoreResult) (*SubmitResponse, error) {
	if _, err := s.ledger.Append(ctx, ledger.AppendRequest{
		UserID:      userID,
		Source:      domain.SourceQuiz,
		SourceID:    token,
		PointsDelta: sr.PointsAwarded,
	}); err != nil {
		return nil, fmt.Errorf("append points: %w", err)
	}

	awarded, err := s.badges.Evaluate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("evaluate badges: %w", err)
	}

	total, err := s.ledger.Total(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger total: %w", err)
	}

	return &SubmitResponse{
		Score:       sr,
		PointsTotal: total,
		NewBadges:   awarded,
	}, nil
}

// Reconcile re-scores attempts parked as submitted_unscored and attempts that
// crashed between claim and score. Safe to run repeatedly and concurrently
// with live traffic: RecordScore and Append are both idempotent.
func (s *Service) Reconcile(ctx context.Context, limit int) (int, error) {
	atts, err := s.attempts.ListUnscored(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unscored: %w", err)
	}

	recovered := 0
	for _, att := range atts {
		quiz, err := s.quizzes.GetQuiz(ctx, att.QuizID)
		if err != nil {
			slog.ErrorContext(ctx, "gate: reconcile quiz lookup failed",
				"attempt", att.AttemptToken,
				"quiz", att.QuizID,
				"error", err,
			)
			continue
		}

		sr, err := s.scoreClaimed(ctx, att.AttemptToken, quiz, att.Answers)
		if err != nil {
			continue
		}

		if _, err := s.settle(ctx, att.UserID, att.AttemptToken, sr); err != nil {
			slog.ErrorContext(ctx, "gate: reconcile settle failed",
				"attempt", att.AttemptToken,
				"error", err,
			)
			continue
		}

		recovered++
	}

	return recovered, nil
}
