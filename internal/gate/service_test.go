package gate_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlockAce01/Examind-sub001/internal/badge"
	"github.com/BlockAce01/Examind-sub001/internal/domain"
	"github.com/BlockAce01/Examind-sub001/internal/errors"
	"github.com/BlockAce01/Examind-sub001/internal/event"
	"github.com/BlockAce01/Examind-sub001/internal/gate"
	"github.com/BlockAce01/Examind-sub001/internal/ledger"
	"github.com/BlockAce01/Examind-sub001/internal/memory"
	"github.com/BlockAce01/Examind-sub001/internal/scoring"
)

type fixture struct {
	gate    *gate.Service
	ledger  *ledger.Service
	badges  *badge.Evaluator
	quizzes *memory.QuizStore
	bus     *event.Bus
}

func makeFixture(t *testing.T, badges ...domain.Badge) *fixture {
	t.Helper()

	engine, err := scoring.NewEngine(scoring.DefaultWeights())
	require.NoError(t, err)

	bus := event.NewBus()
	t.Cleanup(bus.Stop)

	quizzes := memory.NewQuizStore()
	quizzes.AddQuiz(
		domain.Quiz{QuizID: "quiz-1", Title: "Basics", Difficulty: domain.DifficultyEasy},
		domain.AnswerKey{QuizID: "quiz-1", Correct: map[string]int{"q1": 0, "q2": 1, "q3": 2}},
	)
	quizzes.AddQuiz(
		domain.Quiz{QuizID: "quiz-retake", Title: "Practice", Difficulty: domain.DifficultyEasy, AllowRetake: true},
		domain.AnswerKey{QuizID: "quiz-retake", Correct: map[string]int{"q1": 0}},
	)

	ls := ledger.NewService(ledger.Config{
		EventBus: bus,
		Store:    memory.NewLedgerStore(),
	})

	ev := badge.NewEvaluator(badge.Config{
		EventBus: bus,
		Ledger:   ls,
		Store:    memory.NewBadgeStore(badges...),
	})

	g := gate.NewService(gate.Config{
		Attempts: memory.NewAttemptStore(),
		Quizzes:  quizzes,
		Engine:   engine,
		Ledger:   ls,
		Badges:   ev,
	})

	return &fixture{gate: g, ledger: ls, badges: ev, quizzes: quizzes, bus: bus}
}

func allCorrect() domain.AnswerSet {
	return domain.AnswerSet{
		{QuestionID: "q1", SelectedOption: 0},
		{QuestionID: "q2", SelectedOption: 1},
		{QuestionID: "q3", SelectedOption: 2},
	}
}

func TestService_SubmitScoresAndAwardsPoints(t *testing.T) {
	t.Parallel()

	f := makeFixture(t)
	ctx := context.Background()

	att, err := f.gate.Open(ctx, gate.OpenRequest{UserID: "u1", QuizID: "quiz-1"})
	require.NoError(t, err)

	resp, err := f.gate.Submit(ctx, gate.SubmitRequest{
		UserID:       "u1",
		QuizID:       "quiz-1",
		AttemptToken: att.AttemptToken,
		Answers:      allCorrect(),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ScoreResult{CorrectCount: 3, TotalCount: 3, PointsAwarded: 30}, resp.Score)
	assert.Equal(t, int64(30), resp.PointsTotal)
	assert.False(t, resp.Replayed)

	total, err := f.ledger.Total(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), total, "ledger total must equal the awarded points")
}

func TestService_SubmitAwardsFirstQuizBadgeImmediately(t *testing.T) {
	t.Parallel()

	f := makeFixture(t, domain.Badge{
		BadgeID: "first-quiz",
		Name:    "First Quiz",
		Rule:    domain.BadgeRule{Kind: domain.RuleSourceCount, Source: domain.SourceQuiz, Count: 1},
	})
	ctx := context.Background()

	att, err := f.gate.Open(ctx, gate.OpenRequest{UserID: "u1", QuizID: "quiz-1"})
	require.NoError(t, err)

	resp, err := f.gate.Submit(ctx, gate.SubmitRequest{
		UserID:       "u1",
		QuizID:       "quiz-1",
		AttemptToken: att.AttemptToken,
		Answers:      allCorrect(),
	})
	require.NoError(t, err)

	require.Len(t, resp.NewBadges, 1, "badge must be in the submission response, not eventually")
	assert.Equal(t, "first-quiz", resp.NewBadges[0].BadgeID)
}

func TestService_ConcurrentSubmissionsOneWinner(t *testing.T) {
	t.Parallel()

	const workers = 16

	f := makeFixture(t)
	ctx := context.Background()

	att, err := f.gate.Open(ctx, gate.OpenRequest{UserID: "u1", QuizID: "quiz-1"})
	require.NoError(t, err)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		accepted   int
		duplicates int
	)

	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Every worker submits different answers, like tabs with different state.
			answers := domain.AnswerSet{{QuestionID: "q1", SelectedOption: i}}
			resp, err := f.gate.Submit(ctx, gate.SubmitRequest{
				UserID:       "u1",
				QuizID:       "quiz-1",
				AttemptToken: att.AttemptToken,
				Answers:      answers,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && !resp.Replayed:
				accepted++
			case errors.HasReason(err, errors.ReasonDuplicateSubmission):
				duplicates++
			default:
				t.Errorf("unexpected outcome: resp=%+v err=%v", resp, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted, "exactly one concurrent submission must win")
	assert.Equal(t, workers-1, duplicates)

	agg, err := f.ledger.Aggregate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), agg.EventsBySource[domain.SourceQuiz], "exactly one points event for the attempt")
}

func TestService_SecondAttemptRejectedWhenRetakesDisallowed(t *testing.T) {
	t.Parallel()

	f := makeFixture(t)
	ctx := context.Background()

	first, err := f.gate.Open(ctx, gate.OpenRequest{UserID: "u1", QuizID: "quiz-1"})
	require.NoError(t, err)
	second, err := f.gate.Open(ctx, gate.OpenRequest{UserID: "u1", QuizID: "quiz-1"})
	require.NoError(t, err)

	_, err = f.gate.Submit(ctx, gate.SubmitRequest{
		UserID: "u1", QuizID: "quiz-1", AttemptToken: first.AttemptToken, Answers: allCorrect(),
	})
	require.NoError(t, err)

	_, err = f.gate.Submit(ctx, gate.SubmitRequest{
		UserID: "u1", QuizID: "quiz-1", AttemptToken: second.AttemptToken, Answers: allCorrect(),
	})
	require.Error(t, err)
	assert.True(t, errors.HasReason(err, errors.ReasonAlreadySubmitted))
}

func TestService_RetakeQuizAllowsMultipleSubmissions(t *testing.T) {
	t.Parallel()

	f := makeFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		att, err := f.gate.Open(ctx, gate.OpenRequest{UserID: "u1", QuizID: "quiz-retake"})
		require.NoError(t, err)

		_, err = f.gate.Submit(ctx, gate.SubmitRequest{
			UserID:       "u1",
			QuizID:       "quiz-retake",
			AttemptToken: att.AttemptToken,
			Answers:      domain.AnswerSet{{QuestionID: "q1", SelectedOption: 0}},
		})
		require.NoError(t, err)
	}

	total, err := f.ledger.Total(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), total, "each retake submission earns its own points")
}

func TestService_RetrySameTokenReplaysOriginalScore(t *testing.T) {
	t.Parallel()

	f := makeFixture(t)
	ctx := context.Background()

	att, err := f.gate.Open(ctx, gate.OpenRequest{UserID: "u1", QuizID: "quiz-1"})
	require.NoError(t, err)

	first, err := f.gate.Submit(ctx, gate.SubmitRequest{
		UserID: "u1", QuizID: "quiz-1", AttemptToken: att.AttemptToken, Answers: allCorrect(),
	})
	require.NoError(t, err)

	// Client timed out and retries the identical request.
	second, err := f.gate.Submit(ctx, gate.SubmitRequest{
		UserID: "u1", QuizID: "quiz-1", AttemptToken: att.AttemptToken, Answers: allCorrect(),
	})
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.PointsTotal, second.PointsTotal, "retry must not award points twice")
}

func TestService_SubmitRejectsInvalidAttempts(t *testing.T) {
	t.Parallel()

	f := makeFixture(t)
	ctx := context.Background()

	att, err := f.gate.Open(ctx, gate.OpenRequest{UserID: "u1", QuizID: "quiz-1"})
	require.NoError(t, err)

	tests := map[string]gate.SubmitRequest{
		"unknown attempt token": {
			UserID: "u1", QuizID: "quiz-1", AttemptToken: uuid.NewString(),
		},
		"attempt belongs to another user": {
			UserID: "u2", QuizID: "quiz-1", AttemptToken: att.AttemptToken,
		},
		"attempt belongs to another quiz": {
			UserID: "u1", QuizID: "quiz-retake", AttemptToken: att.AttemptToken,
		},
	}

	for name, req := range tests {
		req := req
		t.Run(name, func(t *testing.T) {
			_, err := f.gate.Submit(ctx, req)
			require.Error(t, err)
			assert.True(t, errors.HasReason(err, errors.ReasonInvalidAttempt), "got: %v", err)
		})
	}
}

func TestService_OpenRejectsUnknownQuiz(t *testing.T) {
	t.Parallel()

	f := makeFixture(t)

	_, err := f.gate.Open(context.Background(), gate.OpenRequest{UserID: "u1", QuizID: "nope"})
	require.Error(t, err)
	assert.True(t, errors.HasReason(err, errors.ReasonInvalidAttempt))
}

func TestService_ScoringFailureParksAttemptAndReconcileRecovers(t *testing.T) {
	t.Parallel()

	f := makeFixture(t, domain.Badge{
		BadgeID: "first-quiz",
		Name:    "First Quiz",
		Rule:    domain.BadgeRule{Kind: domain.RuleSourceCount, Source: domain.SourceQuiz, Count: 1},
	})
	ctx := context.Background()

	att, err := f.gate.Open(ctx, gate.OpenRequest{UserID: "u1", QuizID: "quiz-1"})
	require.NoError(t, err)

	f.quizzes.RemoveAnswerKey("quiz-1")

	_, err = f.gate.Submit(ctx, gate.SubmitRequest{
		UserID: "u1", QuizID: "quiz-1", AttemptToken: att.AttemptToken, Answers: allCorrect(),
	})
	require.Error(t, err)
	assert.True(t, errors.HasReason(err, errors.ReasonScoringFailure))

	// No partial award while unscored.
	total, err := f.ledger.Total(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, total)

	// Key restored: reconciliation scores the claimed attempt exactly once.
	f.quizzes.AddQuiz(
		domain.Quiz{QuizID: "quiz-1", Title: "Basics", Difficulty: domain.DifficultyEasy},
		domain.AnswerKey{QuizID: "quiz-1", Correct: map[string]int{"q1": 0, "q2": 1, "q3": 2}},
	)

	n, err := f.gate.Reconcile(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	total, err = f.ledger.Total(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), total)

	// A second pass finds nothing to do.
	n, err = f.gate.Reconcile(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}
