package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlockAce01/Examind-sub001/internal/domain"
	"github.com/BlockAce01/Examind-sub001/internal/scoring"
)

func TestEngine_Score(t *testing.T) {
	key := &domain.AnswerKey{
		QuizID: "quiz-1",
		Correct: map[string]int{
			"q1": 0,
			"q2": 2,
			"q3": 1,
		},
	}

	tests := map[string]struct {
		answers    domain.AnswerSet
		difficulty domain.Difficulty
		want       domain.ScoreResult
		unknown    []string
	}{
		"all correct on an easy quiz awards base points per question": {
			answers: domain.AnswerSet{
				{QuestionID: "q1", SelectedOption: 0},
				{QuestionID: "q2", SelectedOption: 2},
				{QuestionID: "q3", SelectedOption: 1},
			},
			difficulty: domain.DifficultyEasy,
			want:       domain.ScoreResult{CorrectCount: 3, TotalCount: 3, PointsAwarded: 30},
		},

		"unanswered questions count as incorrect": {
			answers: domain.AnswerSet{
				{QuestionID: "q1", SelectedOption: 0},
			},
			difficulty: domain.DifficultyEasy,
			want:       domain.ScoreResult{CorrectCount: 1, TotalCount: 3, PointsAwarded: 10},
		},

		"empty answer set scores zero without error": {
			answers:    nil,
			difficulty: domain.DifficultyEasy,
			want:       domain.ScoreResult{CorrectCount: 0, TotalCount: 3, PointsAwarded: 0},
		},

		"unknown question IDs are ignored but reported for audit": {
			answers: domain.AnswerSet{
				{QuestionID: "q1", SelectedOption: 0},
				{QuestionID: "ghost", SelectedOption: 1},
			},
			difficulty: domain.DifficultyEasy,
			want:       domain.ScoreResult{CorrectCount: 1, TotalCount: 3, PointsAwarded: 10},
			unknown:    []string{"ghost"},
		},

		"last answer wins when a question is answered twice": {
			answers: domain.AnswerSet{
				{QuestionID: "q1", SelectedOption: 1},
				{QuestionID: "q1", SelectedOption: 0},
			},
			difficulty: domain.DifficultyEasy,
			want:       domain.ScoreResult{CorrectCount: 1, TotalCount: 3, PointsAwarded: 10},
		},

		"medium difficulty scales points by its weight": {
			answers: domain.AnswerSet{
				{QuestionID: "q1", SelectedOption: 0},
				{QuestionID: "q2", SelectedOption: 2},
			},
			difficulty: domain.DifficultyMedium,
			want:       domain.ScoreResult{CorrectCount: 2, TotalCount: 3, PointsAwarded: 30},
		},

		"hard difficulty doubles the base points": {
			answers: domain.AnswerSet{
				{QuestionID: "q3", SelectedOption: 1},
			},
			difficulty: domain.DifficultyHard,
			want:       domain.ScoreResult{CorrectCount: 1, TotalCount: 3, PointsAwarded: 20},
		},
	}

	e, err := scoring.NewEngine(scoring.DefaultWeights())
	require.NoError(t, err)

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, unknown := e.Score(tt.answers, key, tt.difficulty)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.unknown, unknown)
		})
	}
}

func TestEngine_ScoreIsDeterministic(t *testing.T) {
	t.Parallel()

	e, err := scoring.NewEngine(scoring.DefaultWeights())
	require.NoError(t, err)

	key := &domain.AnswerKey{
		QuizID:  "quiz-1",
		Correct: map[string]int{"q1": 0, "q2": 1, "q3": 2, "q4": 3},
	}
	answers := domain.AnswerSet{
		{QuestionID: "q1", SelectedOption: 0},
		{QuestionID: "q2", SelectedOption: 1},
		{QuestionID: "q4", SelectedOption: 0},
	}

	first, _ := e.Score(answers, key, domain.DifficultyMedium)
	for i := 0; i < 100; i++ {
		got, _ := e.Score(answers, key, domain.DifficultyMedium)
		require.Equal(t, first, got)
	}
}

func TestEngine_PointsAreMonotonic(t *testing.T) {
	t.Parallel()

	e, err := scoring.NewEngine(scoring.Weights{
		BasePoints: "7",
		Difficulty: map[string]string{string(domain.DifficultyHard): "1.3"},
	})
	require.NoError(t, err)

	key := &domain.AnswerKey{
		QuizID:  "quiz-1",
		Correct: map[string]int{"q1": 0, "q2": 0, "q3": 0, "q4": 0, "q5": 0},
	}

	var prev int64 = -1
	answers := domain.AnswerSet{}
	for _, q := range []string{"q1", "q2", "q3", "q4", "q5"} {
		answers = append(answers, domain.Answer{QuestionID: q, SelectedOption: 0})
		got, _ := e.Score(answers, key, domain.DifficultyHard)
		require.Greater(t, got.PointsAwarded, prev, "more correct answers must never award fewer points")
		prev = got.PointsAwarded
	}
}

func TestEngine_UnknownDifficultyFallsBackToUnitWeight(t *testing.T) {
	t.Parallel()

	e, err := scoring.NewEngine(scoring.DefaultWeights())
	require.NoError(t, err)

	key := &domain.AnswerKey{QuizID: "quiz-1", Correct: map[string]int{"q1": 0}}
	got, _ := e.Score(domain.AnswerSet{{QuestionID: "q1", SelectedOption: 0}}, key, domain.Difficulty("weird"))
	assert.Equal(t, int64(10), got.PointsAwarded)
}
