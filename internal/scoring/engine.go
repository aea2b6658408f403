package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/BlockAce01/Examind-sub001/internal/domain"
)

// Weights configures the points formula. The formula itself is fixed:
//
//	points = round(BasePoints * weight(difficulty) * correctCount)
//
// which is monotonic in the number of correct answers. The base and the
// per-difficulty weights are deployment configuration.
type Weights struct {
	// BasePoints per correct answer, e.g. "10".
	BasePoints string
	// Difficulty multipliers, e.g. easy "1", medium "1.5", hard "2".
	Difficulty map[string]string
}

// DefaultWeights awards 10 points per correct answer on an easy quiz.
func DefaultWeights() Weights {
	return Weights{
		BasePoints: "10",
		Difficulty: map[string]string{
			string(domain.DifficultyEasy):   "1",
			string(domain.DifficultyMedium): "1.5",
			string(domain.DifficultyHard):   "2",
		},
	}
}

// Engine computes scores from answer sets and answer keys. It is pure: no
// clock, no storage, identical inputs always produce identical results.
type Engine struct {
	base    decimal.Decimal
	weights map[domain.Difficulty]decimal.Decimal
}

func NewEngine(w Weights) (*Engine, error) {
	base, err := decimal.NewFromString(w.BasePoints)
	if err != nil {
		return nil, err
	}

	weights := make(map[domain.Difficulty]decimal.Decimal, len(w.Difficulty))
	for d, raw := range w.Difficulty {
		dec, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, err
		}
		weights[domain.Difficulty(d)] = dec
	}

	return &Engine{base: base, weights: weights}, nil
}

// Score grades the answer set against the key. Unanswered questions count as
// incorrect. Answers referencing questions not in the key do not affect the
// score; they are returned as the audit slice so callers can log them.
// If a question is answered more than once the last answer wins.
func (e *Engine) Score(answers domain.AnswerSet, key *domain.AnswerKey, difficulty domain.Difficulty) (domain.ScoreResult, []string) {
	selected := make(map[string]int, len(answers))
	var unknown []string
	for _, a := range answers {
		if _, ok := key.Correct[a.QuestionID]; !ok {
			unknown = append(unknown, a.QuestionID)
			continue
		}
		selected[a.QuestionID] = a.SelectedOption
	}

	correct := 0
	for q, want := range key.Correct {
		if got, ok := selected[q]; ok && got == want {
			correct++
		}
	}

	return domain.ScoreResult{
		CorrectCount:  correct,
		TotalCount:    key.TotalCount(),
		PointsAwarded: e.points(correct, difficulty),
	}, unknown
}

func (e *Engine) points(correct int, difficulty domain.Difficulty) int64 {
	w, ok := e.weights[difficulty]
	if !ok {
		w = decimal.NewFromInt(1)
	}

	return e.base.
		Mul(w).
		Mul(decimal.NewFromInt(int64(correct))).
		Round(0).
		IntPart()
}
