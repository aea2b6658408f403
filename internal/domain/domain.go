package domain

import (
	"time"
)

// Difficulty scales the points awarded per correct answer.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// AttemptState is the lifecycle state of a quiz attempt.
type AttemptState string

const (
	// AttemptOpen means the student opened the quiz but has not submitted.
	AttemptOpen AttemptState = "open"
	// AttemptSubmitted means the attempt holds the submission claim.
	AttemptSubmitted AttemptState = "submitted"
	// AttemptSubmittedUnscored means the claim succeeded but scoring failed after
	// retries. Such attempts are picked up by reconciliation.
	AttemptSubmittedUnscored AttemptState = "submitted_unscored"
)

// Quiz is the reference data the engine needs about a quiz. Authoring is external.
type Quiz struct {
	QuizID     string
	Title      string
	Difficulty Difficulty
	// AllowRetake permits multiple submitted attempts per user. The claim is then
	// per attempt token instead of per (user, quiz).
	AllowRetake bool
}

// AnswerKey maps each question of a quiz to the index of its correct option.
// Immutable once the quiz is published.
type AnswerKey struct {
	QuizID  string
	Correct map[string]int
}

// TotalCount is the number of questions in the quiz.
func (k *AnswerKey) TotalCount() int { return len(k.Correct) }

// Answer is one selected option for one question.
type Answer struct {
	QuestionID     string `json:"question_id"`
	SelectedOption int    `json:"selected_option"`
}

// AnswerSet is the ordered sequence of answers submitted with an attempt.
// If a question appears more than once, the last entry wins.
type AnswerSet []Answer

// Equal reports whether two answer sets are the same submission.
func (a AnswerSet) Equal(b AnswerSet) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ScoreResult is the outcome of scoring one accepted attempt. Computed once,
// never recomputed for an already-scored attempt.
type ScoreResult struct {
	CorrectCount  int
	TotalCount    int
	PointsAwarded int64
}

// QuizAttempt tracks one instance of a student opening a quiz. The attempt
// token is the idempotency key for submission.
type QuizAttempt struct {
	AttemptToken string
	UserID       string
	QuizID       string
	// Retake is copied from the quiz at open time so the claim constraint can be
	// evaluated on the attempt row alone.
	Retake      bool
	State       AttemptState
	Answers     AnswerSet
	Score       *ScoreResult
	OpenedAt    time.Time
	SubmittedAt time.Time
}

// SourceType identifies the kind of activity that earned points.
type SourceType string

const (
	SourceQuiz       SourceType = "quiz"
	SourceDiscussion SourceType = "discussion"
)

// PointsEvent is one immutable entry of the points ledger. A user's total is
// always the sum of their events, never a separately mutated counter.
type PointsEvent struct {
	EventID     string
	UserID      string
	Source      SourceType
	SourceID    string
	PointsDelta int64
	CreateTime  time.Time
}

// UserBadge records that a user earned a badge. Insert-once, never revoked.
type UserBadge struct {
	UserID    string
	BadgeID   string
	AwardedAt time.Time
}

// Snapshot is the single read model shared by dashboard, profile and
// leaderboard surfaces.
type Snapshot struct {
	UserID          string
	PointsTotal     int64
	QuizCompletions int64
	Badges          []UserBadge
}

// Leaderboard is the ranked list of users by points total. Ties are broken by
// earliest first activity, then user ID, so repeated reads of the same state
// always produce the same ordering.
type Leaderboard struct {
	Entries    []LeaderboardEntry
	UpdateTime time.Time
}

type LeaderboardEntry struct {
	Rank        int
	UserID      string
	PointsTotal int64
}
