package view

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BlockAce01/Examind-sub001/internal/badge"
	"github.com/BlockAce01/Examind-sub001/internal/domain"
	"github.com/BlockAce01/Examind-sub001/internal/event"
	"github.com/BlockAce01/Examind-sub001/internal/ledger"
)

const (
	publishInterval = 200 * time.Millisecond
	publishTopN     = 50
)

type Config struct {
	EventBus *event.Bus
	Ledger   *ledger.Service
	Badges   badge.Store
	// Redis mirrors totals into a sorted set and throttles leaderboard
	// publishes. Optional: when nil, reads still work and publishes are skipped.
	Redis  redis.UniversalClient
	Prefix string
}

// Service is the read model shared by dashboard, profile and leaderboard.
// Every total it reports is a reduction over the points ledger; the redis
// sorted set only feeds the push notification channel, never a read surface.
type Service struct {
	eb     *event.Bus
	ledger *ledger.Service
	badges badge.Store
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		ledger: c.Ledger,
		badges: c.Badges,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNamePointsAppended, func(ctx context.Context, e event.Event) error {
		return s.onPointsAppended(ctx, e.(domain.EventPointsAppended))
	})

	return s
}

// Snapshot returns the user's current points total, quiz completion count and
// badge set. All presentation surfaces call this; none keeps its own counter.
func (s *Service) Snapshot(ctx context.Context, userID string) (*domain.Snapshot, error) {
	agg, err := s.ledger.Aggregate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("view: aggregate: %w", err)
	}

	badges, err := s.badges.ListUserBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("view: list badges: %w", err)
	}

	return &domain.Snapshot{
		UserID:          userID,
		PointsTotal:     agg.PointsTotal,
		QuizCompletions: agg.EventsBySource[domain.SourceQuiz],
		Badges:          badges,
	}, nil
}

// Ranked returns the leaderboard. Ordering is deterministic: totals descending,
// ties broken by earliest account creation then user ID, so two back-to-back
// reads of the same ledger state always agree.
func (s *Service) Ranked(ctx context.Context, limit int) (*domain.Leaderboard, error) {
	entries, err := s.ledger.Ranked(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("view: ranked: %w", err)
	}

	return &domain.Leaderboard{
		Entries:    entries,
		UpdateTime: time.Now().UTC(),
	}, nil
}

// onPointsAppended mirrors the user's new total into the redis sorted set and
// schedules a throttled leaderboard publish.
func (s *Service) onPointsAppended(ctx context.Context, e domain.EventPointsAppended) error {
	if s.redis == nil {
		return nil
	}

	total, err := s.ledger.Total(ctx, e.Event.UserID)
	if err != nil {
		return fmt.Errorf("view: total after append: %w", err)
	}

	if err := s.redis.ZAdd(ctx, s.leaderboardKey(), redis.Z{
		Score:  float64(total),
		Member: e.Event.UserID,
	}).Err(); err != nil {
		return fmt.Errorf("view: mirror total: %w", err)
	}

	return s.schedulePublish(ctx, e.Event.CreateTime)
}

// schedulePublish publishes leaderboard changes at most once per interval.
// Many appends land in a short window during a quiz; collapsing them keeps the
// fan-out cheap without ever dropping the final state.
func (s *Service) schedulePublish(ctx context.Context, at time.Time) error {
	ok, err := s.redis.SetNX(ctx, s.throttleKey(), at.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("view: setnx: %w", err)
	}

	if !ok {
		return nil
	}

	l, err := s.Ranked(ctx, publishTopN)
	if err != nil {
		return err
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{Leaderboard: *l})

	return s.redis.Set(ctx, s.throttleKey(), at.UnixMilli(), publishInterval).Err()
}

func (s *Service) leaderboardKey() string {
	return fmt.Sprintf("%s:leaderboard", s.prefix)
}

func (s *Service) throttleKey() string {
	return fmt.Sprintf("%s:leaderboard:time", s.prefix)
}
