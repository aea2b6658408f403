package badge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BlockAce01/Examind-sub001/internal/domain"
	"github.com/BlockAce01/Examind-sub001/internal/event"
	"github.com/BlockAce01/Examind-sub001/internal/ledger"
)

// Store persists badge definitions and awards. AwardBadge must be insert-once:
// it returns false when the user already holds the badge, and must never create
// a second row for the same (user, badge) even under concurrent evaluation.
type Store interface {
	ListBadges(ctx context.Context) ([]domain.Badge, error)
	ListUserBadges(ctx context.Context, userID string) ([]domain.UserBadge, error)
	AwardBadge(ctx context.Context, ub domain.UserBadge) (bool, error)
}

type Config struct {
	EventBus *event.Bus
	Ledger   *ledger.Service
	Store    Store
}

// Evaluator awards badges whose rules the user's ledger aggregate satisfies.
// It subscribes to points.appended so non-quiz appends, which have no
// submission response to ride on, still trigger an evaluation.
type Evaluator struct {
	eb     *event.Bus
	ledger *ledger.Service
	store  Store
}

func NewEvaluator(c Config) *Evaluator {
	ev := &Evaluator{
		eb:     c.EventBus,
		ledger: c.Ledger,
		store:  c.Store,
	}

	ev.eb.Subscribe(domain.EventNamePointsAppended, func(ctx context.Context, e event.Event) error {
		pe := e.(domain.EventPointsAppended).Event
		if pe.Source == domain.SourceQuiz {
			// The submission path evaluates synchronously before responding,
			// so quiz events are already covered.
			return nil
		}
		_, err := ev.Evaluate(ctx, pe.UserID)
		return err
	})

	return ev
}

// Evaluate awards every badge the user now qualifies for and does not yet
// hold, in badge definition order, all in one pass. Re-running with no new
// qualifying state returns an empty list, so redundant calls (event re-delivery,
// manual admin trigger) are safe.
func (ev *Evaluator) Evaluate(ctx context.Context, userID string) ([]domain.UserBadge, error) {
	agg, err := ev.ledger.Aggregate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("badge: aggregate user state: %w", err)
	}

	badges, err := ev.store.ListBadges(ctx)
	if err != nil {
		return nil, fmt.Errorf("badge: list badges: %w", err)
	}

	held, err := ev.store.ListUserBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("badge: list user badges: %w", err)
	}

	owned := make(map[string]struct{}, len(held))
	for _, ub := range held {
		owned[ub.BadgeID] = struct{}{}
	}

	var awarded []domain.UserBadge
	for _, b := range badges {
		if _, ok := owned[b.BadgeID]; ok {
			continue
		}
		if !b.Rule.Satisfied(agg) {
			continue
		}

		ub := domain.UserBadge{
			UserID:    userID,
			BadgeID:   b.BadgeID,
			AwardedAt: time.Now().UTC(),
		}

		inserted, err := ev.store.AwardBadge(ctx, ub)
		if err != nil {
			return awarded, fmt.Errorf("badge: award %s: %w", b.BadgeID, err)
		}
		if !inserted {
			// A concurrent evaluation got there first. The badge exists exactly
			// once either way, so this pass simply does not report it.
			continue
		}

		slog.InfoContext(ctx, "badge: awarded",
			"user", userID,
			"badge", b.BadgeID,
		)

		awarded = append(awarded, ub)
		ev.eb.Publish(ctx, domain.EventBadgeAwarded{Badge: ub})
	}

	return awarded, nil
}
