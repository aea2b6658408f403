package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BlockAce01/Examind-sub001/internal/domain"
)

const maxConcurrentPublishes = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	LeaderboardData struct {
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		Rank        int    `json:"rank"`
		UserID      string `json:"user_id"`
		PointsTotal int64  `json:"points_total"`
	}

	BadgeData struct {
		BadgeID   string `json:"badge_id"`
		AwardedAt string `json:"awarded_at"`
	}
)

// publishLeaderboardUpdated pushes the new standings to every ranked user's
// notification channel so open dashboards refresh without polling.
func (a *API) publishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	if a.redis == nil {
		return nil
	}

	data := LeaderboardData{
		Entries: make([]LeaderboardEntry, 0, len(e.Leaderboard.Entries)),
	}
	for _, entry := range e.Leaderboard.Entries {
		data.Entries = append(data.Entries, LeaderboardEntry{
			Rank:        entry.Rank,
			UserID:      entry.UserID,
			PointsTotal: entry.PointsTotal,
		})
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrentPublishes)

	for _, entry := range data.Entries {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.UserID, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishBadgeAwarded(ctx context.Context, e domain.EventBadgeAwarded) error {
	if a.redis == nil {
		return nil
	}

	return a.publishNotification(ctx, e.Badge.UserID, e.Name(), BadgeData{
		BadgeID:   e.Badge.BadgeID,
		AwardedAt: e.Badge.AwardedAt.UTC().Format(time.RFC3339),
	})
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:user:%s", a.prefix, user), b).Err()
}
