package memory

import (
	"context"
	"sync"

	"github.com/BlockAce01/Examind-sub001/internal/domain"
)

// BadgeStore is an in-memory badge.Store. Badge definitions keep their
// insertion order; awards are insert-once.
type BadgeStore struct {
	mu      sync.Mutex
	badges  []domain.Badge
	awarded map[awardKey]domain.UserBadge
}

type awardKey struct {
	userID  string
	badgeID string
}

func NewBadgeStore(badges ...domain.Badge) *BadgeStore {
	return &BadgeStore{
		badges:  badges,
		awarded: make(map[awardKey]domain.UserBadge),
	}
}

// AddBadge appends a badge definition. Definitions are reference data; this
// exists for test setup and seeding, not for runtime mutation.
func (s *BadgeStore) AddBadge(b domain.Badge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badges = append(s.badges, b)
}

func (s *BadgeStore) ListBadges(_ context.Context) ([]domain.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Badge, len(s.badges))
	copy(out, s.badges)
	return out, nil
}

func (s *BadgeStore) ListUserBadges(_ context.Context, userID string) ([]domain.UserBadge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.UserBadge
	for _, b := range s.badges {
		if ub, ok := s.awarded[awardKey{userID: userID, badgeID: b.BadgeID}]; ok {
			out = append(out, ub)
		}
	}
	return out, nil
}

func (s *BadgeStore) AwardBadge(_ context.Context, ub domain.UserBadge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := awardKey{userID: ub.UserID, badgeID: ub.BadgeID}
	if _, ok := s.awarded[key]; ok {
		return false, nil
	}

	s.awarded[key] = ub
	return true, nil
}
