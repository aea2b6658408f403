package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/BlockAce01/Examind-sub001/internal/domain"
)

// LedgerStore is an in-memory ledger.Store. Events are held append-only; every
// read is a reduction over the slice, same as the SQL implementation.
type LedgerStore struct {
	mu     sync.Mutex
	events []domain.PointsEvent
	// bySource indexes events by their idempotency key.
	bySource map[sourceKey]int
	// firstSeen records each user's earliest event time, the leaderboard
	// tie-break key. The postgres store uses users.created_at instead.
	firstSeen map[string]int
}

type sourceKey struct {
	source   domain.SourceType
	sourceID string
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		bySource:  make(map[sourceKey]int),
		firstSeen: make(map[string]int),
	}
}

func (s *LedgerStore) AppendEvent(_ context.Context, e domain.PointsEvent) (domain.PointsEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sourceKey{source: e.Source, sourceID: e.SourceID}
	if i, ok := s.bySource[key]; ok {
		return s.events[i], false, nil
	}

	s.bySource[key] = len(s.events)
	if _, ok := s.firstSeen[e.UserID]; !ok {
		s.firstSeen[e.UserID] = len(s.events)
	}
	s.events = append(s.events, e)

	return e, true, nil
}

func (s *LedgerStore) SumPoints(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, e := range s.events {
		if e.UserID == userID {
			total += e.PointsDelta
		}
	}

	return total, nil
}

func (s *LedgerStore) CountEventsBySource(_ context.Context, userID string) (map[domain.SourceType]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[domain.SourceType]int64)
	for _, e := range s.events {
		if e.UserID == userID {
			counts[e.Source]++
		}
	}

	return counts, nil
}

func (s *LedgerStore) RankedTotals(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := make(map[string]int64)
	for _, e := range s.events {
		totals[e.UserID] += e.PointsDelta
	}

	entries := make([]domain.LeaderboardEntry, 0, len(totals))
	for userID, total := range totals {
		entries = append(entries, domain.LeaderboardEntry{UserID: userID, PointsTotal: total})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].PointsTotal != entries[j].PointsTotal {
			return entries[i].PointsTotal > entries[j].PointsTotal
		}
		fi, fj := s.firstSeen[entries[i].UserID], s.firstSeen[entries[j].UserID]
		if fi != fj {
			return fi < fj
		}
		return entries[i].UserID < entries[j].UserID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	return entries, nil
}
