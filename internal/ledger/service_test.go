package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlockAce01/Examind-sub001/internal/domain"
	"github.com/BlockAce01/Examind-sub001/internal/event"
	"github.com/BlockAce01/Examind-sub001/internal/ledger"
	"github.com/BlockAce01/Examind-sub001/internal/memory"
)

func makeService(t *testing.T, opts ...option) *ledger.Service {
	t.Helper()

	c := ledger.Config{
		EventBus: event.NewBus(),
		Store:    memory.NewLedgerStore(),
	}

	for _, opt := range opts {
		opt(&c)
	}

	t.Cleanup(c.EventBus.Stop)

	return ledger.NewService(c)
}

type option func(*ledger.Config)

func withEventBus(eb *event.Bus) option {
	return func(c *ledger.Config) { c.EventBus = eb }
}

func TestService_TotalIsSumOfAppendedDeltas(t *testing.T) {
	t.Parallel()

	s := makeService(t)
	ctx := context.Background()

	deltas := []int64{30, 5, 0, 15}
	for i, d := range deltas {
		_, err := s.Append(ctx, ledger.AppendRequest{
			UserID:      "u1",
			Source:      domain.SourceQuiz,
			SourceID:    fmt.Sprintf("attempt-%d", i),
			PointsDelta: d,
		})
		require.NoError(t, err)

		total, err := s.Total(ctx, "u1")
		require.NoError(t, err)

		var want int64
		for _, dd := range deltas[:i+1] {
			want += dd
		}
		assert.Equal(t, want, total, "total must equal the reduction at every observation point")
	}
}

func TestService_AppendIsIdempotentPerSource(t *testing.T) {
	t.Parallel()

	s := makeService(t)
	ctx := context.Background()

	first, err := s.Append(ctx, ledger.AppendRequest{
		UserID:      "u1",
		Source:      domain.SourceQuiz,
		SourceID:    "attempt-1",
		PointsDelta: 30,
	})
	require.NoError(t, err)

	// Re-delivery after a timed-out response: same source, silently resolved.
	second, err := s.Append(ctx, ledger.AppendRequest{
		UserID:      "u1",
		Source:      domain.SourceQuiz,
		SourceID:    "attempt-1",
		PointsDelta: 30,
	})
	require.NoError(t, err)

	assert.Equal(t, first.EventID, second.EventID, "re-delivery returns the original event")

	total, err := s.Total(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), total, "no double-counting")
}

func TestService_AppendPublishesOnlyOnInsert(t *testing.T) {
	t.Parallel()

	eb := event.NewBus()

	var (
		mu        sync.Mutex
		published []domain.PointsEvent
	)
	eb.Subscribe(domain.EventNamePointsAppended, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		published = append(published, e.(domain.EventPointsAppended).Event)
		mu.Unlock()
		return nil
	})

	s := makeService(t, withEventBus(eb))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, ledger.AppendRequest{
			UserID:      "u1",
			Source:      domain.SourceDiscussion,
			SourceID:    "post-7",
			PointsDelta: 5,
		})
		require.NoError(t, err)
	}

	eb.Stop()

	assert.Len(t, published, 1, "duplicates must not re-trigger downstream consumers")
}

func TestService_ConcurrentAppendsAllCountExactlyOnce(t *testing.T) {
	t.Parallel()

	const (
		workers = 10
		retries = 3
	)

	s := makeService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each worker re-delivers its own event several times.
			for r := 0; r < retries; r++ {
				_, err := s.Append(ctx, ledger.AppendRequest{
					UserID:      "u1",
					Source:      domain.SourceQuiz,
					SourceID:    fmt.Sprintf("attempt-%d", i),
					PointsDelta: 10,
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	total, err := s.Total(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*10), total, "each source contributes its delta exactly once")
}

func TestService_AppendRejectsIncompleteRequests(t *testing.T) {
	t.Parallel()

	s := makeService(t)
	ctx := context.Background()

	for name, req := range map[string]ledger.AppendRequest{
		"missing user":      {Source: domain.SourceQuiz, SourceID: "a1"},
		"missing source":    {UserID: "u1", SourceID: "a1"},
		"missing source id": {UserID: "u1", Source: domain.SourceQuiz},
	} {
		req := req
		t.Run(name, func(t *testing.T) {
			_, err := s.Append(ctx, req)
			assert.Error(t, err)
		})
	}
}

func TestService_RankedOrdersByTotalWithDeterministicTies(t *testing.T) {
	t.Parallel()

	s := makeService(t)
	ctx := context.Background()

	// u1 appears first, then u2 ties u1, u3 leads.
	appends := []ledger.AppendRequest{
		{UserID: "u1", Source: domain.SourceQuiz, SourceID: "a1", PointsDelta: 20},
		{UserID: "u2", Source: domain.SourceQuiz, SourceID: "a2", PointsDelta: 20},
		{UserID: "u3", Source: domain.SourceQuiz, SourceID: "a3", PointsDelta: 50},
	}
	for _, req := range appends {
		_, err := s.Append(ctx, req)
		require.NoError(t, err)
	}

	want := []string{"u3", "u1", "u2"}
	for i := 0; i < 10; i++ {
		entries, err := s.Ranked(ctx, 10)
		require.NoError(t, err)

		got := make([]string, 0, len(entries))
		for _, e := range entries {
			got = append(got, e.UserID)
		}
		require.Equal(t, want, got, "ties must rank identically on every read")
		require.Equal(t, 1, entries[0].Rank)
		require.Equal(t, int64(50), entries[0].PointsTotal)
	}
}
