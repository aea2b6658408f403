package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BlockAce01/Examind-sub001/internal/domain"
	"github.com/BlockAce01/Examind-sub001/internal/errors"
	"github.com/BlockAce01/Examind-sub001/internal/event"
)

// Store persists points events. Implementations must enforce uniqueness of
// (source, source_id): AppendEvent either inserts the event and returns it with
// inserted=true, or returns the previously stored event for the same source
// with inserted=false. It never inserts a second event for the same source.
type Store interface {
	AppendEvent(ctx context.Context, e domain.PointsEvent) (domain.PointsEvent, bool, error)
	SumPoints(ctx context.Context, userID string) (int64, error)
	CountEventsBySource(ctx context.Context, userID string) (map[domain.SourceType]int64, error)
	RankedTotals(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

type Config struct {
	EventBus *event.Bus
	Store    Store
}

// Service is the append-only points ledger. Totals are always reductions over
// stored events; there is no per-user counter to race on.
type Service struct {
	eb    *event.Bus
	store Store
}

func NewService(c Config) *Service {
	return &Service{
		eb:    c.EventBus,
		store: c.Store,
	}
}

type AppendRequest struct {
	UserID      string
	Source      domain.SourceType
	SourceID    string
	PointsDelta int64
}

// Append records a point-earning event. It is idempotent keyed by
// (Source, SourceID): re-delivery of an already-appended event returns the
// original entry without double-counting and without error.
func (s *Service) Append(ctx context.Context, req AppendRequest) (domain.PointsEvent, error) {
	if req.UserID == "" || req.Source == "" || req.SourceID == "" {
		return domain.PointsEvent{}, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("ledger: user, source and source id are required"))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.PointsEvent{}, fmt.Errorf("generate event ID: %w", err)
	}

	e := domain.PointsEvent{
		EventID:     id.String(),
		UserID:      req.UserID,
		Source:      req.Source,
		SourceID:    req.SourceID,
		PointsDelta: req.PointsDelta,
		CreateTime:  time.Now().UTC(),
	}

	stored, inserted, err := s.store.AppendEvent(ctx, e)
	if err != nil {
		return domain.PointsEvent{}, fmt.Errorf("append event: %w", err)
	}

	if !inserted {
		// Idempotent re-delivery. Resolved silently, not surfaced as an error.
		slog.InfoContext(ctx, "ledger: duplicate append ignored",
			"source", stored.Source,
			"source_id", stored.SourceID,
		)
		return stored, nil
	}

	s.eb.Publish(ctx, domain.EventPointsAppended{Event: stored})

	return stored, nil
}

// Total reduces the user's events to their current points total.
func (s *Service) Total(ctx context.Context, userID string) (int64, error) {
	return s.store.SumPoints(ctx, userID)
}

// Aggregate returns the user state badge rules are evaluated against.
func (s *Service) Aggregate(ctx context.Context, userID string) (domain.Aggregate, error) {
	total, err := s.store.SumPoints(ctx, userID)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("sum points: %w", err)
	}

	counts, err := s.store.CountEventsBySource(ctx, userID)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("count events: %w", err)
	}

	return domain.Aggregate{
		PointsTotal:    total,
		EventsBySource: counts,
	}, nil
}

// Ranked returns up to limit users ordered by points total descending.
// The ordering is fully deterministic for a given ledger state.
func (s *Service) Ranked(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	entries, err := s.store.RankedTotals(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("ranked totals: %w", err)
	}

	for i := range entries {
		entries[i].Rank = i + 1
	}

	return entries, nil
}
