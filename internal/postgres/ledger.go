package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BlockAce01/Examind-sub001/internal/domain"
)

// LedgerStore is the durable ledger.Store. The unique constraint on
// (source_type, source_id) is the idempotence guarantee; totals are SQL
// reductions, never stored counters.
type LedgerStore struct {
	db *pgxpool.Pool
}

func NewLedgerStore(db *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) AppendEvent(ctx context.Context, e domain.PointsEvent) (domain.PointsEvent, bool, error) {
	const insStmt = `
INSERT INTO points_events (event_id, user_id, source_type, source_id, points_delta, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (source_type, source_id) DO NOTHING;`

	tag, err := s.db.Exec(ctx, insStmt, e.EventID, e.UserID, e.Source, e.SourceID, e.PointsDelta, e.CreateTime)
	if err != nil {
		return domain.PointsEvent{}, false, err
	}

	if tag.RowsAffected() > 0 {
		return e, true, nil
	}

	// Re-delivery: return the original event.
	const selStmt = `
SELECT event_id, user_id, source_type, source_id, points_delta, created_at
FROM points_events
WHERE source_type = $1 AND source_id = $2;`

	var stored domain.PointsEvent
	err = s.db.QueryRow(ctx, selStmt, e.Source, e.SourceID).
		Scan(&stored.EventID, &stored.UserID, &stored.Source, &stored.SourceID, &stored.PointsDelta, &stored.CreateTime)
	if err != nil {
		return domain.PointsEvent{}, false, err
	}

	return stored, false, nil
}

func (s *LedgerStore) SumPoints(ctx context.Context, userID string) (int64, error) {
	const stmt = `
SELECT COALESCE(SUM(points_delta), 0)
FROM points_events
WHERE user_id = $1;`

	var total int64
	err := s.db.QueryRow(ctx, stmt, userID).Scan(&total)
	return total, err
}

func (s *LedgerStore) CountEventsBySource(ctx context.Context, userID string) (map[domain.SourceType]int64, error) {
	const stmt = `
SELECT source_type, COUNT(*)
FROM points_events
WHERE user_id = $1
GROUP BY source_type;`

	rows, err := s.db.Query(ctx, stmt, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.SourceType]int64)
	for rows.Next() {
		var (
			source domain.SourceType
			n      int64
		)
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		counts[source] = n
	}

	return counts, rows.Err()
}

// RankedTotals orders users by total descending, ties broken by earliest
// account creation then user ID, so repeated reads of the same ledger state
// always rank identically.
func (s *LedgerStore) RankedTotals(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	const stmt = `
SELECT e.user_id, SUM(e.points_delta) AS total
FROM points_events e
LEFT JOIN users u ON u.user_id = e.user_id
GROUP BY e.user_id, u.created_at
ORDER BY total DESC, u.created_at ASC NULLS LAST, e.user_id ASC
LIMIT $1;`

	rows, err := s.db.Query(ctx, stmt, limit)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.LeaderboardEntry, error) {
		var entry domain.LeaderboardEntry
		err := r.Scan(&entry.UserID, &entry.PointsTotal)
		return entry, err
	})
}
