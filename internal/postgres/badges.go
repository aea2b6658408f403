package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BlockAce01/Examind-sub001/internal/domain"
)

// BadgeStore is the durable badge.Store. Rules are stored as JSON so new
// badges are rows, not deployments; the (user_id, badge_id) primary key makes
// awards insert-once even under concurrent evaluation.
type BadgeStore struct {
	db *pgxpool.Pool
}

func NewBadgeStore(db *pgxpool.Pool) *BadgeStore {
	return &BadgeStore{db: db}
}

func (s *BadgeStore) ListBadges(ctx context.Context) ([]domain.Badge, error) {
	const stmt = `
SELECT badge_id, name, rule
FROM badges
ORDER BY position;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Badge, error) {
		var (
			b   domain.Badge
			raw []byte
		)
		if err := r.Scan(&b.BadgeID, &b.Name, &raw); err != nil {
			return domain.Badge{}, err
		}

		rule, err := domain.ParseRule(raw)
		if err != nil {
			return domain.Badge{}, err
		}
		b.Rule = rule

		return b, nil
	})
}

func (s *BadgeStore) ListUserBadges(ctx context.Context, userID string) ([]domain.UserBadge, error) {
	const stmt = `
SELECT ub.user_id, ub.badge_id, ub.awarded_at
FROM user_badges ub
JOIN badges b ON b.badge_id = ub.badge_id
WHERE ub.user_id = $1
ORDER BY b.position;`

	rows, err := s.db.Query(ctx, stmt, userID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.UserBadge, error) {
		var ub domain.UserBadge
		err := r.Scan(&ub.UserID, &ub.BadgeID, &ub.AwardedAt)
		return ub, err
	})
}

func (s *BadgeStore) AwardBadge(ctx context.Context, ub domain.UserBadge) (bool, error) {
	const stmt = `
INSERT INTO user_badges (user_id, badge_id, awarded_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, badge_id) DO NOTHING;`

	tag, err := s.db.Exec(ctx, stmt, ub.UserID, ub.BadgeID, ub.AwardedAt)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}
