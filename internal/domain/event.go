package domain

const (
	EventNamePointsAppended     = "points.appended"
	EventNameBadgeAwarded       = "badge.awarded"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventPointsAppended struct {
	Event PointsEvent
}

func (EventPointsAppended) Name() string { return EventNamePointsAppended }

type EventBadgeAwarded struct {
	Badge UserBadge
}

func (EventBadgeAwarded) Name() string { return EventNameBadgeAwarded }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
