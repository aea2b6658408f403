package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/BlockAce01/Examind-sub001/internal/badge"
	"github.com/BlockAce01/Examind-sub001/internal/domain"
	"github.com/BlockAce01/Examind-sub001/internal/errors"
	"github.com/BlockAce01/Examind-sub001/internal/event"
	"github.com/BlockAce01/Examind-sub001/internal/gate"
	"github.com/BlockAce01/Examind-sub001/internal/ledger"
	"github.com/BlockAce01/Examind-sub001/internal/telemetry"
	"github.com/BlockAce01/Examind-sub001/internal/view"
)

// userHeader carries the authenticated user ID. Token verification happens at
// the gateway; this engine only consumes the identity it supplies.
const userHeader = "X-User-ID"

const defaultRankedLimit = 50

type Config struct {
	Router       *gin.Engine
	EventBus     *event.Bus
	Gate         *gate.Service
	Ledger       *ledger.Service
	Badges       *badge.Evaluator
	View         *view.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	gate   *gate.Service
	ledger *ledger.Service
	badges *badge.Evaluator
	view   *view.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		gate:   c.Gate,
		ledger: c.Ledger,
		badges: c.Badges,
		view:   c.View,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	v1 := c.Router.Group("/api/v1")
	v1.POST("/quizzes/:id/attempts", a.openAttempt)
	v1.POST("/quizzes/:id/submit", a.submit)
	v1.GET("/users/:id/stats", a.userStats)
	v1.GET("/users/ranked", a.ranked)
	v1.POST("/badges/check/:userId", a.checkBadges)
	v1.POST("/points/events", a.appendPoints)

	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.publishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})
	c.EventBus.Subscribe(domain.EventNameBadgeAwarded, func(ctx context.Context, e event.Event) error {
		return a.publishBadgeAwarded(ctx, e.(domain.EventBadgeAwarded))
	})

	return a
}

func (a *API) openAttempt(c *gin.Context) {
	userID := c.GetHeader(userHeader)
	if userID == "" {
		renderError(c, errors.New(errors.CodeUnauthenticated))
		return
	}

	att, err := a.gate.Open(c.Request.Context(), gate.OpenRequest{
		UserID: userID,
		QuizID: c.Param("id"),
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"attempt_token": att.AttemptToken,
		"quiz_id":       att.QuizID,
		"opened_at":     att.OpenedAt.Format(time.RFC3339),
	})
}

type submitRequest struct {
	AttemptToken string           `json:"attempt_token" binding:"required"`
	Answers      domain.AnswerSet `json:"answers"`
}

type scoreSummary struct {
	CorrectCount  int   `json:"correct_count"`
	TotalCount    int   `json:"total_count"`
	PointsAwarded int64 `json:"points_awarded"`
}

func (a *API) submit(c *gin.Context) {
	userID := c.GetHeader(userHeader)
	if userID == "" {
		renderError(c, errors.New(errors.CodeUnauthenticated))
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	resp, err := a.gate.Submit(c.Request.Context(), gate.SubmitRequest{
		UserID:       userID,
		QuizID:       c.Param("id"),
		AttemptToken: req.AttemptToken,
		Answers:      req.Answers,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	newBadges := make([]string, 0, len(resp.NewBadges))
	for _, b := range resp.NewBadges {
		newBadges = append(newBadges, b.BadgeID)
	}

	c.JSON(http.StatusOK, gin.H{
		"score": scoreSummary{
			CorrectCount:  resp.Score.CorrectCount,
			TotalCount:    resp.Score.TotalCount,
			PointsAwarded: resp.Score.PointsAwarded,
		},
		"points_total": resp.PointsTotal,
		"new_badges":   newBadges,
		"replayed":     resp.Replayed,
	})
}

func (a *API) userStats(c *gin.Context) {
	snap, err := a.view.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	badges := make([]gin.H, 0, len(snap.Badges))
	for _, b := range snap.Badges {
		badges = append(badges, gin.H{
			"badge_id":   b.BadgeID,
			"awarded_at": b.AwardedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":          snap.UserID,
		"points_total":     snap.PointsTotal,
		"quiz_completions": snap.QuizCompletions,
		"badges":           badges,
	})
}

func (a *API) ranked(c *gin.Context) {
	limit := defaultRankedLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			renderError(c, errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("invalid limit %q", raw)))
			return
		}
		limit = n
	}

	l, err := a.view.Ranked(c.Request.Context(), limit)
	if err != nil {
		renderError(c, err)
		return
	}

	entries := make([]gin.H, 0, len(l.Entries))
	for _, e := range l.Entries {
		entries = append(entries, gin.H{
			"rank":         e.Rank,
			"user_id":      e.UserID,
			"points_total": e.PointsTotal,
		})
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// checkBadges re-runs badge evaluation for a user. Idempotent: with no new
// qualifying state it awards nothing.
func (a *API) checkBadges(c *gin.Context) {
	awarded, err := a.badges.Evaluate(c.Request.Context(), c.Param("userId"))
	if err != nil {
		renderError(c, err)
		return
	}

	ids := make([]string, 0, len(awarded))
	for _, b := range awarded {
		ids = append(ids, b.BadgeID)
	}

	c.JSON(http.StatusOK, gin.H{"awarded": ids})
}

type appendPointsRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	SourceType  string `json:"source_type" binding:"required"`
	SourceID    string `json:"source_id" binding:"required"`
	PointsDelta int64  `json:"points_delta"`
}

// appendPoints accepts point-earning events from trusted collaborators
// (discussion service, admin tooling). They flow through the same idempotent
// ledger append as quiz completions; nothing writes totals directly.
func (a *API) appendPoints(c *gin.Context) {
	var req appendPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	e, err := a.ledger.Append(c.Request.Context(), ledger.AppendRequest{
		UserID:      req.UserID,
		Source:      domain.SourceType(req.SourceType),
		SourceID:    req.SourceID,
		PointsDelta: req.PointsDelta,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id":     e.EventID,
		"points_delta": e.PointsDelta,
	})
}

func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Reason != "" {
		telemetry.CountRejection(string(e.Reason))
	}

	c.JSON(e.HTTPStatusCode(), gin.H{
		"code":    int(e.Code),
		"reason":  e.Reason,
		"message": e.Message,
	})
}
