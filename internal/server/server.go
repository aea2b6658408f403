package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/BlockAce01/Examind-sub001/internal/api"
	"github.com/BlockAce01/Examind-sub001/internal/badge"
	"github.com/BlockAce01/Examind-sub001/internal/domain"
	"github.com/BlockAce01/Examind-sub001/internal/event"
	"github.com/BlockAce01/Examind-sub001/internal/gate"
	"github.com/BlockAce01/Examind-sub001/internal/ledger"
	"github.com/BlockAce01/Examind-sub001/internal/memory"
	"github.com/BlockAce01/Examind-sub001/internal/postgres"
	"github.com/BlockAce01/Examind-sub001/internal/scoring"
	"github.com/BlockAce01/Examind-sub001/internal/telemetry"
	"github.com/BlockAce01/Examind-sub001/internal/view"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	Scoring scoring.Weights

	Reconcile struct {
		Interval string
		Batch    int
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	store struct {
		attempts gate.AttemptStore
		quizzes  gate.QuizStore
		ledger   ledger.Store
		badges   badge.Store
	}

	service struct {
		gate   *gate.Service
		ledger *ledger.Service
		badges *badge.Evaluator
		view   *view.Service
	}

	http          *http.Server
	stopReconcile chan struct{}
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c, stopReconcile: make(chan struct{})}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if len(s.c.Redis.Addrs) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    s.c.Redis.Addrs,
			Password: s.c.Redis.Pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return fmt.Errorf("redis: %w", err)
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}

		s.infra.redis = r
	}

	if s.c.Postgres.Addr != "" {
		db, err := postgres.Connect(postgres.Config{
			Addr: s.c.Postgres.Addr,
			User: s.c.Postgres.User,
			Pass: s.c.Postgres.Pass,
			Name: s.c.Postgres.Name,
		})
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}

		s.infra.postgres = db
	}

	return nil
}

func (s *Server) initService() error {
	if s.infra.postgres != nil {
		s.store.attempts = postgres.NewAttemptStore(s.infra.postgres)
		s.store.quizzes = postgres.NewQuizStore(s.infra.postgres)
		s.store.ledger = postgres.NewLedgerStore(s.infra.postgres)
		s.store.badges = postgres.NewBadgeStore(s.infra.postgres)
	} else {
		// No database configured: run fully in memory with sample data, enough
		// for local development and demos.
		slog.Warn("server: no postgres configured, using in-memory stores")
		s.store.attempts = memory.NewAttemptStore()
		s.store.quizzes = sampleQuizzes()
		s.store.ledger = memory.NewLedgerStore()
		s.store.badges = memory.NewBadgeStore(sampleBadges()...)
	}

	engine, err := scoring.NewEngine(s.c.Scoring)
	if err != nil {
		return fmt.Errorf("scoring weights: %w", err)
	}

	s.service.ledger = ledger.NewService(ledger.Config{
		EventBus: s.eb,
		Store:    s.store.ledger,
	})

	s.service.badges = badge.NewEvaluator(badge.Config{
		EventBus: s.eb,
		Ledger:   s.service.ledger,
		Store:    s.store.badges,
	})

	s.service.gate = gate.NewService(gate.Config{
		Attempts: s.store.attempts,
		Quizzes:  s.store.quizzes,
		Engine:   engine,
		Ledger:   s.service.ledger,
		Badges:   s.service.badges,
	})

	s.service.view = view.NewService(view.Config{
		EventBus: s.eb,
		Ledger:   s.service.ledger,
		Badges:   s.store.badges,
		Redis:    s.infra.redis,
		Prefix:   s.c.Redis.Prefix,
	})

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(gin.Recovery())
	e.Use(telemetry.HTTPMetrics())

	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	pprof.Register(e, "/debug/pprof")

	var pubsub api.Redis
	if s.infra.redis != nil {
		pubsub = s.infra.redis
	}

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Gate:         s.service.gate,
		Ledger:       s.service.ledger,
		Badges:       s.service.badges,
		View:         s.service.view,
		Redis:        pubsub,
		PubsubPrefix: s.c.Redis.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	go s.reconcileLoop(ctx)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

// reconcileLoop periodically re-scores attempts that were claimed but never
// scored, so a crash between claim and scoring is always recovered.
func (s *Server) reconcileLoop(ctx context.Context) {
	interval := time.Minute
	if s.c.Reconcile.Interval != "" {
		if d, err := time.ParseDuration(s.c.Reconcile.Interval); err == nil {
			interval = d
		}
	}

	batch := s.c.Reconcile.Batch
	if batch <= 0 {
		batch = 100
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-s.stopReconcile:
			return
		case <-t.C:
			n, err := s.service.gate.Reconcile(ctx, batch)
			if err != nil {
				slog.ErrorContext(ctx, "server: reconcile failed", "error", err)
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "server: reconciled unscored attempts", "count", n)
			}
		}
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	close(s.stopReconcile)

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}
	if s.infra.redis != nil {
		if err := s.infra.redis.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}

// Migrate applies the database schema. Requires postgres to be configured.
func (s *Server) Migrate(ctx context.Context) error {
	if s.infra.postgres == nil {
		return fmt.Errorf("server: postgres not configured")
	}
	return postgres.Migrate(ctx, s.infra.postgres)
}

// Reconcile runs one reconciliation pass, for the CLI subcommand.
func (s *Server) Reconcile(ctx context.Context, batch int) (int, error) {
	return s.service.gate.Reconcile(ctx, batch)
}

func sampleQuizzes() *memory.QuizStore {
	qs := memory.NewQuizStore()
	qs.AddQuiz(
		domain.Quiz{QuizID: "sample-easy", Title: "Getting Started", Difficulty: domain.DifficultyEasy},
		domain.AnswerKey{QuizID: "sample-easy", Correct: map[string]int{"q1": 1, "q2": 0, "q3": 2}},
	)
	qs.AddQuiz(
		domain.Quiz{QuizID: "sample-hard", Title: "Advanced Topics", Difficulty: domain.DifficultyHard, AllowRetake: true},
		domain.AnswerKey{QuizID: "sample-hard", Correct: map[string]int{"q1": 3, "q2": 1}},
	)
	return qs
}

func sampleBadges() []domain.Badge {
	return []domain.Badge{
		{
			BadgeID: "first-quiz",
			Name:    "First Quiz",
			Rule:    domain.BadgeRule{Kind: domain.RuleSourceCount, Source: domain.SourceQuiz, Count: 1},
		},
		{
			BadgeID: "scholar",
			Name:    "Scholar",
			Rule:    domain.BadgeRule{Kind: domain.RulePointsThreshold, Threshold: 500},
		},
		{
			BadgeID: "all-rounder",
			Name:    "All-Rounder",
			Rule: domain.BadgeRule{Kind: domain.RuleAllOf, AllOf: []domain.BadgeRule{
				{Kind: domain.RuleSourceCount, Source: domain.SourceQuiz, Count: 5},
				{Kind: domain.RuleSourceCount, Source: domain.SourceDiscussion, Count: 5},
			}},
		},
	}
}
