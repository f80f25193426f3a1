package server

import (
	"context"
	"log"
	"time"

	"backend-cmbraga/internal/activity"
	"backend-cmbraga/internal/auth"
	"backend-cmbraga/internal/badge"
	"backend-cmbraga/internal/config"
	"backend-cmbraga/internal/leaderboard"
	"backend-cmbraga/internal/route"
	"backend-cmbraga/internal/stats"
	"backend-cmbraga/internal/stream"
	"backend-cmbraga/internal/transfer"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub

	// OnSessionFinished runs stats aggregation and badge evaluation for a
	// closed session. Shared by the finish handler and the overdue sweeper.
	OnSessionFinished func(sessionID string)
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	aggregator := stats.NewAggregator(s.DB)
	engine := badge.NewEngine(s.DB, s.Stream)
	s.OnSessionFinished = s.onSessionFinished(aggregator, engine)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB))
	route.RegisterRoutes(s.App.Group("/routes"), route.NewService(s.DB), jwtMiddleware)
	activity.RegisterRoutes(s.App.Group("/activities"), activity.NewService(s.DB, s.Stream), jwtMiddleware, s.OnSessionFinished)
	transfer.RegisterRoutes(s.App.Group("/transfers"), transfer.NewResolver(s.DB, localTime(s.Cfg)), jwtMiddleware)
	stats.RegisterRoutes(s.App.Group("/stats"), aggregator, jwtMiddleware)
	badge.RegisterRoutes(s.App.Group("/badges"), engine, jwtMiddleware)
	leaderboard.RegisterRoutes(s.App.Group("/leaderboards"), leaderboard.NewService(s.DB))
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

// onSessionFinished aggregates the session's stats and evaluates badges once a
// session is closed. Failures are logged, never surfaced to the finish call.
func (s *Server) onSessionFinished(aggregator *stats.Aggregator, engine *badge.Engine) func(sessionID string) {
	return func(sessionID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		childStats, parentStats, err := aggregator.AggregateSession(ctx, sessionID)
		if err != nil {
			log.Printf("stats aggregation for session %s failed: %v", sessionID, err)
			return
		}

		badges, err := engine.Catalogue(ctx)
		if err != nil {
			log.Printf("badge catalogue load failed: %v", err)
			return
		}
		if _, err := engine.EvaluateAndAwardBadges(ctx, badges, childStats, parentStats); err != nil {
			log.Printf("badge evaluation for session %s failed: %v", sessionID, err)
		}
	}
}

func localTime(cfg config.Config) *time.Location {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Printf("unknown timezone %q, falling back to UTC", cfg.Timezone)
		return time.UTC
	}
	return loc
}
