package main

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/danmu/cache"
	"github.com/example/danmu-platform/internal/danmu/events"
	"github.com/example/danmu-platform/internal/danmu/handlers"
	"github.com/example/danmu-platform/internal/danmu/room"
	"github.com/example/danmu-platform/internal/danmu/service"
	"github.com/example/danmu-platform/internal/danmu/store"
	"github.com/example/danmu-platform/internal/danmu/video"
	"github.com/example/danmu-platform/internal/platform/auth"
	"github.com/example/danmu-platform/internal/platform/config"
	"github.com/example/danmu-platform/internal/platform/db"
	"github.com/example/danmu-platform/internal/platform/httpserver"
	"github.com/example/danmu-platform/internal/platform/logging"
	"github.com/example/danmu-platform/internal/platform/metrics"
	"github.com/example/danmu-platform/internal/platform/natsconn"
	"github.com/example/danmu-platform/internal/platform/run"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	m := metrics.New()

	comments, pool := initStore(cfg, log)
	if pool != nil {
		defer pool.Close()
	}
	c := initCache(cfg, log)
	videos := initVideos(cfg, log, pool)

	nc := initNATS(cfg, log)
	if nc != nil {
		defer nc.Close()
	}
	publisher := events.NewPublisher(nc, log)

	rooms := room.NewManager(room.Options{
		SubscriberBuffer: cfg.Danmu.SubscriberBuffer,
		Heartbeat:        cfg.Danmu.Heartbeat,
		Logger:           log,
		Metrics:          m,
	})

	svc := service.New(service.Options{
		Store:     comments,
		Cache:     c,
		Rooms:     rooms,
		Videos:    videos,
		Publisher: publisher,
		Config:    cfg.Danmu,
		Logger:    log,
		Metrics:   m,
	})

	verifier := auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}
	writeLimiter := httpserver.NewRateLimiter(5, 10)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error {
			if pool == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Ping(ctx)
		},
	})
	r.Use(metrics.RequestMiddleware(m))
	r.Method("GET", "/metrics", m.Handler(func() {
		m.SetActiveRooms(rooms.RoomCount())
		m.SetActiveSubscribers(rooms.SubscriberCount())
	}))

	// Danmu routes (public read, auth required for write and moderation)
	r.Get("/v1/danmu/{video_id}", handlers.GetWindow(svc))
	r.Get("/v1/danmu/{video_id}/stats", handlers.GetStats(svc))
	r.Get("/v1/danmu/{video_id}/stream", handlers.StreamComments(svc, log))
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Use(writeLimiter.Middleware)
		r.Post("/v1/danmu/{video_id}", handlers.CreateComment(svc))
		r.Delete("/v1/danmu/{video_id}/{comment_id}", handlers.DeleteComment(svc))
		r.Post("/v1/danmu/{video_id}/{comment_id}/hide", handlers.HideComment(svc))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		if nc != nil {
			if err := events.StartBridge(ctx, nc, rooms, c, publisher.InstanceID(), log); err != nil {
				log.Error("event bridge", zap.Error(err))
			}
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initStore selects the comment store. Production requires Postgres;
// development falls back to the in-memory store with a warning.
func initStore(cfg config.AppConfig, log *zap.Logger) (store.CommentStore, *pgxpool.Pool) {
	if cfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			log.Error("DATABASE_URL is required in production")
			run.Exit(1)
		}
		log.Warn("DATABASE_URL not set; using in-memory comment store")
		return store.NewMemoryStore(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		if cfg.IsProduction() {
			log.Error("postgres connect", zap.Error(err))
			run.Exit(1)
		}
		log.Warn("postgres unavailable; using in-memory comment store", zap.Error(err))
		return store.NewMemoryStore(), nil
	}
	return store.NewPostgresStore(pool), pool
}

// initCache selects the cache. Production requires Redis; development falls
// back to the in-process cache with a warning.
func initCache(cfg config.AppConfig, log *zap.Logger) cache.Cache {
	if cfg.RedisDSN == "" {
		if cfg.IsProduction() {
			log.Error("REDIS_DSN is required in production")
			run.Exit(1)
		}
		log.Warn("REDIS_DSN not set; using in-process cache")
		return cache.NewMemoryCache()
	}

	rc, err := cache.NewRedisCache(cfg.RedisDSN)
	if err != nil {
		if cfg.IsProduction() {
			log.Error("redis connect", zap.Error(err))
			run.Exit(1)
		}
		log.Warn("redis unavailable; using in-process cache", zap.Error(err))
		return cache.NewMemoryCache()
	}
	return rc
}

func initVideos(cfg config.AppConfig, log *zap.Logger, pool *pgxpool.Pool) video.MetadataProvider {
	if pool != nil {
		return video.NewPostgresProvider(pool)
	}
	if cfg.IsProduction() {
		log.Error("video metadata requires the database in production")
		run.Exit(1)
	}
	log.Warn("database not configured; using static video metadata")
	return video.NewStaticProvider(nil)
}

// initNATS connects the event fabric. Unavailability is non-fatal: the node
// keeps serving with local fan-out only.
func initNATS(cfg config.AppConfig, log *zap.Logger) *nats.Conn {
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL})
	if err != nil {
		log.Warn("nats unavailable; cross-instance fan-out disabled", zap.Error(err))
		return nil
	}
	return nc
}
