package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/artificial-games/artificial/internal/config"
	"github.com/artificial-games/artificial/internal/database"
	"github.com/artificial-games/artificial/internal/game"
	"github.com/artificial-games/artificial/internal/generation"
	"github.com/artificial-games/artificial/internal/handler/health"
	"github.com/artificial-games/artificial/internal/migrations"
	"github.com/artificial-games/artificial/internal/room"
	"github.com/artificial-games/artificial/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- Room store ---
	store, checks, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	rooms := room.NewService(store, room.NewBroker(), logger)
	games := game.NewRegistry(rooms, logger)
	defer games.Close()

	// --- Generation ---
	gen := generation.New(generation.Config{
		APIKey:     cfg.Generation.APIKey,
		BaseURL:    cfg.Generation.BaseURL,
		TextModel:  cfg.Generation.TextModel,
		ImageModel: cfg.Generation.ImageModel,
		Timeout:    cfg.Generation.Timeout,
		Retries:    cfg.Generation.Retries,
	}, logger)
	if !gen.Enabled() {
		logger.Warn("no generation API key configured, callers must bring their own")
	}

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Rooms:           rooms,
		Games:           games,
		Generation:      gen,
		GenerationRate:  cfg.Generation.Rate,
		GenerationBurst: cfg.Generation.Burst,
		SPADir:          cfg.SPADir,
	}, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger, checks).Routes())
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr, "store", cfg.Store)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	if cfg.RoomTTL > 0 {
		g.Go(func() error {
			janitor(gctx, rooms, games, cfg.RoomTTL, cfg.JanitorInterval, logger)
			return nil
		})
	}

	return g.Wait()
}

// openStore connects the configured backend and returns its health checks
// and a function releasing its connections.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (room.Store, map[string]health.Checker, func(), error) {
	switch cfg.Store {
	case config.StoreSQLite:
		db, err := database.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to sqlite: %w", err)
		}
		if err := migrations.Run(ctx, db); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("connected to sqlite", "path", cfg.DBPath)
		return room.NewSQLiteStore(db), map[string]health.Checker{"sqlite": dbChecker{db}}, func() { db.Close() }, nil

	case config.StoreRedis:
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		logger.Info("connected to redis")
		return room.NewRedisStore(rdb, cfg.RoomTTL), map[string]health.Checker{"redis": redisChecker{rdb}}, func() { rdb.Close() }, nil

	default:
		logger.Info("using in-memory room store")
		return room.NewMemoryStore(), map[string]health.Checker{}, func() {}, nil
	}
}

// janitor purges rooms older than ttl every interval and drops their game
// controllers.
func janitor(ctx context.Context, rooms *room.Service, games *game.Registry, ttl, interval time.Duration, logger *slog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			codes, err := rooms.Purge(ctx, ttl)
			if err != nil {
				logger.Error("purging rooms", "error", err)
				continue
			}
			for _, code := range codes {
				games.CloseRoom(code)
			}
		}
	}
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// dbChecker adapts *sql.DB to health.Checker.
type dbChecker struct{ db *sql.DB }

func (d dbChecker) Check(ctx context.Context) error { return d.db.PingContext(ctx) }

// redisChecker adapts *redis.Client to health.Checker.
type redisChecker struct{ client *redis.Client }

func (r redisChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }
