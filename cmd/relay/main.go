package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"pitchhub-relay/config"
	"pitchhub-relay/internal/middleware"
	"pitchhub-relay/internal/redis"
	"pitchhub-relay/internal/relay"
	"pitchhub-relay/internal/repository"
	"pitchhub-relay/internal/server"
	"pitchhub-relay/internal/websocket"
	"pitchhub-relay/pkg/database"
	"pitchhub-relay/pkg/logger"
)

const connectTimeout = 10 * time.Second

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	if err := run(cfg, l); err != nil {
		l.Errorf("relay stopped: %s", err)
		l.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, l *logger.Logger) error {
	ctx := context.Background()

	store, closeStore, err := openMessageStore(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer closeStore()

	checks := map[string]server.Checker{"message_store": store}
	opts := relay.Options{
		Strict:         cfg.StrictMode,
		PersistTimeout: cfg.PersistTimeout,
	}

	var mirror server.PresenceMirror
	var limiter middleware.ConnectLimiter
	if cfg.RedisEnabled {
		client := redis.NewClient(redis.ConfigFrom(cfg))
		defer client.Close()

		presence := redis.NewPresenceStore(client, redis.NewPublisher(client, redis.PresenceChannelPrefix), cfg.PresenceTTL, l)
		opts.Observer = presence
		mirror = presence
		checks["redis"] = presence
		limiter = redis.NewRateLimiter(client, redis.RateLimitConfig{
			ConnectLimit:  cfg.ConnectLimit,
			ConnectWindow: cfg.ConnectWindow,
		})
	}

	wsLogger := websocket.NewLogger(l)
	hub := websocket.NewHub(wsLogger)
	rel := relay.New(relay.NewPresence(), hub, store, l, opts)
	handler := websocket.NewHandler(rel, hub, cfg.AllowedOrigins, wsLogger)

	srv := server.New(cfg, l, server.Dependencies{
		Relay:     rel,
		Hub:       hub,
		WSHandler: handler,
		Checks:    checks,
		Mirror:    mirror,
		Limiter:   limiter,
	})

	l.Infof("Relay starting: store=%s strict=%t origins=%v", cfg.MessageStore, cfg.StrictMode, cfg.AllowedOrigins)
	return srv.Run(ctx)
}

func openMessageStore(ctx context.Context, cfg *config.Config, l *logger.Logger) (repository.MessageRepository, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.MessageStore {
	case config.StoreMongo:
		client, err := database.ConnectMongo(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				l.Warnf("mongo disconnect: %s", err)
			}
		}
		return repository.NewMongoMessageRepository(client, cfg.MongoDB, cfg.MongoCollection), closeFn, nil

	case config.StorePostgres:
		pool, err := database.ConnectPostgres(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewPostgresMessageRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil

	case config.StoreMemory:
		return repository.NewMemoryMessageRepository(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown MESSAGE_STORE %q", cfg.MessageStore)
	}
}
