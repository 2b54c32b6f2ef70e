package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/connsync/internal/config"
	"github.com/Sternrassler/connsync/pkg/cache"
	"github.com/Sternrassler/connsync/pkg/client"
	"github.com/Sternrassler/connsync/pkg/credentials"
	"github.com/Sternrassler/connsync/pkg/events"
	"github.com/Sternrassler/connsync/pkg/records"
	"github.com/Sternrassler/connsync/pkg/syncer"
	"github.com/redis/go-redis/v9"
)

// indexTTL bounds how long an unused identity index stays in Redis.
const indexTTL = 24 * time.Hour

// app is the wired object graph shared by the commands.
type app struct {
	cfg    config.Config
	redis  *redis.Client
	files  *records.FileStore
	driver *syncer.Driver
}

// newRedis opens and pings the configured Redis, or returns nil when none is set.
func newRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}

// newApp wires every component from cfg.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	rdb, err := newRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:   cfg,
		redis: rdb,
		files: records.NewFileStore(cfg.DataDir),
	}

	// Credentials
	var source credentials.Source = credentials.NewFileSource(cfg.DataDir)
	if cfg.CredentialSource == "redis" {
		source = credentials.NewRedisSource(rdb, 0)
	}
	var requester credentials.Requester
	if rdb != nil {
		requester = credentials.NewRedisRequester(rdb)
	}
	waiter, err := credentials.NewWaiter(source, requester, credentials.Config{
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.CredentialTimeout,
		SiteURL:      cfg.BaseURL + "/",
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	// Listing client
	clientCfg := client.DefaultConfig(cfg.UserAgent)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.Platform = cfg.Platform
	clientCfg.HTTPTimeout = cfg.HTTPTimeout
	clientCfg.Redis = rdb
	fetcher, err := client.New(clientCfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	// Existence checks
	var store interface {
		syncer.ExistenceChecker
		events.Appender
	} = a.files
	if rdb != nil {
		store = records.NewIndexedStore(a.files, cache.NewManager(rdb, indexTTL))
	}

	// Notifications
	var notifier events.Notifier
	switch cfg.EventSink {
	case "redis":
		notifier = events.NewRedisNotifier(rdb, "")
	case "both":
		notifier = events.Multi{events.NewStoreNotifier(store), events.NewRedisNotifier(rdb, "")}
	default:
		notifier = events.NewStoreNotifier(store)
	}

	a.driver, err = syncer.New(syncer.Config{
		Fetcher:           fetcher,
		Store:             store,
		Waiter:            waiter,
		Notifier:          notifier,
		PageSize:          cfg.PageSize,
		PageDelay:         cfg.PageDelay,
		StopAfterExisting: cfg.StopAfterExisting,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// Close releases the Redis connection.
func (a *app) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
