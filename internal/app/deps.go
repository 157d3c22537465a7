package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/vidfriends/accounts/internal/accounts"
	"github.com/vidfriends/accounts/internal/auth"
	"github.com/vidfriends/accounts/internal/channels"
	"github.com/vidfriends/accounts/internal/config"
	"github.com/vidfriends/accounts/internal/db"
	"github.com/vidfriends/accounts/internal/handlers"
	"github.com/vidfriends/accounts/internal/repositories"
	"github.com/vidfriends/accounts/internal/storage"
	"github.com/vidfriends/accounts/internal/videos"
)

type cleanupFunc func(context.Context) error

func noCleanup(context.Context) error { return nil }

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, cleanupFunc, error) {
	store, health, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	media, mediaDir, err := openMedia(ctx, cfg.ObjectStore)
	if err != nil {
		_ = closeStore(ctx)
		return handlers.Dependencies{}, nil, err
	}

	tokens := auth.NewManager(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
		Issuer:        cfg.Auth.Issuer,
	}, store.Accounts)
	prober := videos.NewFFProbe(cfg.Media.FFProbePath, cfg.Media.ProbeTimeout)
	svc := accounts.NewService(store, tokens, auth.NewBcryptHasher(cfg.Auth.BcryptCost), media, prober)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	logger.Info("dependencies ready", "store", cfg.Store.Driver, "objectStore", cfg.ObjectStore.Bucket != "")

	return handlers.Dependencies{
		Logger:   logger,
		HTTP:     cfg.HTTP,
		Accounts: svc,
		Videos:   svc,
		Channels: channels.NewService(store),
		Health:   health,
		MediaDir: mediaDir,
		Registry: registry,
	}, closeStore, nil
}

// openStore connects the configured credential store.
func openStore(ctx context.Context, cfg config.StoreConfig) (repositories.Store, handlers.HealthCheck, cleanupFunc, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return repositories.Store{}, nil, nil, err
		}
		closePool := func(context.Context) error {
			pool.Close()
			return nil
		}
		return repositories.NewPostgresStore(pool), pool.Ping, closePool, nil

	case config.DriverMongo:
		client, database, err := db.ConnectMongo(ctx, cfg.MongoURL)
		if err != nil {
			return repositories.Store{}, nil, nil, err
		}
		store, err := repositories.NewMongoStore(ctx, database)
		if err != nil {
			_ = client.Disconnect(ctx)
			return repositories.Store{}, nil, nil, err
		}
		ping := func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }
		return store.Store(), ping, client.Disconnect, nil

	case config.DriverMemory:
		return repositories.NewMemoryStore().Store(), nil, noCleanup, nil

	default:
		return repositories.Store{}, nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// openMedia returns the S3 uploader when a bucket is configured, otherwise a local media
// directory that the router serves itself.
func openMedia(ctx context.Context, cfg config.ObjectStoreConfig) (accounts.Uploader, string, error) {
	if strings.TrimSpace(cfg.Bucket) != "" {
		s3, err := storage.NewS3Storage(ctx, cfg)
		if err != nil {
			return nil, "", err
		}
		return s3, "", nil
	}

	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, "", errors.New("either an object store bucket or a local media directory is required")
	}
	disk, err := storage.NewDiskStorage(cfg.LocalDir, handlers.MediaPrefix)
	if err != nil {
		return nil, "", err
	}
	return disk, disk.Dir(), nil
}

// connectTimeout bounds store connection attempts for one-shot commands.
const connectTimeout = 15 * time.Second
