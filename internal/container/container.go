package container

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"heritage/taxonomy/internal/cache"
	"heritage/taxonomy/internal/client"
	"heritage/taxonomy/internal/config"
	"heritage/taxonomy/internal/metrics"
	"heritage/taxonomy/internal/provider"
	"heritage/taxonomy/internal/server"
	"heritage/taxonomy/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Container holds all initialized components
type Container struct {
	Config   *config.Config
	Client   client.TaxonomyClient
	Store    storage.Store
	Cache    *cache.SnapshotCache
	Provider *provider.Provider
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	db    *pgxpool.Pool
	redis *redis.Client
}

// New creates a new container with all dependencies initialized
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
	}

	container.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	container.Metrics = metrics.New(container.Registry)

	store, err := container.newStore(ctx)
	if err != nil {
		container.Close()
		return nil, err
	}
	container.Store = store

	container.Cache = cache.New(store, cfg.Taxonomy.CacheKey, cfg.Taxonomy.CacheTTL(),
		cache.WithMetrics(container.Metrics))

	container.Client = client.NewTaxonomyClient(cfg.Taxonomy, container.Metrics)

	container.Provider = provider.New(container.Cache, container.Client,
		provider.WithMetrics(container.Metrics))

	return container, nil
}

func (c *Container) newStore(ctx context.Context) (storage.Store, error) {
	switch c.Config.Storage.Driver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Addr(),
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.Database,
		})
		c.redis = rdb

		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("✅ Connected to Redis successfully")

		return storage.NewRedisStore(rdb, c.Config.Storage.KeyPrefix), nil

	case "postgres":
		db, err := pgxpool.New(ctx, c.Config.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		c.db = db

		if err := storage.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		log.Info("✅ Connected to Postgres successfully")

		return storage.NewPostgresStore(db, c.Config.Storage.KeyPrefix), nil

	case "memory":
		log.Info("Using in-memory cache slot")
		return storage.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", c.Config.Storage.Driver)
	}
}

// Run starts the provider and serves the read-only views until ctx is cancelled
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	c.Provider.Start(ctx)

	g.Go(func() error {
		state, err := c.Provider.Wait(ctx)
		if err != nil {
			return nil
		}

		if state.Err != nil {
			log.Warnf("⚠️ Subcategories unavailable: %v", state.Err)
			return nil
		}

		log.Infof("🎉 Subcategories ready: %d items from %s", len(state.Items), state.Source)
		return nil
	})

	g.Go(func() error {
		return server.Run(ctx, c.Config.Server.Addr(), server.NewRouter(c.Provider, c.Registry))
	})

	return g.Wait()
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	if c.Provider != nil {
		c.Provider.Close()
	}
	if c.Client != nil {
		if err := c.Client.Close(); err != nil {
			log.Warnf("⚠️ Failed to close HTTP client: %v", err)
		}
	}
	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			log.Warnf("⚠️ Failed to close Redis client: %v", err)
		}
	}

	log.Info("Container shut down successfully")
	return nil
}
