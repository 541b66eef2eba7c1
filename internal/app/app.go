// Package app is the composition root shared by the server and dbtool
// binaries. It wires concrete adapters behind ports from a loaded Config.
package app

import (
	"context"
	"database/sql"
	"delivery-estimate-service/internal/adapters/cache"
	"delivery-estimate-service/internal/adapters/distance"
	"delivery-estimate-service/internal/adapters/events"
	"delivery-estimate-service/internal/adapters/repositories"
	"delivery-estimate-service/internal/config"
	"delivery-estimate-service/internal/platform/db"
	"delivery-estimate-service/internal/platform/obs"
	"delivery-estimate-service/internal/ports"
	"delivery-estimate-service/internal/services"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	providerBurst    = 5
	redisPingTimeout = 2 * time.Second
)

type App struct {
	Config     *config.Config
	SQLite     *sql.DB
	Orders     ports.OrderRepository
	Estimates  *repositories.SqliteEstimateRepository
	Cache      ports.DistanceCache
	Resolver   *services.DistanceResolver
	Load       *services.LoadCalculator
	Monitor    *services.PerformanceMonitor
	Estimator  *services.Estimator
	Completion *services.CompletionService

	closers []func() error
}

// Build opens stores, constructs providers for whichever API keys are set,
// and assembles the estimator. Callers must Close the result.
func Build(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	log := obs.Logger(ctx)
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.SQLite, err = db.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.SQLite.Close)

	if err := repositories.InitSchema(a.SQLite); err != nil {
		return nil, err
	}

	if a.Orders, err = a.orderRepository(ctx); err != nil {
		return nil, err
	}
	a.Estimates = repositories.NewSqliteEstimateRepository(a.SQLite)
	a.Cache = a.distanceCache(ctx)

	settings, err := services.NewSettings(cfg.Estimation)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}

	resolverOpts := []services.ResolverOption{services.WithDistanceCache(a.Cache)}
	providerOpts := []distance.Option{distance.WithRateLimit(cfg.ProviderRatePerSecond, providerBurst)}

	if key := strings.TrimSpace(cfg.GoogleMapsAPIKey); key != "" {
		google, err := distance.NewGoogleMapsClient(key, providerOpts...)
		if err != nil {
			return nil, fmt.Errorf("build: %w", err)
		}
		resolverOpts = append(resolverOpts, services.WithDistanceMatrix(google), services.WithGeocoder(google))
	} else {
		log.Warn().Msg("GOOGLE_MAPS_API_KEY not set, distance matrix and primary geocoder disabled")
	}

	if key := strings.TrimSpace(cfg.ORSAPIKey); key != "" {
		ors, err := distance.NewORSGeocoder(key, providerOpts...)
		if err != nil {
			return nil, fmt.Errorf("build: %w", err)
		}
		resolverOpts = append(resolverOpts, services.WithAltGeocoder(ors))
	}

	metrics := obs.NewMetricsRecorder(nil)
	resolverOpts = append(resolverOpts, services.WithResolverMetrics(metrics))

	a.Resolver = services.NewDistanceResolver(settings, resolverOpts...)
	a.Load = services.NewLoadCalculator(settings, a.Orders, nil)
	a.Monitor = services.NewPerformanceMonitor(metrics, a.Estimates, nil)

	estimatorOpts := []services.EstimatorOption{
		services.WithOrderRepository(a.Orders),
		services.WithEstimateRepository(a.Estimates),
		services.WithMonitor(a.Monitor),
	}

	if cfg.Kafka.Enabled {
		pub, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, fmt.Errorf("build: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		estimatorOpts = append(estimatorOpts, services.WithPublisher(pub))
	}

	a.Estimator = services.NewEstimator(settings, a.Resolver, a.Load, estimatorOpts...)
	a.Completion = services.NewCompletionService(a.Orders, a.Estimates, a.Estimator, nil)

	return a, nil
}

// orderRepository uses Postgres when DATABASE_URL is set, SQLite otherwise.
func (a *App) orderRepository(ctx context.Context) (ports.OrderRepository, error) {
	if strings.TrimSpace(a.Config.DatabaseURL) == "" {
		return repositories.NewSqliteOrderRepository(a.SQLite), nil
	}

	pg, err := db.Open(a.Config.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pg.Close)

	if err := repositories.InitPostgresSchema(ctx, pg); err != nil {
		return nil, err
	}
	obs.Logger(ctx).Info().Msg("using postgres order store")
	return repositories.NewSQLOrderRepository(pg), nil
}

// distanceCache prefers Redis when REDIS_URL is set and reachable.
func (a *App) distanceCache(ctx context.Context) ports.DistanceCache {
	log := obs.Logger(ctx)
	sqliteCache := cache.NewSqliteDistanceCache(a.SQLite, nil)

	raw := strings.TrimSpace(a.Config.RedisURL)
	if raw == "" {
		return sqliteCache
	}

	opt, err := redis.ParseURL(raw)
	if err != nil {
		log.Warn().Err(err).Msg("invalid REDIS_URL, using sqlite distance cache")
		return sqliteCache
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		log.Warn().Err(err).Msg("redis unreachable, using sqlite distance cache")
		return sqliteCache
	}

	a.closers = append(a.closers, client.Close)
	log.Info().Str("addr", opt.Addr).Msg("using redis distance cache")
	return cache.NewRedisDistanceCache(client)
}

// PurgeExpiredDistances prunes the SQLite cache until ctx is done. It is a
// no-op when Redis holds the cache, since Redis expires keys itself.
func (a *App) PurgeExpiredDistances(ctx context.Context, every time.Duration) {
	c, ok := a.Cache.(*cache.SqliteDistanceCache)
	if !ok {
		return
	}

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := c.Purge(ctx)
			if err != nil {
				obs.Logger(ctx).Warn().Err(err).Msg("purge distance cache failed")
				continue
			}
			obs.Logger(ctx).Debug().Int64("rows", n).Msg("distance cache purged")
		}
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
