package main

import (
	"context"
	"delivery-estimate-service/internal/adapters/repositories"
	"delivery-estimate-service/internal/api"
	"delivery-estimate-service/internal/app"
	"delivery-estimate-service/internal/config"
	"delivery-estimate-service/internal/platform/obs"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	cachePurgeInterval = time.Hour
	shutdownTimeout    = 15 * time.Second
)

// main is the application composition root.
// It wires concrete adapters behind ports and starts the HTTP server.
func main() {
	if err := run(); err != nil {
		obs.Logger(context.Background()).Fatal().Err(err).Msg("server stopped")
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	obs.InitLogger(cfg.LogLevel, cfg.LogJSON)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := obs.Logger(ctx)

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Demo orders for local runs. A missing seed file is not fatal.
	if cfg.SeedPath != "" {
		if err := repositories.SeedFromJSON(a.SQLite, cfg.SeedPath); err != nil {
			log.Warn().Err(err).Str("path", cfg.SeedPath).Msg("seed skipped")
		}
	}

	go a.PurgeExpiredDistances(ctx, cachePurgeInterval)

	router := api.NewRouter(api.Deps{
		Estimator:  a.Estimator,
		Orders:     a.Orders,
		Completion: a.Completion,
		Monitor:    a.Monitor,
		Load:       a.Load,
	})

	// Write timeout covers a full provider fallback chain on a cold cache.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
