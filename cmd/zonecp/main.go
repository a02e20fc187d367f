package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zonecp/zonecp/internal/adapters/api"
	"github.com/zonecp/zonecp/internal/adapters/pdns"
	"github.com/zonecp/zonecp/internal/adapters/repository"
	"github.com/zonecp/zonecp/internal/adapters/throttle"
	"github.com/zonecp/zonecp/internal/config"
	"github.com/zonecp/zonecp/internal/core/services"
	"github.com/zonecp/zonecp/internal/infrastructure/metrics"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := repository.Migrate(db); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}
	repo := repository.NewPostgresRepository(db)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	scopes := map[string][]throttle.Rate{}
	for scope, raw := range cfg.Throttle {
		rates, err := throttle.ParseRates(raw)
		if err != nil {
			log.Error("invalid throttle rate", "scope", scope, "error", err)
			os.Exit(1)
		}
		scopes[scope] = rates
	}
	limiter := throttle.New(rdb, scopes)

	primary := pdns.NewClient(cfg.Primary.Endpoint, cfg.Primary.APIKey)
	secondary := primary
	if cfg.Secondary.Endpoint != "" {
		secondary = pdns.NewClient(cfg.Secondary.Endpoint, cfg.Secondary.APIKey)
	}

	publisher := services.NewPublisherService(primary, secondary, services.PublisherConfig{
		DefaultNS:    cfg.DefaultNS,
		DefaultNSTTL: cfg.DefaultNSTTL,
	}, log)
	handler := api.NewHandler(
		services.NewAuthService(repo),
		services.NewTokenService(repo),
		services.NewDomainService(repo, publisher, services.DomainConfig{
			MinimumTTL:          cfg.MinimumTTLDefault,
			LocalPublicSuffixes: cfg.LocalPublicSuffixes,
			DomainLimitDefault:  cfg.DomainLimitDefault,
		}, log),
		services.NewRRsetService(repo, publisher, log),
		repo, limiter, log,
	)

	go func() {
		tick := time.NewTicker(15 * time.Second)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				metrics.DBConnectionsActive.Set(float64(db.Stats().InUse))
			}
		}
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Error("shutdown incomplete", "error", err)
		}
	}()

	log.Info("api listening", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server failed", "error", err)
		os.Exit(1)
	}
}
