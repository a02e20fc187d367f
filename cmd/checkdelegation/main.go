// Command checkdelegation runs the delegation check over all domains (or a
// single one) and writes the results back. Meant to run from cron.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/zonecp/zonecp/internal/adapters/repository"
	"github.com/zonecp/zonecp/internal/config"
	"github.com/zonecp/zonecp/internal/core/services"
)

func main() {
	single := flag.String("domain", "", "check only this domain")
	timeout := flag.Duration("timeout", 300*time.Second, "overall run deadline")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	checker := services.NewDelegationService(
		repository.NewPostgresRepository(db),
		services.DelegationConfig{Resolver: cfg.Resolver, OwnNS: cfg.DefaultNS},
		log,
	)

	if *single != "" {
		err = checker.CheckDomain(ctx, *single)
	} else {
		err = checker.CheckAll(ctx)
	}
	if err != nil {
		log.Error("delegation check failed", "error", err)
		os.Exit(1)
	}
}
