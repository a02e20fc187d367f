// Command aligncatalog rebuilds the catalog zone from the primary's zone
// list and re-provisions the secondary. Run after incidents or from cron.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/zonecp/zonecp/internal/adapters/pdns"
	"github.com/zonecp/zonecp/internal/config"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	if cfg.Secondary.Endpoint == "" || cfg.CatalogZone == "" {
		log.Error("catalog alignment needs ZONECP_SECONDARY__ENDPOINT and ZONECP_CATALOG_ZONE")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	aligner := pdns.NewCatalogAligner(
		pdns.NewClient(cfg.Primary.Endpoint, cfg.Primary.APIKey),
		pdns.NewClient(cfg.Secondary.Endpoint, cfg.Secondary.APIKey),
		cfg.CatalogZone,
		log,
	)
	if err := aligner.Align(ctx); err != nil {
		log.Error("catalog alignment failed", "error", err)
		os.Exit(1)
	}
	log.Info("catalog aligned", "zone", cfg.CatalogZone)
}
