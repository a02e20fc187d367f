package services

import (
	"context"
	"log/slog"

	"github.com/zonecp/zonecp/internal/core/domain"
	"github.com/zonecp/zonecp/internal/core/ports"
	"github.com/zonecp/zonecp/internal/infrastructure/metrics"
)

// PublisherConfig holds the records every new zone starts with.
type PublisherConfig struct {
	DefaultNS    []string
	DefaultNSTTL uint32
}

// PublisherService drives the primary and secondary name servers from
// committed change sets.
type PublisherService struct {
	primary   ports.NameServer
	secondary ports.NameServer
	cfg       PublisherConfig
	log       *slog.Logger
}

func NewPublisherService(primary, secondary ports.NameServer, cfg PublisherConfig, log *slog.Logger) *PublisherService {
	return &PublisherService{primary: primary, secondary: secondary, cfg: cfg, log: log}
}

// PublishDiff patches the zone on the primary and notifies the secondaries.
func (s *PublisherService) PublishDiff(ctx context.Context, diff *domain.ZoneDiff) error {
	if diff.Empty() {
		return nil
	}
	if err := s.primary.ApplyChanges(ctx, diff.DomainName, diff.Changes()); err != nil {
		metrics.PublishesTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.PublishesTotal.WithLabelValues("ok").Inc()
	if err := s.primary.Notify(ctx, diff.DomainName); err != nil {
		s.log.Warn("zone notify failed", "zone", diff.DomainName, "error", err)
	}
	return nil
}

// CreateZone creates the zone on the primary with the default NS RRset.
func (s *PublisherService) CreateZone(ctx context.Context, d *domain.Domain) error {
	ns := domain.RRset{
		Subname: "",
		Type:    "NS",
		TTL:     s.cfg.DefaultNSTTL,
		Records: s.cfg.DefaultNS,
	}
	if err := s.primary.CreateZone(ctx, d.Name, []domain.RRset{ns}); err != nil {
		metrics.PublishesTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.PublishesTotal.WithLabelValues("ok").Inc()
	if err := s.primary.Notify(ctx, d.Name); err != nil {
		s.log.Warn("zone notify failed", "zone", d.Name, "error", err)
	}
	return nil
}

// DeleteZone removes the zone on both servers; the adapters treat a missing
// zone as success.
func (s *PublisherService) DeleteZone(ctx context.Context, name string) error {
	if err := s.primary.DeleteZone(ctx, name); err != nil {
		return err
	}
	if err := s.secondary.DeleteZone(ctx, name); err != nil {
		return err
	}
	return nil
}

// FetchKeys returns the zone's published signing keys from the primary.
func (s *PublisherService) FetchKeys(ctx context.Context, d *domain.Domain) ([]domain.ZoneKey, error) {
	return s.primary.GetKeys(ctx, d.Name)
}
