package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zonecp/zonecp/internal/core/domain"
	"github.com/zonecp/zonecp/internal/core/ports"
)

// DomainConfig carries the zone defaults applied at creation time.
type DomainConfig struct {
	MinimumTTL uint32
	// LocalPublicSuffixes are names under which any user may register,
	// regardless of who owns the suffix itself.
	LocalPublicSuffixes []string
	// DomainLimitDefault caps domains per user when the user record has no
	// override; negative means unlimited.
	DomainLimitDefault int
}

// DomainService owns domain lifecycle and keeps the name server in step.
type DomainService struct {
	repo      ports.Repository
	publisher ports.Publisher
	cfg       DomainConfig
	log       *slog.Logger
	now       func() time.Time
}

func NewDomainService(repo ports.Repository, publisher ports.Publisher, cfg DomainConfig, log *slog.Logger) *DomainService {
	return &DomainService{repo: repo, publisher: publisher, cfg: cfg, log: log, now: time.Now}
}

// Create registers a domain for the user, creates the zone on the name
// server and fetches its signing keys. When the acting token has auto_policy
// set, a write policy scoped to the new domain is added to it.
func (s *DomainService) Create(ctx context.Context, user *domain.User, acting *domain.Token, name string) (*domain.Domain, error) {
	if !acting.PermCreateDomain {
		return nil, domain.E(domain.KindForbidden, "this token cannot create domains")
	}
	name = domain.NormalizeDomainName(name)
	if err := domain.ValidateDomainName(name); err != nil {
		return nil, err
	}
	if err := s.checkLimit(ctx, user); err != nil {
		return nil, err
	}
	if err := s.checkCover(ctx, user, name); err != nil {
		return nil, err
	}
	d := &domain.Domain{
		ID:         uuid.New(),
		OwnerID:    user.ID,
		Name:       name,
		Created:    s.now(),
		MinimumTTL: s.cfg.MinimumTTL,
	}
	if err := s.repo.CreateDomain(ctx, d); err != nil {
		return nil, err
	}
	if err := s.publisher.CreateZone(ctx, d); err != nil {
		// Roll back the row so the user can retry cleanly.
		if derr := s.repo.DeleteDomain(ctx, user.ID, name); derr != nil {
			s.log.Error("orphaned domain row after zone creation failure",
				"domain", name, "error", derr)
		}
		return nil, err
	}
	if keys, err := s.publisher.FetchKeys(ctx, d); err == nil {
		d.Keys = keys
	} else {
		s.log.Warn("could not fetch zone keys", "domain", name, "error", err)
	}
	if acting.AutoPolicy {
		policy := &domain.TokenPolicy{
			ID:        uuid.New(),
			TokenID:   acting.ID,
			Domain:    &d.Name,
			PermWrite: true,
		}
		if err := s.repo.CreatePolicy(ctx, policy); err != nil {
			s.log.Warn("could not attach auto policy", "domain", name, "error", err)
		}
	}
	return d, nil
}

func (s *DomainService) checkLimit(ctx context.Context, user *domain.User) error {
	limit := s.cfg.DomainLimitDefault
	if user.LimitDomains != nil {
		limit = *user.LimitDomains
	}
	if limit < 0 {
		return nil
	}
	count, err := s.repo.CountDomains(ctx, user.ID)
	if err != nil {
		return err
	}
	if count >= limit {
		return domain.Ef(domain.KindForbidden,
			"you reached the maximum number of domains (%d)", limit)
	}
	return nil
}

// checkCover rejects names equal to, under, or above a domain of another
// user. Local public suffixes are open for registration beneath them.
func (s *DomainService) checkCover(ctx context.Context, user *domain.User, name string) error {
	covering, err := s.repo.FindCoveringDomains(ctx, name)
	if err != nil {
		return err
	}
	for i := range covering {
		other := &covering[i]
		if other.Name == name {
			return domain.E(domain.KindConflict, "this domain name is unavailable")
		}
		if other.OwnerID == user.ID {
			continue
		}
		if isAncestor(other.Name, name) && s.isLocalPublicSuffix(other.Name) {
			continue
		}
		return domain.E(domain.KindConflict, "this domain name is unavailable")
	}
	return nil
}

func (s *DomainService) isLocalPublicSuffix(name string) bool {
	for _, sfx := range s.cfg.LocalPublicSuffixes {
		if name == sfx {
			return true
		}
	}
	return false
}

// isAncestor reports whether parent is a proper ancestor of name.
func isAncestor(parent, name string) bool {
	return strings.HasSuffix(name, "."+parent)
}

func (s *DomainService) List(ctx context.Context, user *domain.User) ([]domain.Domain, error) {
	return s.repo.ListDomains(ctx, user.ID)
}

func (s *DomainService) Get(ctx context.Context, user *domain.User, name string) (*domain.Domain, error) {
	return s.repo.GetDomain(ctx, user.ID, domain.NormalizeDomainName(name))
}

// Delete removes the domain and its zone on both name servers. The row goes
// first so a half-failed publish cannot resurrect user data.
func (s *DomainService) Delete(ctx context.Context, user *domain.User, acting *domain.Token, name string) error {
	if !acting.PermDeleteDomain {
		return domain.E(domain.KindForbidden, "this token cannot delete domains")
	}
	name = domain.NormalizeDomainName(name)
	if _, err := s.repo.GetDomain(ctx, user.ID, name); err != nil {
		return err
	}
	if err := s.repo.DeleteDomain(ctx, user.ID, name); err != nil {
		return err
	}
	if err := s.publisher.DeleteZone(ctx, name); err != nil {
		s.log.Error("zone deletion failed, catalog alignment will reconcile",
			"domain", name, "error", err)
	}
	return nil
}
