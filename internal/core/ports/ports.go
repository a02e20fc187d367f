package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zonecp/zonecp/internal/core/domain"
)

// Repository is the persistence boundary backed by Postgres.
type Repository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetUserByEmail(ctx context.Context, emailNorm string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
	CountDomains(ctx context.Context, ownerID uuid.UUID) (int, error)

	GetTokenByPrefix(ctx context.Context, prefix string) ([]domain.Token, error)
	GetToken(ctx context.Context, userID, tokenID uuid.UUID) (*domain.Token, error)
	ListTokens(ctx context.Context, userID uuid.UUID) ([]domain.Token, error)
	CreateToken(ctx context.Context, token *domain.Token) error
	UpdateToken(ctx context.Context, token *domain.Token) error
	DeleteToken(ctx context.Context, userID, tokenID uuid.UUID) error
	TouchToken(ctx context.Context, tokenID uuid.UUID, usedAt time.Time) error

	ListPolicies(ctx context.Context, tokenID uuid.UUID) ([]domain.TokenPolicy, error)
	CreatePolicy(ctx context.Context, policy *domain.TokenPolicy) error
	UpdatePolicy(ctx context.Context, policy *domain.TokenPolicy) error
	DeletePolicy(ctx context.Context, tokenID, policyID uuid.UUID) error

	GetDomain(ctx context.Context, ownerID uuid.UUID, name string) (*domain.Domain, error)
	GetDomainByName(ctx context.Context, name string) (*domain.Domain, error)
	ListDomains(ctx context.Context, ownerID uuid.UUID) ([]domain.Domain, error)
	// ListDomainNames returns every domain name, for delegation checks and
	// catalog alignment.
	ListDomainNames(ctx context.Context) ([]string, error)
	// FindCoveringDomains returns existing domains that equal or are
	// ancestors/descendants of name, with their owners.
	FindCoveringDomains(ctx context.Context, name string) ([]domain.Domain, error)
	CreateDomain(ctx context.Context, d *domain.Domain) error
	DeleteDomain(ctx context.Context, ownerID uuid.UUID, name string) error
	UpdateDelegationStatus(ctx context.Context, domainID uuid.UUID, d *domain.Domain) error

	GetRRset(ctx context.Context, domainID uuid.UUID, subname, rrType string) (*domain.RRset, error)
	ListRRsets(ctx context.Context, domainID uuid.UUID, filter RRsetFilter) ([]domain.RRset, error)
	// ApplyRRsetChanges locks the domain row, calls build with the RRsets
	// as they stand under the lock, commits the returned change set in the
	// same transaction and returns it. A build error aborts the
	// transaction and is passed through unchanged.
	ApplyRRsetChanges(ctx context.Context, domainID uuid.UUID, build DiffBuilder) (*domain.ZoneDiff, error)

	Ping(ctx context.Context) error
}

// DiffBuilder derives a change set from the current RRsets of a domain.
// It runs inside the write transaction, so the rows it sees cannot change
// before the diff commits.
type DiffBuilder func(current []domain.RRset) (*domain.ZoneDiff, error)

// RRsetFilter restricts ListRRsets; zero value lists everything.
type RRsetFilter struct {
	Subname *string
	Type    *string
	Cursor  uuid.UUID
	Limit   int
}

// Throttle admits or rejects one request against a named scope. A non-nil
// error of kind throttled carries the Retry-After hint.
type Throttle interface {
	Allow(ctx context.Context, scope, client string, bucket string) error
}

// NameServer drives one authoritative server's HTTP API (primary or
// secondary in the replication sense).
type NameServer interface {
	CreateZone(ctx context.Context, name string, rrsets []domain.RRset) error
	DeleteZone(ctx context.Context, name string) error
	ApplyChanges(ctx context.Context, zone string, rrsets []domain.RRset) error
	Notify(ctx context.Context, zone string) error
	ListZones(ctx context.Context) ([]string, error)
	GetKeys(ctx context.Context, zone string) ([]domain.ZoneKey, error)
}

// Publisher propagates committed RRset diffs to the name servers.
type Publisher interface {
	PublishDiff(ctx context.Context, diff *domain.ZoneDiff) error
	CreateZone(ctx context.Context, d *domain.Domain) error
	DeleteZone(ctx context.Context, name string) error
	FetchKeys(ctx context.Context, d *domain.Domain) ([]domain.ZoneKey, error)
}
