package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zonecp/zonecp/internal/core/domain"
	"github.com/zonecp/zonecp/internal/core/ports"
)

// fakeRepo is an in-memory ports.Repository for service tests.
type fakeRepo struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*domain.User
	tokens   map[uuid.UUID]*domain.Token
	policies map[uuid.UUID]*domain.TokenPolicy
	domains  map[uuid.UUID]*domain.Domain
	rrsets   map[uuid.UUID]*domain.RRset
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:    map[uuid.UUID]*domain.User{},
		tokens:   map[uuid.UUID]*domain.Token{},
		policies: map[uuid.UUID]*domain.TokenPolicy{},
		domains:  map[uuid.UUID]*domain.Domain{},
		rrsets:   map[uuid.UUID]*domain.RRset{},
	}
}

var errNotFound = domain.E(domain.KindNotFound, "not found")

func (r *fakeRepo) GetUser(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, errNotFound
}

func (r *fakeRepo) GetUserByEmail(_ context.Context, emailNorm string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.EmailNorm == emailNorm {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errNotFound
}

func (r *fakeRepo) CreateUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeRepo) CountDomains(_ context.Context, ownerID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.domains {
		if d.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) GetTokenByPrefix(_ context.Context, prefix string) ([]domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Token
	for _, t := range r.tokens {
		if t.KeyPrefix == prefix {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetToken(_ context.Context, userID, tokenID uuid.UUID) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[tokenID]; ok && t.UserID == userID {
		cp := *t
		return &cp, nil
	}
	return nil, errNotFound
}

func (r *fakeRepo) ListTokens(_ context.Context, userID uuid.UUID) ([]domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Token
	for _, t := range r.tokens {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeRepo) CreateToken(_ context.Context, token *domain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *token
	r.tokens[token.ID] = &cp
	return nil
}

func (r *fakeRepo) UpdateToken(_ context.Context, token *domain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[token.ID]; !ok {
		return errNotFound
	}
	cp := *token
	r.tokens[token.ID] = &cp
	return nil
}

func (r *fakeRepo) DeleteToken(_ context.Context, userID, tokenID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[tokenID]; ok && t.UserID == userID {
		delete(r.tokens, tokenID)
		return nil
	}
	return errNotFound
}

func (r *fakeRepo) TouchToken(_ context.Context, tokenID uuid.UUID, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[tokenID]; ok {
		t.LastUsed = &usedAt
		return nil
	}
	return errNotFound
}

func (r *fakeRepo) ListPolicies(_ context.Context, tokenID uuid.UUID) ([]domain.TokenPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TokenPolicy
	for _, p := range r.policies {
		if p.TokenID == tokenID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeRepo) CreatePolicy(_ context.Context, policy *domain.TokenPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *policy
	r.policies[policy.ID] = &cp
	return nil
}

func (r *fakeRepo) UpdatePolicy(_ context.Context, policy *domain.TokenPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[policy.ID]; !ok {
		return errNotFound
	}
	cp := *policy
	r.policies[policy.ID] = &cp
	return nil
}

func (r *fakeRepo) DeletePolicy(_ context.Context, tokenID, policyID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.policies[policyID]; ok && p.TokenID == tokenID {
		delete(r.policies, policyID)
		return nil
	}
	return errNotFound
}

func (r *fakeRepo) GetDomain(_ context.Context, ownerID uuid.UUID, name string) (*domain.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.domains {
		if d.OwnerID == ownerID && d.Name == name {
			cp := *d
			return &cp, nil
		}
	}
	return nil, errNotFound
}

func (r *fakeRepo) GetDomainByName(_ context.Context, name string) (*domain.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.domains {
		if d.Name == name {
			cp := *d
			return &cp, nil
		}
	}
	return nil, errNotFound
}

func (r *fakeRepo) ListDomains(_ context.Context, ownerID uuid.UUID) ([]domain.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Domain
	for _, d := range r.domains {
		if d.OwnerID == ownerID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeRepo) ListDomainNames(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, d := range r.domains {
		out = append(out, d.Name)
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakeRepo) FindCoveringDomains(_ context.Context, name string) ([]domain.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Domain
	for _, d := range r.domains {
		if d.Name == name || isAncestor(d.Name, name) || isAncestor(name, d.Name) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *fakeRepo) CreateDomain(_ context.Context, d *domain.Domain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.domains[d.ID] = &cp
	return nil
}

func (r *fakeRepo) DeleteDomain(_ context.Context, ownerID uuid.UUID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, d := range r.domains {
		if d.OwnerID == ownerID && d.Name == name {
			delete(r.domains, id)
			for rid, rs := range r.rrsets {
				if rs.DomainID == id {
					delete(r.rrsets, rid)
				}
			}
			return nil
		}
	}
	return errNotFound
}

func (r *fakeRepo) UpdateDelegationStatus(_ context.Context, domainID uuid.UUID, d *domain.Domain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.domains[domainID]; ok {
		stored.DelegationChecked = d.DelegationChecked
		stored.IsRegistered = d.IsRegistered
		stored.HasAllNameservers = d.HasAllNameservers
		stored.IsDelegated = d.IsDelegated
		stored.IsSecured = d.IsSecured
		return nil
	}
	return errNotFound
}

func (r *fakeRepo) GetRRset(_ context.Context, domainID uuid.UUID, subname, rrType string) (*domain.RRset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rs := range r.rrsets {
		if rs.DomainID == domainID && rs.Subname == subname && rs.Type == rrType {
			cp := *rs
			return &cp, nil
		}
	}
	return nil, errNotFound
}

func (r *fakeRepo) ListRRsets(_ context.Context, domainID uuid.UUID, filter ports.RRsetFilter) ([]domain.RRset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.RRset
	for _, rs := range r.rrsets {
		if rs.DomainID != domainID {
			continue
		}
		if filter.Subname != nil && rs.Subname != *filter.Subname {
			continue
		}
		if filter.Type != nil && rs.Type != *filter.Type {
			continue
		}
		out = append(out, *rs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Subname != out[j].Subname {
			return out[i].Subname < out[j].Subname
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

func (r *fakeRepo) ApplyRRsetChanges(_ context.Context, domainID uuid.UUID, build ports.DiffBuilder) (*domain.ZoneDiff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var current []domain.RRset
	for _, rs := range r.rrsets {
		if rs.DomainID == domainID {
			current = append(current, *rs)
		}
	}
	sort.Slice(current, func(i, j int) bool {
		if current[i].Subname != current[j].Subname {
			return current[i].Subname < current[j].Subname
		}
		return current[i].Type < current[j].Type
	})
	changes, err := build(current)
	if err != nil {
		return nil, err
	}
	for i := range changes.Created {
		cp := changes.Created[i]
		r.rrsets[cp.ID] = &cp
	}
	for i := range changes.Updated {
		cp := changes.Updated[i]
		r.rrsets[cp.ID] = &cp
	}
	for _, key := range changes.Deleted {
		for id, rs := range r.rrsets {
			if rs.DomainID == domainID && rs.Subname == key.Subname && rs.Type == key.Type {
				delete(r.rrsets, id)
			}
		}
	}
	cp := *changes
	return &cp, nil
}

func (r *fakeRepo) Ping(context.Context) error { return nil }

// fakePublisher records publish calls.
type fakePublisher struct {
	mu      sync.Mutex
	diffs   []domain.ZoneDiff
	created []string
	deleted []string
	keys    []domain.ZoneKey
	fail    error
}

func (p *fakePublisher) PublishDiff(_ context.Context, diff *domain.ZoneDiff) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.diffs = append(p.diffs, *diff)
	return nil
}

func (p *fakePublisher) CreateZone(_ context.Context, d *domain.Domain) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.created = append(p.created, d.Name)
	return nil
}

func (p *fakePublisher) DeleteZone(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, name)
	return nil
}

func (p *fakePublisher) FetchKeys(context.Context, *domain.Domain) ([]domain.ZoneKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys, nil
}

// fakeNameServer records name server calls for publisher tests.
type fakeNameServer struct {
	mu       sync.Mutex
	zones    map[string][]domain.RRset
	notified []string
	patches  map[string][][]domain.RRset
	keys     []domain.ZoneKey
}

func newFakeNameServer() *fakeNameServer {
	return &fakeNameServer{
		zones:   map[string][]domain.RRset{},
		patches: map[string][][]domain.RRset{},
	}
}

func (n *fakeNameServer) CreateZone(_ context.Context, name string, rrsets []domain.RRset) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.zones[name] = rrsets
	return nil
}

func (n *fakeNameServer) DeleteZone(_ context.Context, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.zones, name)
	return nil
}

func (n *fakeNameServer) ApplyChanges(_ context.Context, zone string, rrsets []domain.RRset) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.patches[zone] = append(n.patches[zone], rrsets)
	return nil
}

func (n *fakeNameServer) Notify(_ context.Context, zone string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, zone)
	return nil
}

func (n *fakeNameServer) ListZones(context.Context) ([]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for z := range n.zones {
		out = append(out, z)
	}
	sort.Strings(out)
	return out, nil
}

func (n *fakeNameServer) GetKeys(context.Context, string) ([]domain.ZoneKey, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.keys, nil
}
