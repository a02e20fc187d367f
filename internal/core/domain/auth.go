package domain

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
)

// User is an account holding domains and tokens. Email uniqueness is
// case-insensitive; EmailNorm holds the case-folded, accent-stripped form
// backing the unique index.
type User struct {
	ID                 uuid.UUID  `json:"id"`
	Email              string     `json:"email"`
	EmailNorm          string     `json:"-"`
	Created            time.Time  `json:"created"`
	CredentialsChanged time.Time  `json:"-"`
	ThrottleDailyRate  *int       `json:"-"` // overrides the default user day rate
	LimitDomains       *int       `json:"limit_domains"`
}

// Token authenticates API requests. The secret is stored only as KeyHash;
// Plain is populated exactly once, at creation time.
type Token struct {
	ID               uuid.UUID      `json:"id"`
	UserID           uuid.UUID      `json:"-"`
	Created          time.Time      `json:"created"`
	Name             string         `json:"name"`
	KeyHash          string         `json:"-"`
	KeyPrefix        string         `json:"-"`
	PermManageTokens bool           `json:"perm_manage_tokens"`
	PermCreateDomain bool           `json:"perm_create_domain"`
	PermDeleteDomain bool           `json:"perm_delete_domain"`
	AutoPolicy       bool           `json:"auto_policy"`
	AllowedSubnets   []netip.Prefix `json:"allowed_subnets"`
	MaxAge           *time.Duration `json:"-"`
	MaxUnusedPeriod  *time.Duration `json:"-"`
	MFA              bool           `json:"mfa"`
	LastUsed         *time.Time     `json:"last_used"`
	Plain            string         `json:"token,omitempty"`
}

// ValidAt reports whether the token's temporal constraints hold at the
// given instant. credentialsChanged is the owning user's timestamp; a token
// predating a credential change is dead.
func (t *Token) ValidAt(now, credentialsChanged time.Time) bool {
	if t.MaxAge != nil && t.Created.Add(*t.MaxAge).Before(now) {
		return false
	}
	if t.MaxUnusedPeriod != nil {
		lastUsed := t.Created
		if t.LastUsed != nil {
			lastUsed = *t.LastUsed
		}
		if lastUsed.Add(*t.MaxUnusedPeriod).Before(now) {
			return false
		}
	}
	if credentialsChanged.After(t.Created) {
		return false
	}
	return true
}

// SubnetAllowed reports whether addr lies in the union of AllowedSubnets.
// An empty list admits every caller.
func (t *Token) SubnetAllowed(addr netip.Addr) bool {
	if len(t.AllowedSubnets) == 0 {
		return true
	}
	for _, pfx := range t.AllowedSubnets {
		if pfx.Contains(addr.Unmap()) {
			return true
		}
	}
	return false
}

// TokenPolicy grants or denies RRset write access for one token. Nil scope
// fields act as wildcards; the all-nil row is the token's default policy.
type TokenPolicy struct {
	ID        uuid.UUID `json:"id"`
	TokenID   uuid.UUID `json:"-"`
	Domain    *string   `json:"domain"`
	Subname   *string   `json:"subname"`
	Type      *string   `json:"type"`
	PermWrite bool      `json:"perm_write"`
}

// IsDefault reports whether this is the token's catch-all policy row.
func (p *TokenPolicy) IsDefault() bool {
	return p.Domain == nil && p.Subname == nil && p.Type == nil
}

// Matches reports whether the policy row applies to the given triple.
func (p *TokenPolicy) Matches(domainName, subname, rrType string) bool {
	if p.Domain != nil && *p.Domain != domainName {
		return false
	}
	if p.Subname != nil && *p.Subname != subname {
		return false
	}
	if p.Type != nil && *p.Type != rrType {
		return false
	}
	return true
}

// Specificity counts non-nil scope fields; more specific rows win.
func (p *TokenPolicy) Specificity() int {
	n := 0
	for _, f := range []*string{p.Domain, p.Subname, p.Type} {
		if f != nil {
			n++
		}
	}
	return n
}

// rank orders matching policies: a set field beats a wildcard, and domain
// weighs more than subname, which weighs more than type.
func (p *TokenPolicy) rank() int {
	n := 0
	if p.Domain != nil {
		n |= 4
	}
	if p.Subname != nil {
		n |= 2
	}
	if p.Type != nil {
		n |= 1
	}
	return n
}

// ResolvePolicy selects the highest-precedence policy matching the triple,
// or nil if none matches (which cannot happen once a default row exists).
// Precedence is lexicographic over the set fields, domain first.
func ResolvePolicy(policies []TokenPolicy, domainName, subname, rrType string) *TokenPolicy {
	var best *TokenPolicy
	for i := range policies {
		p := &policies[i]
		if !p.Matches(domainName, subname, rrType) {
			continue
		}
		if best == nil || p.rank() > best.rank() {
			best = p
		}
	}
	return best
}
