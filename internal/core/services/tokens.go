package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zonecp/zonecp/internal/core/domain"
	"github.com/zonecp/zonecp/internal/core/ports"
)

// TokenService manages token and token policy lifecycle. All operations
// require the acting token to hold perm_manage_tokens.
type TokenService struct {
	repo ports.Repository
	now  func() time.Time
}

func NewTokenService(repo ports.Repository) *TokenService {
	return &TokenService{repo: repo, now: time.Now}
}

func requireManage(acting *domain.Token) error {
	if !acting.PermManageTokens {
		return domain.E(domain.KindForbidden, "token management requires the perm_manage_tokens permission")
	}
	return nil
}

// Create mints a new token for the user. The returned token carries the
// plaintext secret exactly once.
func (s *TokenService) Create(ctx context.Context, acting *domain.Token, token *domain.Token) (*domain.Token, error) {
	if err := requireManage(acting); err != nil {
		return nil, err
	}
	secret, err := GenerateSecret()
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "could not generate token secret", err)
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "could not hash token secret", err)
	}
	token.ID = uuid.New()
	token.UserID = acting.UserID
	token.Created = s.now()
	token.KeyHash = hash
	token.KeyPrefix = KeyPrefix(secret)
	// The storage layer never sees the plaintext; it is attached to the
	// returned value only.
	token.Plain = ""
	if err := s.repo.CreateToken(ctx, token); err != nil {
		return nil, err
	}
	token.Plain = secret
	return token, nil
}

func (s *TokenService) List(ctx context.Context, acting *domain.Token) ([]domain.Token, error) {
	if err := requireManage(acting); err != nil {
		return nil, err
	}
	return s.repo.ListTokens(ctx, acting.UserID)
}

func (s *TokenService) Get(ctx context.Context, acting *domain.Token, id uuid.UUID) (*domain.Token, error) {
	if err := requireManage(acting); err != nil {
		return nil, err
	}
	return s.repo.GetToken(ctx, acting.UserID, id)
}

func (s *TokenService) Update(ctx context.Context, acting *domain.Token, token *domain.Token) error {
	if err := requireManage(acting); err != nil {
		return err
	}
	token.UserID = acting.UserID
	return s.repo.UpdateToken(ctx, token)
}

func (s *TokenService) Delete(ctx context.Context, acting *domain.Token, id uuid.UUID) error {
	if err := requireManage(acting); err != nil {
		return err
	}
	return s.repo.DeleteToken(ctx, acting.UserID, id)
}

// ListPolicies returns the policies of one of the user's tokens.
func (s *TokenService) ListPolicies(ctx context.Context, acting *domain.Token, tokenID uuid.UUID) ([]domain.TokenPolicy, error) {
	if err := requireManage(acting); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetToken(ctx, acting.UserID, tokenID); err != nil {
		return nil, err
	}
	return s.repo.ListPolicies(ctx, tokenID)
}

// CreatePolicy adds a policy row. The default (all-wildcard) policy must
// exist before any specific one; the database trigger backs this rule, the
// service check gives the nicer error.
func (s *TokenService) CreatePolicy(ctx context.Context, acting *domain.Token, tokenID uuid.UUID, policy *domain.TokenPolicy) (*domain.TokenPolicy, error) {
	if err := requireManage(acting); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetToken(ctx, acting.UserID, tokenID); err != nil {
		return nil, err
	}
	if !policy.IsDefault() {
		existing, err := s.repo.ListPolicies(ctx, tokenID)
		if err != nil {
			return nil, err
		}
		if !hasDefault(existing) {
			return nil, domain.E(domain.KindValidation,
				"a default policy (domain, subname and type all null) must be created first")
		}
	}
	policy.ID = uuid.New()
	policy.TokenID = tokenID
	if policy.Domain != nil {
		norm := domain.NormalizeDomainName(*policy.Domain)
		policy.Domain = &norm
	}
	if policy.Subname != nil {
		norm := domain.NormalizeSubname(*policy.Subname)
		policy.Subname = &norm
	}
	if policy.Type != nil {
		norm := domain.NormalizeRRsetType(*policy.Type)
		policy.Type = &norm
	}
	if err := s.repo.CreatePolicy(ctx, policy); err != nil {
		return nil, err
	}
	return policy, nil
}

func (s *TokenService) UpdatePolicy(ctx context.Context, acting *domain.Token, tokenID uuid.UUID, policy *domain.TokenPolicy) error {
	if err := requireManage(acting); err != nil {
		return err
	}
	if _, err := s.repo.GetToken(ctx, acting.UserID, tokenID); err != nil {
		return err
	}
	policy.TokenID = tokenID
	return s.repo.UpdatePolicy(ctx, policy)
}

// DeletePolicy removes a policy row. The default policy cannot go while
// specific rows remain.
func (s *TokenService) DeletePolicy(ctx context.Context, acting *domain.Token, tokenID, policyID uuid.UUID) error {
	if err := requireManage(acting); err != nil {
		return err
	}
	if _, err := s.repo.GetToken(ctx, acting.UserID, tokenID); err != nil {
		return err
	}
	policies, err := s.repo.ListPolicies(ctx, tokenID)
	if err != nil {
		return err
	}
	for i := range policies {
		if policies[i].ID == policyID && policies[i].IsDefault() && len(policies) > 1 {
			return domain.E(domain.KindValidation,
				"the default policy cannot be deleted while other policies exist")
		}
	}
	return s.repo.DeletePolicy(ctx, tokenID, policyID)
}

func hasDefault(policies []domain.TokenPolicy) bool {
	for i := range policies {
		if policies[i].IsDefault() {
			return true
		}
	}
	return false
}
