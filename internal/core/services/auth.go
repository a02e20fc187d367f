package services

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/zonecp/zonecp/internal/core/domain"
	"github.com/zonecp/zonecp/internal/core/ports"
)

// Secret alphabet excludes 0, O, I and l to keep tokens transcribable.
const (
	secretAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz123456789"
	secretLength     = 28
	keyPrefixLength  = 8
	pbkdf2Iterations = 480000
	lastUsedCoarse   = 60 * time.Second
)

// GenerateSecret mints a fresh token secret.
func GenerateSecret() (string, error) {
	max := big.NewInt(int64(len(secretAlphabet)))
	b := make([]byte, secretLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate secret: %w", err)
		}
		b[i] = secretAlphabet[n.Int64()]
	}
	return string(b), nil
}

// HashSecret derives the stored form pbkdf2$<iterations>$<salt>$<hex>.
func HashSecret(secret string) (string, error) {
	salt := make([]byte, 12)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hashWithSalt(secret, hex.EncodeToString(salt), pbkdf2Iterations), nil
}

func hashWithSalt(secret, salt string, iterations int) string {
	dk := pbkdf2.Key([]byte(secret), []byte(salt), iterations, sha256.Size, sha256.New)
	return fmt.Sprintf("pbkdf2$%d$%s$%s", iterations, salt, hex.EncodeToString(dk))
}

// VerifySecret checks secret against a stored hash in constant time.
func VerifySecret(secret, stored string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 || parts[0] != "pbkdf2" {
		return false
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations < 1 {
		return false
	}
	derived := hashWithSalt(secret, parts[2], iterations)
	return hmac.Equal([]byte(derived), []byte(stored))
}

// KeyPrefix returns the indexed lookup prefix of a plain secret.
func KeyPrefix(secret string) string {
	if len(secret) < keyPrefixLength {
		return secret
	}
	return secret[:keyPrefixLength]
}

// AuthService authenticates requests and resolves write permissions.
type AuthService struct {
	repo ports.Repository
	now  func() time.Time
}

func NewAuthService(repo ports.Repository) *AuthService {
	return &AuthService{repo: repo, now: time.Now}
}

// Credentials is the outcome of a successful authentication.
type Credentials struct {
	User  *domain.User
	Token *domain.Token
	// MFAVerified is set when the request carried a verified session marker.
	MFAVerified bool
}

var errBadCredentials = domain.E(domain.KindUnauthenticated, "invalid token")

// Authenticate parses an Authorization header ("Token <secret>" or HTTP
// Basic with the secret in the password field) and verifies the token.
// All failure modes return the same unauthenticated error.
func (s *AuthService) Authenticate(ctx context.Context, authHeader string, clientIP netip.Addr) (*Credentials, error) {
	secret, err := secretFromHeader(authHeader)
	if err != nil {
		return nil, err
	}
	candidates, err := s.repo.GetTokenByPrefix(ctx, KeyPrefix(secret))
	if err != nil {
		return nil, domain.Wrap(domain.KindStorageGone, "token lookup failed", err)
	}
	for i := range candidates {
		token := &candidates[i]
		if !VerifySecret(secret, token.KeyHash) {
			continue
		}
		user, err := s.repo.GetUser(ctx, token.UserID)
		if err != nil {
			return nil, domain.Wrap(domain.KindStorageGone, "user lookup failed", err)
		}
		now := s.now()
		if !token.ValidAt(now, user.CredentialsChanged) {
			return nil, errBadCredentials
		}
		if !token.SubnetAllowed(clientIP) {
			return nil, errBadCredentials
		}
		s.touch(ctx, token, now)
		return &Credentials{User: user, Token: token}, nil
	}
	return nil, errBadCredentials
}

// touch coarsens last_used writes to once per minute.
func (s *AuthService) touch(ctx context.Context, token *domain.Token, now time.Time) {
	if token.LastUsed != nil && now.Sub(*token.LastUsed) < lastUsedCoarse {
		return
	}
	if err := s.repo.TouchToken(ctx, token.ID, now); err == nil {
		token.LastUsed = &now
	}
}

func secretFromHeader(header string) (string, error) {
	scheme, rest, ok := strings.Cut(header, " ")
	if !ok {
		return "", errBadCredentials
	}
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(scheme) {
	case "token", "bearer":
		if rest == "" {
			return "", errBadCredentials
		}
		return rest, nil
	case "basic":
		raw, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return "", errBadCredentials
		}
		// The username part may carry a domain name for dynamic-DNS
		// clients; only the password holds the secret.
		_, password, ok := strings.Cut(string(raw), ":")
		if !ok || password == "" {
			return "", errBadCredentials
		}
		return password, nil
	default:
		return "", errBadCredentials
	}
}

// Policies returns the token's policy rows for use in bulk write checks.
func (s *AuthService) Policies(ctx context.Context, token *domain.Token) ([]domain.TokenPolicy, error) {
	policies, err := s.repo.ListPolicies(ctx, token.ID)
	if err != nil {
		return nil, domain.Wrap(domain.KindStorageGone, "policy lookup failed", err)
	}
	return policies, nil
}

// CheckRRsetWrite resolves the token's policy for the triple and enforces
// perm_write.
func (s *AuthService) CheckRRsetWrite(ctx context.Context, token *domain.Token, domainName, subname, rrType string) error {
	policies, err := s.repo.ListPolicies(ctx, token.ID)
	if err != nil {
		return domain.Wrap(domain.KindStorageGone, "policy lookup failed", err)
	}
	return checkWrite(policies, domainName, subname, rrType)
}

func checkWrite(policies []domain.TokenPolicy, domainName, subname, rrType string) error {
	if len(policies) == 0 {
		// Tokens without policies are unrestricted.
		return nil
	}
	p := domain.ResolvePolicy(policies, domainName, subname, rrType)
	if p == nil || !p.PermWrite {
		return domain.Ef(domain.KindForbidden,
			"insufficient permissions for %s %s on %s", rrType, subname, domainName)
	}
	return nil
}
