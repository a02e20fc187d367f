package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonecp/zonecp/internal/core/domain"
)

func tokenFixture(t *testing.T) (*TokenService, *fakeRepo, *domain.Token) {
	t.Helper()
	repo := newFakeRepo()
	acting := &domain.Token{ID: uuid.New(), UserID: uuid.New(), PermManageTokens: true}
	require.NoError(t, repo.CreateToken(context.Background(), acting))
	return NewTokenService(repo), repo, acting
}

func TestTokenCreateReturnsSecretOnce(t *testing.T) {
	svc, repo, acting := tokenFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, acting, &domain.Token{Name: "deploy"})
	require.NoError(t, err)
	assert.Len(t, created.Plain, 28)
	assert.Equal(t, created.KeyPrefix, created.Plain[:8])
	assert.True(t, VerifySecret(created.Plain, created.KeyHash))

	stored, err := repo.GetToken(ctx, acting.UserID, created.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Plain, "secret must not be persisted")
}

func TestTokenManagementRequiresPermission(t *testing.T) {
	svc, _, _ := tokenFixture(t)
	ctx := context.Background()
	unprivileged := &domain.Token{ID: uuid.New(), UserID: uuid.New()}

	_, err := svc.Create(ctx, unprivileged, &domain.Token{Name: "x"})
	assert.True(t, domain.IsKind(err, domain.KindForbidden))
	_, err = svc.List(ctx, unprivileged)
	assert.True(t, domain.IsKind(err, domain.KindForbidden))
	err = svc.Delete(ctx, unprivileged, uuid.New())
	assert.True(t, domain.IsKind(err, domain.KindForbidden))
}

func TestPolicyDefaultFirst(t *testing.T) {
	svc, _, acting := tokenFixture(t)
	ctx := context.Background()

	specific := &domain.TokenPolicy{Domain: strPtr("example.com"), PermWrite: true}
	_, err := svc.CreatePolicy(ctx, acting, acting.ID, specific)
	assert.True(t, domain.IsKind(err, domain.KindValidation), "specific before default")

	def, err := svc.CreatePolicy(ctx, acting, acting.ID, &domain.TokenPolicy{})
	require.NoError(t, err)

	_, err = svc.CreatePolicy(ctx, acting, acting.ID, specific)
	require.NoError(t, err)

	err = svc.DeletePolicy(ctx, acting, acting.ID, def.ID)
	assert.True(t, domain.IsKind(err, domain.KindValidation), "default cannot go while specifics exist")

	policies, err := svc.ListPolicies(ctx, acting, acting.ID)
	require.NoError(t, err)
	assert.Len(t, policies, 2)
}

func TestPolicyNormalizesScope(t *testing.T) {
	svc, _, acting := tokenFixture(t)
	ctx := context.Background()
	_, err := svc.CreatePolicy(ctx, acting, acting.ID, &domain.TokenPolicy{})
	require.NoError(t, err)

	p, err := svc.CreatePolicy(ctx, acting, acting.ID, &domain.TokenPolicy{
		Domain:  strPtr("EXAMPLE.com."),
		Subname: strPtr("WWW"),
		Type:    strPtr("aaaa"),
	})
	require.NoError(t, err)
	assert.Equal(t, "example.com", *p.Domain)
	assert.Equal(t, "www", *p.Subname)
	assert.Equal(t, "AAAA", *p.Type)
}

func TestPolicyForeignTokenRejected(t *testing.T) {
	svc, _, acting := tokenFixture(t)
	ctx := context.Background()
	_, err := svc.ListPolicies(ctx, acting, uuid.New())
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}
