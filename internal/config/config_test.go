package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnv(t *testing.T) {
	t.Setenv("ZONECP_DATABASE_URL", "postgres://localhost/zonecp")
	t.Setenv("ZONECP_PRIMARY__ENDPOINT", "http://127.0.0.1:8081/api/v1/servers/localhost")
	t.Setenv("ZONECP_PRIMARY__API_KEY", "primary-key")
	t.Setenv("ZONECP_DEFAULT_NS", "ns1.example.net,ns2.example.net.")
}

func TestLoadDefaults(t *testing.T) {
	validEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, uint32(3600), cfg.MinimumTTLDefault)
	assert.Equal(t, 15, cfg.DomainLimitDefault)
	assert.Equal(t, "2000/d", cfg.Throttle["user"])
}

func TestLoadNestedAndLists(t *testing.T) {
	validEnv(t)
	t.Setenv("ZONECP_SECONDARY__ENDPOINT", "http://127.0.0.1:8082/api/v1/servers/localhost")
	t.Setenv("ZONECP_SECONDARY__API_KEY", "secondary-key")
	t.Setenv("ZONECP_LOCAL_PUBLIC_SUFFIXES", "dyn.example.net, eu.example.net")
	t.Setenv("ZONECP_THROTTLE__ACCOUNT", "1/s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "secondary-key", cfg.Secondary.APIKey)
	assert.Equal(t, []string{"dyn.example.net", "eu.example.net"}, cfg.LocalPublicSuffixes)
	assert.Equal(t, "1/s", cfg.Throttle["account"])
}

func TestLoadNormalizesNSNames(t *testing.T) {
	validEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"ns1.example.net.", "ns2.example.net."}, cfg.DefaultNS)
}

func TestLoadRejectsMissingDatabase(t *testing.T) {
	validEnv(t)
	t.Setenv("ZONECP_DATABASE_URL", "")
	_, err := Load()
	assert.Error(t, err)
}
