// Package config loads the runtime configuration from the environment,
// with an optional .env file for development.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	koanf "github.com/knadh/koanf/v2"
)

// NameServer points at one PowerDNS-compatible HTTP API.
type NameServer struct {
	Endpoint string `koanf:"endpoint"`
	APIKey   string `koanf:"api_key"`
}

type Config struct {
	ListenAddr    string `koanf:"listen_addr"`
	DatabaseURL   string `koanf:"database_url"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`

	Primary   NameServer `koanf:"primary"`
	Secondary NameServer `koanf:"secondary"`

	// CatalogZone is the catalog zone name consumed by the secondary.
	CatalogZone string `koanf:"catalog_zone"`

	DefaultNS    []string `koanf:"default_ns"`
	DefaultNSTTL uint32   `koanf:"default_ns_ttl"`

	MinimumTTLDefault uint32 `koanf:"minimum_ttl_default"`

	// LocalPublicSuffixes are names under which any user may register
	// subdomains regardless of who owns the suffix itself.
	LocalPublicSuffixes []string `koanf:"local_public_suffixes"`

	// DomainLimitDefault caps domains per user unless the user record
	// overrides it; negative means unlimited.
	DomainLimitDefault int `koanf:"domain_limit_default"`

	// Resolver is the validating recursive resolver used by the
	// delegation checker, host:port.
	Resolver string `koanf:"resolver"`

	// Throttle maps scope names to rate lists like "10/s,300/m".
	Throttle map[string]string `koanf:"throttle"`
}

func defaults() Config {
	return Config{
		ListenAddr:         ":8080",
		RedisAddr:          "localhost:6379",
		DefaultNSTTL:       3600,
		MinimumTTLDefault:  3600,
		DomainLimitDefault: 15,
		Resolver:           "127.0.0.1:53",
		Throttle: map[string]string{
			"account":                      "3/s,10/m,50/h",
			"dyndns":                       "1/m",
			"user":                         "2000/d",
			"zone_create":                  "5/2m",
			"dns_api_per_domain_expensive": "10/s",
		},
	}
}

// listKeys name the env variables whose values are comma-separated lists.
var listKeys = map[string]bool{
	"default_ns":            true,
	"local_public_suffixes": true,
}

// Load reads ZONECP_* environment variables over the built-in defaults.
// `__` in a variable name maps to a nesting level, so
// ZONECP_PRIMARY__API_KEY sets primary.api_key.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	err := k.Load(env.ProviderWithValue("ZONECP_", ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, "ZONECP_"))
		key = strings.ReplaceAll(key, "__", ".")
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("ZONECP_DATABASE_URL is required")
	}
	if c.Primary.Endpoint == "" {
		return fmt.Errorf("ZONECP_PRIMARY__ENDPOINT is required")
	}
	if len(c.DefaultNS) == 0 {
		return fmt.Errorf("ZONECP_DEFAULT_NS is required")
	}
	for i, ns := range c.DefaultNS {
		if !strings.HasSuffix(ns, ".") {
			c.DefaultNS[i] = ns + "."
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
