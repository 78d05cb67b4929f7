package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "production", cfg.Environment)
	assert.False(t, cfg.IsDevelopment())

	assert.Equal(t, "test-secret", cfg.Auth.LocalSecret)
	assert.Equal(t, "carepulse-api", cfg.Auth.Issuer)
	assert.Equal(t, 5*time.Second, cfg.Auth.ProviderTimeout)

	assert.Equal(t, "X-CSRF-Token", cfg.CSRF.HeaderName)
	assert.Equal(t, "carepulse_secret", cfg.CSRF.CookieName())
	assert.Equal(t, time.Hour, cfg.CSRF.SecretTTL)

	general := cfg.RateLimit.Tiers["general"]
	assert.Equal(t, 15*time.Minute, general.Window)
	assert.Equal(t, 100, general.Max)
	auth := cfg.RateLimit.Tiers["auth"]
	assert.Equal(t, 5, auth.Max)
	light := cfg.RateLimit.Tiers["light"]
	assert.Equal(t, 5*time.Minute, light.Window)
	assert.Equal(t, 50, light.Max)

	assert.Equal(t, int64(1<<20), cfg.RequestGuard.MaxBodyBytes)
	assert.Contains(t, cfg.RequestGuard.AllowedContentTypes, "application/json")
	assert.Contains(t, cfg.RequestGuard.BlockedUserAgents, "sqlmap")
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")
	t.Setenv("APP_ENV", "development")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("IDENTITY_PROVIDER_URL", "https://idp.example.com/verify")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://idp.example.com/verify", cfg.Auth.ProviderURL)
}

func TestLoad_RequiresVerifierConfiguration(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")
	t.Setenv("IDENTITY_PROVIDER_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080},
			Auth:   AuthConfig{LocalSecret: "secret"},
			RateLimit: RateLimitConfig{Tiers: map[string]TierConfig{
				"general": {Window: time.Minute, Max: 10},
			}},
			RequestGuard: RequestGuardConfig{MaxBodyBytes: 1024},
		}
	}

	assert.NoError(t, validate(base()))

	cfg := base()
	cfg.Server.Port = 0
	assert.Error(t, validate(cfg))

	cfg = base()
	cfg.RateLimit.Tiers["general"] = TierConfig{Window: time.Minute, Max: 0}
	assert.Error(t, validate(cfg))

	cfg = base()
	cfg.RateLimit.Tiers["general"] = TierConfig{Window: 0, Max: 10}
	assert.Error(t, validate(cfg))

	cfg = base()
	cfg.RequestGuard.MaxBodyBytes = 0
	assert.Error(t, validate(cfg))
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{Environment: "development"}
	assert.True(t, cfg.IsDevelopment())

	cfg.Environment = "Development"
	assert.True(t, cfg.IsDevelopment())

	cfg.Environment = "production"
	assert.False(t, cfg.IsDevelopment())
}
