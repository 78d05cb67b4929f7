package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the request-protection pipeline. It is
// constructed once at process start and passed by reference to each guard's
// constructor; no guard mutates it at request time.
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Environment selects disclosure behavior: "development" or "production"
	Environment string `mapstructure:"environment"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`

	// Auth configuration
	Auth AuthConfig `mapstructure:"auth"`

	// CSRF configuration
	CSRF CSRFConfig `mapstructure:"csrf"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Request validation configuration
	RequestGuard RequestGuardConfig `mapstructure:"request_guard"`

	// Sanitizer length caps
	Sanitizer SanitizerConfig `mapstructure:"sanitizer"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// AuthConfig holds authentication gate configuration
type AuthConfig struct {
	// ProviderURL is the identity provider's token verification endpoint.
	// When empty the gate deterministically selects the local fallback
	// verifier at startup.
	ProviderURL     string        `mapstructure:"provider_url"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
	LocalSecret     string        `mapstructure:"local_secret"`
	Issuer          string        `mapstructure:"issuer"`
	// PublicPrefixes are route prefixes served with optional authentication.
	PublicPrefixes []string `mapstructure:"public_prefixes"`
}

// CSRFConfig holds CSRF guard configuration
type CSRFConfig struct {
	HeaderName     string        `mapstructure:"header_name"`
	FormField      string        `mapstructure:"form_field"`
	CookiePrefix   string        `mapstructure:"cookie_prefix"`
	SecretTTL      time.Duration `mapstructure:"secret_ttl"`
	ExemptPrefixes []string      `mapstructure:"exempt_prefixes"`
	CookieSecure   bool          `mapstructure:"cookie_secure"`
}

// CookieName returns the session-secret cookie name derived from the prefix.
func (c CSRFConfig) CookieName() string {
	return c.CookiePrefix + "_secret"
}

// TierConfig holds one rate limiter tier's window and quota
type TierConfig struct {
	Window time.Duration `mapstructure:"window"`
	Max    int           `mapstructure:"max"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Tiers map[string]TierConfig `mapstructure:"tiers"`
	// GeneralMaxDev relaxes the general tier quota in development mode.
	GeneralMaxDev int `mapstructure:"general_max_dev"`
	// SkipPaths are exact paths the general tier never counts.
	SkipPaths []string `mapstructure:"skip_paths"`
	// EvictionInterval controls the optional stale-counter sweep; zero
	// disables it.
	EvictionInterval time.Duration `mapstructure:"eviction_interval"`
	// EvictionGrace is added to a tier window before a counter is reclaimed.
	EvictionGrace time.Duration `mapstructure:"eviction_grace"`
	// RedisAddr switches counters to a shared Redis store when set.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// RequestGuardConfig holds the request-validation guard configuration
type RequestGuardConfig struct {
	MaxBodyBytes        int64    `mapstructure:"max_body_bytes"`
	AllowedContentTypes []string `mapstructure:"allowed_content_types"`
	BlockedUserAgents   []string `mapstructure:"blocked_user_agents"`
}

// SanitizerConfig holds sanitizer length caps
type SanitizerConfig struct {
	MaxStringLength int `mapstructure:"max_string_length"`
}

// IsDevelopment reports whether disclosure-friendly development mode is on.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/carepulse")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideWithEnv(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.idle_timeout", 120)

	v.SetDefault("environment", "production")
	v.SetDefault("log_level", "info")

	// Auth defaults
	v.SetDefault("auth.provider_timeout", 5*time.Second)
	v.SetDefault("auth.issuer", "carepulse-api")
	v.SetDefault("auth.public_prefixes", []string{"/api/v1/auth/"})

	// CSRF defaults
	v.SetDefault("csrf.header_name", "X-CSRF-Token")
	v.SetDefault("csrf.form_field", "_csrf")
	v.SetDefault("csrf.cookie_prefix", "carepulse")
	v.SetDefault("csrf.secret_ttl", time.Hour)
	v.SetDefault("csrf.exempt_prefixes", []string{"/health", "/metrics", "/api/v1/auth/login"})
	v.SetDefault("csrf.cookie_secure", true)

	// Rate limiting defaults, one entry per tier
	v.SetDefault("rate_limit.tiers.general.window", 15*time.Minute)
	v.SetDefault("rate_limit.tiers.general.max", 100)
	v.SetDefault("rate_limit.tiers.strict.window", 15*time.Minute)
	v.SetDefault("rate_limit.tiers.strict.max", 10)
	v.SetDefault("rate_limit.tiers.medium.window", 15*time.Minute)
	v.SetDefault("rate_limit.tiers.medium.max", 30)
	v.SetDefault("rate_limit.tiers.light.window", 5*time.Minute)
	v.SetDefault("rate_limit.tiers.light.max", 50)
	v.SetDefault("rate_limit.tiers.auth.window", 15*time.Minute)
	v.SetDefault("rate_limit.tiers.auth.max", 5)
	v.SetDefault("rate_limit.tiers.modification.window", 10*time.Minute)
	v.SetDefault("rate_limit.tiers.modification.max", 20)
	v.SetDefault("rate_limit.general_max_dev", 1000)
	v.SetDefault("rate_limit.skip_paths", []string{"/health", "/api/v1/csrf-token"})
	v.SetDefault("rate_limit.eviction_interval", 10*time.Minute)
	v.SetDefault("rate_limit.eviction_grace", 5*time.Minute)

	// Request validation defaults
	v.SetDefault("request_guard.max_body_bytes", int64(1<<20))
	v.SetDefault("request_guard.allowed_content_types", []string{
		"application/json",
		"application/x-www-form-urlencoded",
		"multipart/form-data",
	})
	v.SetDefault("request_guard.blocked_user_agents", []string{
		"sqlmap", "nikto", "masscan", "nessus",
	})

	// Sanitizer defaults
	v.SetDefault("sanitizer.max_string_length", 1000)
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if env := os.Getenv("APP_ENV"); env != "" {
		config.Environment = env
	}

	if providerURL := os.Getenv("IDENTITY_PROVIDER_URL"); providerURL != "" {
		config.Auth.ProviderURL = providerURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET_KEY"); jwtSecret != "" {
		config.Auth.LocalSecret = jwtSecret
	}

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		config.RateLimit.RedisAddr = redisAddr
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Auth.ProviderURL == "" && config.Auth.LocalSecret == "" {
		return fmt.Errorf("either auth.provider_url or auth.local_secret is required")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	for name, tier := range config.RateLimit.Tiers {
		if tier.Max <= 0 {
			return fmt.Errorf("rate limit tier %q: max must be positive", name)
		}
		if tier.Window <= 0 {
			return fmt.Errorf("rate limit tier %q: window must be positive", name)
		}
	}

	if config.RequestGuard.MaxBodyBytes <= 0 {
		return fmt.Errorf("request_guard.max_body_bytes must be positive")
	}

	return nil
}
