package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	ServerPort string
	BaseURL    string
	Issuer     string

	DatabaseURL string
	RedisURL    string

	JWTPrivateKey   string
	JWTPublicKey    string
	KeyRotationDays int
	KeyGraceDays    int

	AuthCodeTTL            time.Duration
	DefaultAccessTokenTTL  time.Duration
	DefaultRefreshTokenTTL time.Duration
	SupportedScopes        []string

	AllowConfidentialWithoutPKCE bool
	AllowPKCEPlain               bool

	ClientsFile string
	LoginURL    string
	UserHeader  string
	// ConsentSecret keys the consent form tokens. Replicas behind one
	// load balancer must share it.
	ConsentSecret string

	RateLimitPerMinute int

	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		BaseURL:     strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		JWTPrivateKey:   getEnv("JWT_PRIVATE_KEY", ""),
		JWTPublicKey:    getEnv("JWT_PUBLIC_KEY", ""),
		KeyRotationDays: getIntEnv("KEY_ROTATION_DAYS", 30),
		KeyGraceDays:    getIntEnv("KEY_GRACE_DAYS", 7),

		AuthCodeTTL:            getDurationEnv("AUTH_CODE_TTL", 10*time.Minute),
		DefaultAccessTokenTTL:  getDurationEnv("DEFAULT_ACCESS_TOKEN_TTL", 3600*time.Second),
		DefaultRefreshTokenTTL: getDurationEnv("DEFAULT_REFRESH_TOKEN_TTL", 2592000*time.Second),
		SupportedScopes:        getListEnv("SUPPORTED_SCOPES", []string{"openid", "profile", "email"}),

		AllowConfidentialWithoutPKCE: getBoolEnv("ALLOW_CONFIDENTIAL_WITHOUT_PKCE", false),
		AllowPKCEPlain:               getBoolEnv("ALLOW_PKCE_PLAIN", true),

		ClientsFile: getEnv("CLIENTS_FILE", ""),
		LoginURL:    getEnv("LOGIN_URL", ""),
		UserHeader:  getEnv("USER_HEADER", "X-Authenticated-User"),

		ConsentSecret: getEnv("CONSENT_SECRET", ""),

		RateLimitPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 120),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
	cfg.Issuer = strings.TrimRight(getEnv("ISSUER", cfg.BaseURL), "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UseMemoryStore reports whether the in-memory repository is selected.
func (c *Config) UseMemoryStore() bool {
	return c.DatabaseURL == "" || strings.HasPrefix(c.DatabaseURL, "memory://")
}

func (c *Config) validate() error {
	if (c.JWTPrivateKey == "") != (c.JWTPublicKey == "") {
		return &ConfigError{Message: "JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together"}
	}
	u, err := url.Parse(c.Issuer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Message: fmt.Sprintf("ISSUER must be an absolute URL, got %q", c.Issuer)}
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return &ConfigError{Message: "ISSUER must not carry a query or fragment"}
	}
	if c.AuthCodeTTL <= 0 || c.AuthCodeTTL > 10*time.Minute {
		return &ConfigError{Message: "AUTH_CODE_TTL must be positive and at most 10m"}
	}
	if c.DefaultAccessTokenTTL <= 0 || c.DefaultRefreshTokenTTL <= 0 {
		return &ConfigError{Message: "token lifetimes must be positive"}
	}
	if c.KeyRotationDays <= 0 || c.KeyGraceDays < 0 {
		return &ConfigError{Message: "KEY_ROTATION_DAYS must be positive and KEY_GRACE_DAYS non-negative"}
	}
	if len(c.SupportedScopes) == 0 {
		return &ConfigError{Message: "SUPPORTED_SCOPES must not be empty"}
	}
	if c.ConsentSecret != "" && len(c.ConsentSecret) < 32 {
		return &ConfigError{Message: "CONSENT_SECRET must be at least 32 bytes"}
	}
	if c.RateLimitPerMinute < 0 {
		return &ConfigError{Message: "RATE_LIMIT_PER_MINUTE must not be negative"}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

// getListEnv splits on commas and whitespace.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

// ConfigError represents a configuration error
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
