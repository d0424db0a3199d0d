package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	strutil "parkspot/pkg/platform/strings"
)

// AuthMode selects which identity backend serves credentials and sessions.
type AuthMode string

const (
	AuthModeLocal    AuthMode = "local"
	AuthModeProvider AuthMode = "provider"
)

const devJWTSecret = "dev-secret-key-change-in-production"

// Server captures process-wide configuration. It is read once at startup and
// passed by reference into the components that need it.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
	SiteURL     string
	Auth        AuthConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Provider    ProviderConfig
	RateLimit   RateLimitConfig
}

type AuthConfig struct {
	Mode                     AuthMode
	JWTSecret                string
	JWTIssuer                string
	SessionTTL               time.Duration
	MinPasswordLength        int
	RequireEmailConfirmation bool
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers       []string
	OrphanTopic   string
	RelayInterval time.Duration
}

// ProviderConfig points at the external identity provider (GoTrue-compatible).
type ProviderConfig struct {
	URL            string
	AnonKey        string
	Timeout        time.Duration
	OAuthProviders []string
}

// RateLimitConfig throttles per client IP. Forwarding headers only name the
// client when the socket peer is one of TrustedProxies (addresses or CIDRs).
type RateLimitConfig struct {
	RPS            float64
	Burst          int
	TrustedProxies []string
}

// IsProduction reports whether secure cookies and redacted errors apply.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:        getEnv("ADDR", ":8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		SiteURL:     strings.TrimRight(getEnv("SITE_URL", "http://localhost:3000"), "/"),
		Auth: AuthConfig{
			Mode:                     AuthMode(strings.ToLower(getEnv("AUTH_MODE", string(AuthModeLocal)))),
			JWTSecret:                os.Getenv("JWT_SECRET"),
			JWTIssuer:                getEnv("JWT_ISSUER", "parkspot"),
			SessionTTL:               time.Hour,
			MinPasswordLength:        getEnvInt("MIN_PASSWORD_LENGTH", 6),
			RequireEmailConfirmation: getEnvBool("REQUIRE_EMAIL_CONFIRMATION", false),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       strutil.SplitList(os.Getenv("KAFKA_BROKERS")),
			OrphanTopic:   getEnv("KAFKA_ORPHAN_TOPIC", "identity.orphans"),
			RelayInterval: 5 * time.Second,
		},
		Provider: ProviderConfig{
			URL:            strings.TrimRight(os.Getenv("PROVIDER_URL"), "/"),
			AnonKey:        os.Getenv("PROVIDER_ANON_KEY"),
			Timeout:        10 * time.Second,
			OAuthProviders: strutil.SplitListLower(getEnv("OAUTH_PROVIDERS", "google")),
		},
		RateLimit: RateLimitConfig{
			RPS:            getEnvFloat("RATE_LIMIT_RPS", 5),
			Burst:          getEnvInt("RATE_LIMIT_BURST", 10),
			TrustedProxies: strutil.SplitList(os.Getenv("TRUSTED_PROXIES")),
		},
	}
}

// Validate fails fast on configuration that cannot serve requests. Outside
// production a missing JWT secret falls back to a development default.
func (s *Server) Validate() error {
	var errs []error
	switch s.Auth.Mode {
	case AuthModeLocal:
		if s.Auth.JWTSecret == "" {
			if s.IsProduction() {
				errs = append(errs, errors.New("JWT_SECRET is required in production"))
			} else {
				s.Auth.JWTSecret = devJWTSecret
			}
		}
	case AuthModeProvider:
		if s.Provider.URL == "" {
			errs = append(errs, errors.New("PROVIDER_URL is required in provider mode"))
		}
		if s.Provider.AnonKey == "" {
			errs = append(errs, errors.New("PROVIDER_ANON_KEY is required in provider mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_MODE %q", s.Auth.Mode))
	}
	if s.Auth.MinPasswordLength < 1 {
		errs = append(errs, errors.New("MIN_PASSWORD_LENGTH must be positive"))
	}
	if s.RateLimit.RPS <= 0 || s.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("rate limit must allow at least one request"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
