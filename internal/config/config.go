package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Remote KARDEX API
	KardexAPIURL string
	KardexAPIKey string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Session store
	SessionTTL   time.Duration
	SnapshotPath string

	// Reconciliation timing. RestoreGrace bounds the wait for persisted
	// storage to finish restoring; the redirect delays are handed to the
	// SPA so the agent is never left stranded on a callback screen.
	RestoreGrace         time.Duration
	SuccessRedirectDelay time.Duration
	ErrorRedirectDelay   time.Duration

	// Navigation targets
	LandingRoute   string
	PortalRoute    string
	DashboardRoute string

	// CORS origins allowed to call the gateway with credentials.
	AllowedOrigins []string

	// Auth
	JWTSecret     string // optional: enables token/user consistency checks
	CookieSealKey string // 64 hex chars; random per boot when empty

	// Observability
	OTLPEndpoint string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		KardexAPIURL: getEnv("KARDEX_API_URL", "http://localhost:4000"),
		KardexAPIKey: getEnv("KARDEX_API_KEY", ""),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		SessionTTL:   getEnvDuration("SESSION_TTL", 12*time.Hour),
		SnapshotPath: getEnv("SESSION_SNAPSHOT_PATH", ""),

		RestoreGrace:         getEnvDuration("SESSION_RESTORE_GRACE", 300*time.Millisecond),
		SuccessRedirectDelay: getEnvDuration("OAUTH_SUCCESS_REDIRECT_DELAY", 1500*time.Millisecond),
		ErrorRedirectDelay:   getEnvDuration("OAUTH_ERROR_REDIRECT_DELAY", 3*time.Second),

		LandingRoute:   getEnv("LANDING_ROUTE", "/"),
		PortalRoute:    getEnv("PORTAL_ROUTE", "/portal"),
		DashboardRoute: getEnv("DASHBOARD_ROUTE", "/panel"),

		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		CookieSealKey: getEnv("COOKIE_SEAL_KEY", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
