package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"k8s.io/utils/set"
)

// Defaults for optional knobs.
const (
	DefaultTurnTTLSeconds         = 3600
	MinTurnTTLSeconds             = 60
	DefaultTurnRateLimitMax       = 10
	DefaultTurnRateLimitWindowSec = 60
	DefaultStunURL                = "stun:stun.l.google.com:19302"
)

// Config holds validated environment configuration
type Config struct {
	// Required variables
	Port              string
	JoinTokenSecret   string
	InternalAPISecret string

	// Dev token issuer
	DevIssuerSecret     string
	AllowDevTokenIssuer bool

	// TURN / ICE
	StunURLs         []string
	TurnURLs         []string
	TurnSharedSecret string
	TurnTTLSeconds   int

	// TURN rate budget (per user)
	TurnRateLimitMax       int64
	TurnRateLimitWindowSec int

	// Optional variables with defaults
	GoEnv           string
	LogLevel        string
	DevelopmentMode bool

	// Redis (durable stores + limiter backend); memory fallback when disabled
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Tracing; empty endpoint disables the pipeline
	OtelCollectorAddr string
	OtelInsecure      bool
}

// ValidateEnv validates all required environment variables and returns a Config object.
// Returns an error if any required variable is missing or invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// Required: JOIN_TOKEN_SECRET (minimum 32 characters)
	cfg.JoinTokenSecret = os.Getenv("JOIN_TOKEN_SECRET")
	if cfg.JoinTokenSecret == "" {
		errs = append(errs, "JOIN_TOKEN_SECRET is required")
	} else if len(cfg.JoinTokenSecret) < 32 {
		errs = append(errs, fmt.Sprintf("JOIN_TOKEN_SECRET must be at least 32 characters (got %d)", len(cfg.JoinTokenSecret)))
	}

	// Required: INTERNAL_API_SECRET
	cfg.InternalAPISecret = os.Getenv("INTERNAL_API_SECRET")
	if cfg.InternalAPISecret == "" {
		errs = append(errs, "INTERNAL_API_SECRET is required")
	}

	// Required: PORT (valid port number)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errs = append(errs, "PORT is required")
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	// Dev issuer gating
	cfg.DevIssuerSecret = os.Getenv("DEV_ISSUER_SECRET")
	cfg.AllowDevTokenIssuer = os.Getenv("ALLOW_DEV_TOKEN_ISSUER") == "true"

	// ICE servers. TURN is optional; an empty TURN_URLS disables the TURN
	// block in /turn-credentials responses.
	cfg.StunURLs = parseURLList(getEnvOrDefault("STUN_URLS", DefaultStunURL))
	cfg.TurnURLs = parseURLList(os.Getenv("TURN_URLS"))
	cfg.TurnSharedSecret = os.Getenv("TURN_SHARED_SECRET")
	if len(cfg.TurnURLs) > 0 && cfg.TurnSharedSecret == "" {
		errs = append(errs, "TURN_SHARED_SECRET is required when TURN_URLS is set")
	}

	// TURN TTL, clamped to a sane floor
	cfg.TurnTTLSeconds = DefaultTurnTTLSeconds
	if raw := os.Getenv("TURN_TTL_SECONDS"); raw != "" {
		ttl, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("TURN_TTL_SECONDS must be an integer (got '%s')", raw))
		} else {
			if ttl < MinTurnTTLSeconds {
				ttl = MinTurnTTLSeconds
			}
			cfg.TurnTTLSeconds = ttl
		}
	}

	// TURN rate budget
	cfg.TurnRateLimitMax = DefaultTurnRateLimitMax
	if raw := os.Getenv("TURN_RATE_LIMIT_MAX"); raw != "" {
		max, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || max < 1 {
			errs = append(errs, fmt.Sprintf("TURN_RATE_LIMIT_MAX must be a positive integer (got '%s')", raw))
		} else {
			cfg.TurnRateLimitMax = max
		}
	}
	cfg.TurnRateLimitWindowSec = DefaultTurnRateLimitWindowSec
	if raw := os.Getenv("TURN_RATE_LIMIT_WINDOW_SEC"); raw != "" {
		window, err := strconv.Atoi(raw)
		if err != nil || window < 1 {
			errs = append(errs, fmt.Sprintf("TURN_RATE_LIMIT_WINDOW_SEC must be a positive integer (got '%s')", raw))
		} else {
			cfg.TurnRateLimitWindowSec = window
		}
	}

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = os.Getenv("GO_ENV")
	if cfg.GoEnv == "" {
		cfg.GoEnv = "production"
	}

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"

	// Optional: OTEL_COLLECTOR_ADDR enables trace export when set
	cfg.OtelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")
	if cfg.OtelCollectorAddr != "" && !isValidHostPort(cfg.OtelCollectorAddr) {
		errs = append(errs, fmt.Sprintf("OTEL_COLLECTOR_ADDR must be in format 'host:port' (got '%s')", cfg.OtelCollectorAddr))
	}
	cfg.OtelInsecure = os.Getenv("OTEL_INSECURE") == "true"

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return cfg, nil
}

// parseURLList splits a comma-separated URI list, trimming whitespace and
// dropping duplicates while keeping first-seen order.
func parseURLList(raw string) []string {
	if raw == "" {
		return nil
	}
	seen := set.New[string]()
	var urls []string
	for _, u := range strings.Split(raw, ",") {
		u = strings.TrimSpace(u)
		if u == "" || seen.Has(u) {
			continue
		}
		seen.Insert(u)
		urls = append(urls, u)
	}
	return urls
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	return parts[0] != ""
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
