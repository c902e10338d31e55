// Package config loads and validates process configuration: Load checks
// each required value in turn, failing fast on missing
// required values in production and logging what was loaded without
// leaking secret values. Trimmed to this module's actual surface: the
// OT/session/permission tunables plus the one secret this module handles,
// JWT_SIGNING_KEY (verification only — see internal/authctx).
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvStaging     = "staging"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

const (
	DefaultMaxInheritanceDepth = 5
	DefaultBroadcastBuffer     = 1000
	MinJWTSigningKeyLength     = 32
)

// Config holds validated process configuration.
type Config struct {
	Environment  string
	IsProduction bool

	DatabaseURL string
	RedisURL    string

	JWTSigningKey string

	MaxInheritanceDepth    int
	BroadcastBuffer        int
	SessionIdleTimeoutSecs int // 0 disables the idle sweep

	HTTPAddr string
}

// ValidationError collects every problem found while loading Config. In
// production, a non-empty Missing or Invalid list is fatal; in development
// the same problems are reported as Warnings and loading proceeds with
// defaults, with a dev-vs-prod severity split.
type ValidationError struct {
	Missing  []string
	Invalid  []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required config: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, fmt.Sprintf("invalid config: %s", strings.Join(e.Invalid, ", ")))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Missing) > 0 || len(e.Invalid) > 0
}

// Load reads .env (if present) then the environment, validates, and
// returns a Config. Callers in cmd/server MUST treat a non-nil error as
// fatal in production.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env present but unreadable: %v", err)
	}

	env := getEnvironment()
	isProduction := env == EnvProduction

	cfg := &Config{
		Environment:            env,
		IsProduction:           isProduction,
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisURL:               os.Getenv("REDIS_URL"),
		JWTSigningKey:          os.Getenv("JWT_SIGNING_KEY"),
		MaxInheritanceDepth:    intEnv("MAX_INHERITANCE_DEPTH", DefaultMaxInheritanceDepth),
		BroadcastBuffer:        intEnv("BROADCAST_BUFFER", DefaultBroadcastBuffer),
		SessionIdleTimeoutSecs: intEnv("SESSION_IDLE_TIMEOUT_SECS", 0),
		HTTPAddr:               envOrDefault("HTTP_ADDR", ":8080"),
	}

	verr := &ValidationError{}

	if cfg.DatabaseURL == "" {
		report(verr, "DATABASE_URL", isProduction, "no database configured")
	}
	if cfg.JWTSigningKey == "" {
		report(verr, "JWT_SIGNING_KEY", isProduction, "bearer tokens cannot be verified")
	} else if len(cfg.JWTSigningKey) < MinJWTSigningKeyLength {
		verr.Warnings = append(verr.Warnings, fmt.Sprintf("JWT_SIGNING_KEY shorter than recommended (%d chars, recommend %d+)", len(cfg.JWTSigningKey), MinJWTSigningKeyLength))
		if isProduction {
			verr.Invalid = append(verr.Invalid, "JWT_SIGNING_KEY: too short")
		}
	}

	for _, w := range verr.Warnings {
		log.Printf("config: warning: %s", w)
	}

	logLoaded(cfg)

	if verr.HasErrors() {
		return nil, verr
	}
	return cfg, nil
}

func report(verr *ValidationError, name string, isProduction bool, reason string) {
	if isProduction {
		verr.Missing = append(verr.Missing, name)
		return
	}
	verr.Warnings = append(verr.Warnings, fmt.Sprintf("%s not set: %s (allowed outside production)", name, reason))
}

// logLoaded logs what was loaded without ever printing secret values.
func logLoaded(cfg *Config) {
	log.Printf("config: environment=%s max_inheritance_depth=%d broadcast_buffer=%d session_idle_timeout_secs=%d",
		cfg.Environment, cfg.MaxInheritanceDepth, cfg.BroadcastBuffer, cfg.SessionIdleTimeoutSecs)
	log.Printf("config: database_url=%s redis_url=%s jwt_signing_key=%s",
		presence(cfg.DatabaseURL), presence(cfg.RedisURL), presence(cfg.JWTSigningKey))
}

func presence(v string) string {
	if v == "" {
		return "[not set]"
	}
	return "[set]"
}

func getEnvironment() string {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		env = os.Getenv("ENV")
	}
	if env == "" {
		env = EnvDevelopment
	}
	return strings.ToLower(env)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: %s=%q is not an integer, using default %d", key, v, def)
		return def
	}
	return n
}
