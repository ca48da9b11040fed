// Package config provides configuration loading for the resolver service.
// It handles environment variable parsing and provides default values for all settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package initialization.
// godotenv.Load does not override variables that are already set, so the
// process environment always wins over .env and .env.local.
func init() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}

	// Load .env.local if it exists (for local overrides, gitignored)
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for the resolver service.
type Config struct {
	Env            string // Deployment environment (dev, staging, prod)
	Address        string // HTTP server address (e.g., ":8080")
	MetricsAddress string // Metrics server address (e.g., ":9090")

	CacheBackend  string        // Resolution cache backend (none, memory, bolt)
	CachePath     string        // bbolt file used when CacheBackend is bolt
	CacheTTL      time.Duration // Lifetime of a cached resolution
	CacheFailures bool          // Whether failed resolutions are cached

	RegistryBackend string // Document registry backend (memory, postgres)
	RegistryDSN     string // PostgreSQL connection string
	RegistryMethod  string // DID method served from the registry

	UniversalResolverURL string   // Base URL of a universal resolver; empty disables it
	UniversalMethods     []string // DID methods routed to the universal resolver
}

// Default configuration values used when environment variables are not set
const (
	defaultAddress        = ":8080"
	defaultMetricsAddress = ":9090"
	defaultCacheBackend   = "memory"
	defaultCachePath      = "resolver-cache.db"
	defaultCacheTTL       = 15 * time.Minute
	defaultRegistry       = "memory"
	defaultRegistryMethod = "plc"
)

// Load reads environment variables and produces a Config suitable for wiring the service.
// Returns an error if a value is present but invalid, or if a backend is
// selected without the settings it needs.
func Load() (Config, error) {
	cfg := Config{
		Env:             getEnv("RESOLVER_ENV", "dev"),
		Address:         getEnv("RESOLVER_HTTP_ADDR", defaultAddress),
		MetricsAddress:  getEnv("RESOLVER_METRICS_ADDR", defaultMetricsAddress),
		CacheBackend:    strings.ToLower(getEnv("RESOLVER_CACHE_BACKEND", defaultCacheBackend)),
		CachePath:       getEnv("RESOLVER_CACHE_PATH", defaultCachePath),
		CacheTTL:        defaultCacheTTL,
		CacheFailures:   true,
		RegistryBackend: strings.ToLower(getEnv("RESOLVER_REGISTRY_BACKEND", defaultRegistry)),
		RegistryDSN:     os.Getenv("RESOLVER_REGISTRY_DSN"),
		RegistryMethod:  strings.ToLower(getEnv("RESOLVER_REGISTRY_METHOD", defaultRegistryMethod)),

		UniversalResolverURL: strings.TrimSpace(os.Getenv("RESOLVER_UNIVERSAL_URL")),
		UniversalMethods:     splitList(getEnv("RESOLVER_UNIVERSAL_METHODS", "web")),
	}

	if ttl, exists := os.LookupEnv("RESOLVER_CACHE_TTL_SECONDS"); exists {
		d, err := parseSeconds(ttl)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RESOLVER_CACHE_TTL_SECONDS: %w", err)
		}
		cfg.CacheTTL = d
	}

	if raw, exists := os.LookupEnv("RESOLVER_CACHE_FAILURES"); exists {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RESOLVER_CACHE_FAILURES: %w", err)
		}
		cfg.CacheFailures = b
	}

	switch cfg.CacheBackend {
	case "none", "memory":
	case "bolt":
		if cfg.CachePath == "" {
			return Config{}, errors.New("RESOLVER_CACHE_PATH is required when RESOLVER_CACHE_BACKEND=bolt")
		}
	default:
		return Config{}, fmt.Errorf("invalid RESOLVER_CACHE_BACKEND %q (want none, memory or bolt)", cfg.CacheBackend)
	}

	switch cfg.RegistryBackend {
	case "memory":
	case "postgres":
		if cfg.RegistryDSN == "" {
			return Config{}, errors.New("RESOLVER_REGISTRY_DSN is required when RESOLVER_REGISTRY_BACKEND=postgres")
		}
	default:
		return Config{}, fmt.Errorf("invalid RESOLVER_REGISTRY_BACKEND %q (want memory or postgres)", cfg.RegistryBackend)
	}

	for _, m := range cfg.UniversalMethods {
		if m == cfg.RegistryMethod {
			return Config{}, fmt.Errorf("method %q cannot be served by both the registry and the universal resolver", m)
		}
	}

	return cfg, nil
}

// getEnv retrieves an environment variable value, returning a fallback if not set or empty
func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}

// splitList parses a comma separated list, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseSeconds converts a string representation of seconds to a time.Duration
// Returns an error if the value is not a valid positive integer
func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if seconds <= 0 {
		return 0, errors.New("value must be > 0")
	}
	return time.Duration(seconds) * time.Second, nil
}
