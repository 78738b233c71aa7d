// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/medisphere/labrisk/internal/labanalysis"
)

// Store backends.
const (
	StoreMemory    = "memory"
	StoreFirestore = "firestore"
	StorePostgres  = "postgres"
)

// Default is 8111 to avoid conflicts with other local services.
const defaultPort = "8111"

var defaultOrigins = []string{"http://localhost:1234", "http://127.0.0.1:1234"}

type Config struct {
	Port string

	Analysis labanalysis.Config

	StoreBackend string
	ProjectID    string
	// CredentialsFile is optional; Google clients fall back to ADC.
	CredentialsFile string
	DatabaseURL     string

	ArchiveBucket string

	AlgoliaAppID     string
	AlgoliaAPIKey    string
	AlgoliaIndexName string

	FCMEnabled    bool
	AlertMinLevel labanalysis.Level

	AllowedOrigins []string
}

// SearchEnabled reports whether the Algolia index is configured.
func (c *Config) SearchEnabled() bool {
	return c.AlgoliaAppID != "" && c.AlgoliaAPIKey != ""
}

// Load reads a local .env file when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		Port: get("PORT", defaultPort),
		Analysis: labanalysis.Config{
			Provider: strings.ToLower(get("LAB_AI_PROVIDER", labanalysis.ProviderRuleOnly)),
			Endpoint: get("LAB_AI_ENDPOINT", ""),
			APIKey:   get("LAB_AI_API_KEY", ""),
			Model:    get("LAB_AI_MODEL", ""),
		},
		StoreBackend:     strings.ToLower(get("STORE_BACKEND", StoreMemory)),
		ProjectID:        get("GOOGLE_CLOUD_PROJECT", ""),
		CredentialsFile:  get("GOOGLE_APPLICATION_CREDENTIALS", ""),
		DatabaseURL:      get("DATABASE_URL", ""),
		ArchiveBucket:    get("ARCHIVE_BUCKET", ""),
		AlgoliaAppID:     get("ALGOLIA_APP_ID", ""),
		AlgoliaAPIKey:    get("ALGOLIA_API_KEY", ""),
		AlgoliaIndexName: get("ALGOLIA_INDEX_NAME", "lab_analyses"),
		AlertMinLevel:    labanalysis.LevelHigh,
		AllowedOrigins:   defaultOrigins,
	}

	if raw := get("LAB_AI_TIMEOUT", ""); raw != "" {
		d, err := parseTimeout(raw)
		if err != nil {
			return nil, fmt.Errorf("LAB_AI_TIMEOUT: %w", err)
		}
		cfg.Analysis.Timeout = d
	}

	if raw := get("FCM_ENABLED", ""); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("FCM_ENABLED: %w", err)
		}
		cfg.FCMEnabled = enabled
	}

	if raw := get("ALERT_MIN_LEVEL", ""); raw != "" {
		level, ok := labanalysis.ParseLevel(raw)
		if !ok {
			return nil, fmt.Errorf("ALERT_MIN_LEVEL: unknown level %q", raw)
		}
		cfg.AlertMinLevel = level
	}

	if raw := get("CORS_ALLOWED_ORIGINS", ""); raw != "" {
		cfg.AllowedOrigins = nil
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseTimeout accepts a Go duration ("30s") or a number of seconds ("30").
func parseTimeout(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("must be positive, got %d", secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StoreFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required when STORE_BACKEND=firestore")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.FCMEnabled && c.ProjectID == "" {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required when FCM_ENABLED=true")
	}
	if (c.AlgoliaAppID == "") != (c.AlgoliaAPIKey == "") {
		return fmt.Errorf("ALGOLIA_APP_ID and ALGOLIA_API_KEY must be set together")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	return nil
}
