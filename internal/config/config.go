// Package config loads the dashboard's runtime configuration from the
// environment, with an optional .env file for local development.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/voicebotai/dashboard/internal/elevenlabs"
)

func init() {
	// Auto-load .env file if present (don't override existing env vars)
	loadDotEnv(".env")
}

func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		// Remove surrounding quotes
		if len(val) >= 2 && ((val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'')) {
			val = val[1 : len(val)-1]
		}
		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

const (
	defaultPort         = "8080"
	defaultEnvironment  = "development"
	defaultSyncInterval = 24 * time.Hour
	defaultSyncWorkers  = 4
)

type SyncConfig struct {
	Enabled  bool
	Interval time.Duration
	PageSize int
	MaxPages int
	Workers  int
}

type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
}

type Config struct {
	Port        string
	DatabaseURL string
	Environment string
	APIToken    string
	ElevenLabs  ElevenLabsConfig
	Sync        SyncConfig
}

func Load() (Config, error) {
	cfg := Config{
		Port:        firstNonEmpty(strings.TrimSpace(os.Getenv("PORT")), defaultPort),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Environment: resolveEnvironment(),
		APIToken:    strings.TrimSpace(os.Getenv("DASHBOARD_API_TOKEN")),
		ElevenLabs: ElevenLabsConfig{
			APIKey: strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
			BaseURL: firstNonEmpty(
				strings.TrimSpace(os.Getenv("ELEVENLABS_BASE_URL")),
				elevenlabs.DefaultBaseURL,
			),
		},
	}

	syncEnabled, err := parseBool("SYNC_ENABLED", true)
	if err != nil {
		return Config{}, err
	}
	cfg.Sync.Enabled = syncEnabled

	syncInterval, err := parseDuration("SYNC_INTERVAL", defaultSyncInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.Sync.Interval = syncInterval

	pageSize, err := parseInt("SYNC_PAGE_SIZE", elevenlabs.DefaultPageSize)
	if err != nil {
		return Config{}, err
	}
	cfg.Sync.PageSize = pageSize

	maxPages, err := parseInt("SYNC_MAX_PAGES", elevenlabs.DefaultMaxPages)
	if err != nil {
		return Config{}, err
	}
	cfg.Sync.MaxPages = maxPages

	workers, err := parseInt("SYNC_WORKERS", defaultSyncWorkers)
	if err != nil {
		return Config{}, err
	}
	cfg.Sync.Workers = workers

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("SYNC_PAGE_SIZE must be greater than zero")
	}
	if c.Sync.MaxPages <= 0 {
		return fmt.Errorf("SYNC_MAX_PAGES must be greater than zero")
	}
	if c.Sync.Workers <= 0 {
		return fmt.Errorf("SYNC_WORKERS must be greater than zero")
	}
	if isNonDevelopment(c.Environment) && c.APIToken == "" {
		return fmt.Errorf("DASHBOARD_API_TOKEN is required outside development")
	}
	return nil
}

func resolveEnvironment() string {
	return strings.ToLower(firstNonEmpty(
		strings.TrimSpace(os.Getenv("APP_ENV")),
		strings.TrimSpace(os.Getenv("ENVIRONMENT")),
		strings.TrimSpace(os.Getenv("GO_ENV")),
		defaultEnvironment,
	))
}

func isNonDevelopment(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "dev", "development", "local", "test":
		return false
	default:
		return true
	}
}

func parseBool(name string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}

	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s must be a boolean value", name)
	}
}

func parseDuration(name string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", name, err)
	}

	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", name)
	}

	return parsed, nil
}

func parseInt(name string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", name, err)
	}
	return parsed, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
