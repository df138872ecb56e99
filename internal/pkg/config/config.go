package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	APIBaseURL string `env:"API_BASE_URL, default=http://localhost:8080"`
	Env        string `env:"ENV,          default=development"`
	LogLevel   string `env:"LOG_LEVEL,    default=info"`

	Cache CacheConfig
	Prefs PrefsConfig
	Popup PopupConfig
}

// CacheConfig configures the installable offline cache.
type CacheConfig struct {
	Enabled   bool   `env:"CACHE_ENABLED,    default=false"`
	RedisAddr string `env:"CACHE_REDIS_ADDR, default=localhost:6379"`
	RedisDB   int    `env:"CACHE_REDIS_DB,   default=0"`
	// Generation tags one versioned snapshot of the offline cache. Bumping
	// it invalidates every previously stored entry on activation.
	Generation string `env:"CACHE_GENERATION, default=v1"`
}

// PrefsConfig configures local per-principal preference persistence.
type PrefsConfig struct {
	SQLitePath string `env:"PREFS_SQLITE_PATH, default=timesheet-prefs.db"`
}

// PopupConfig configures the external-authorization popup flow.
type PopupConfig struct {
	PollInterval time.Duration `env:"POPUP_POLL_INTERVAL, default=500ms"`
	// MaxWait bounds how long Authorize polls before giving up. Zero means
	// no bound; cancellation is then up to the caller's context.
	MaxWait time.Duration `env:"POPUP_MAX_WAIT, default=0"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return &cfg
}
