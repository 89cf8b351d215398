package sessionguard

import (
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// Config is the complete guard configuration.
//
// Use [DefaultConfig] or [ConfigFromEnv] as a starting point; zero values are
// not valid for every field.
type Config struct {
	Backend   BackendConfig
	Storage   StorageConfig
	Bootstrap BootstrapConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig locates the hosted backend and tunes the auth client.
type BackendConfig struct {
	URL                string
	AnonKey            string
	LockAcquireTimeout time.Duration
	ExpiryMargin       time.Duration
	AutoRefresh        bool
	AutoRefreshTick    time.Duration
	// JWTSecret enables local signature checks of access tokens. Leave it empty
	// on devices; it is meant for self-hosted test backends.
	JWTSecret string
}

// Configured reports whether both the URL and the anon key are set.
func (b BackendConfig) Configured() bool {
	return b.URL != "" && b.AnonKey != ""
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageKind selects where the session is persisted.
type StorageKind string

const (
	StorageMemory StorageKind = "memory"
	StorageFile   StorageKind = "file"
	StorageRedis  StorageKind = "redis"
)

// StorageConfig selects and configures the persisted session store.
type StorageConfig struct {
	Kind       StorageKind
	StorageKey string

	// file
	Path       string
	Passphrase string

	// redis
	RedisAddr   string
	RedisPrefix string
	Retention   time.Duration
}

/*
====================================
BOOTSTRAP CONFIG
====================================
*/

// BootstrapConfig bounds the initial session fetch.
type BootstrapConfig struct {
	// MaxFetchAttempts caps fetch attempts, including the first.
	MaxFetchAttempts int
	// BackoffStep is multiplied by the attempt number to get the wait before
	// the next attempt.
	BackoffStep time.Duration
}

// AuditConfig controls asynchronous audit delivery.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// LogConfig controls the logger built by [NewLogger].
type LogConfig struct {
	Level string
	JSON  bool
}

// DefaultConfig returns the defaults: four fetch attempts with a 200ms
// backoff step, in-memory storage, metrics on, audit off.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			LockAcquireTimeout: 5 * time.Second,
			ExpiryMargin:       90 * time.Second,
			AutoRefreshTick:    30 * time.Second,
		},
		Storage: StorageConfig{
			Kind:        StorageMemory,
			StorageKey:  "sb-auth-token",
			RedisPrefix: "sg",
			Retention:   24 * time.Hour,
		},
		Bootstrap: BootstrapConfig{
			MaxFetchAttempts: 4,
			BackoffStep:      200 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 64,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Backend.URL != "" {
		u, err := url.Parse(c.Backend.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: backend URL %q is not absolute", ErrInvalidConfig, c.Backend.URL)
		}
	}
	if c.Backend.LockAcquireTimeout <= 0 {
		return fmt.Errorf("%w: Backend.LockAcquireTimeout must be > 0", ErrInvalidConfig)
	}
	if c.Backend.ExpiryMargin < 0 {
		return fmt.Errorf("%w: Backend.ExpiryMargin must be >= 0", ErrInvalidConfig)
	}
	if c.Backend.AutoRefresh && c.Backend.AutoRefreshTick <= 0 {
		return fmt.Errorf("%w: Backend.AutoRefreshTick must be > 0 when AutoRefresh is on", ErrInvalidConfig)
	}
	if c.Backend.JWTSecret != "" && len(c.Backend.JWTSecret) < 16 {
		return fmt.Errorf("%w: Backend.JWTSecret must be at least 16 bytes", ErrInvalidConfig)
	}

	switch c.Storage.Kind {
	case StorageMemory:
	case StorageFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: file storage requires Storage.Path", ErrInvalidConfig)
		}
		if len(c.Storage.Passphrase) < 8 {
			return fmt.Errorf("%w: file storage requires a passphrase of at least 8 bytes", ErrInvalidConfig)
		}
	case StorageRedis:
		if c.Storage.Retention < 0 {
			return fmt.Errorf("%w: Storage.Retention must be >= 0", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %w %q", ErrInvalidConfig, ErrUnknownStorage, c.Storage.Kind)
	}

	if c.Bootstrap.MaxFetchAttempts < 1 || c.Bootstrap.MaxFetchAttempts > 10 {
		return fmt.Errorf("%w: Bootstrap.MaxFetchAttempts must be in [1,10]", ErrInvalidConfig)
	}
	if c.Bootstrap.BackoffStep < 0 || c.Bootstrap.BackoffStep > 5*time.Second {
		return fmt.Errorf("%w: Bootstrap.BackoffStep must be in [0,5s]", ErrInvalidConfig)
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return fmt.Errorf("%w: Audit.BufferSize must be > 0 when audit is enabled", ErrInvalidConfig)
	}

	if c.Log.Level != "" {
		if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}
