package sessionguard

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names read by [ConfigFromEnv].
const (
	EnvBackendURL       = "SUPABASE_URL"
	EnvAnonKey          = "SUPABASE_ANON_KEY"
	EnvPublicBackendURL = "EXPO_PUBLIC_SUPABASE_URL"
	EnvPublicAnonKey    = "EXPO_PUBLIC_SUPABASE_ANON_KEY"
	EnvStorage          = "SESSIONGUARD_STORAGE"
	EnvStoragePath      = "SESSIONGUARD_STORAGE_PATH"
	EnvPassphrase       = "SESSIONGUARD_PASSPHRASE"
	EnvRedisAddr        = "REDIS_ADDR"
	EnvLogLevel         = "SESSIONGUARD_LOG_LEVEL"
	EnvLogJSON          = "SESSIONGUARD_LOG_JSON"
	EnvAutoRefresh      = "SESSIONGUARD_AUTO_REFRESH"
	EnvFetchAttempts    = "SESSIONGUARD_FETCH_ATTEMPTS"
	EnvBackoffStep      = "SESSIONGUARD_BACKOFF_STEP"
	EnvAudit            = "SESSIONGUARD_AUDIT"
)

// ConfigFromEnv starts from [DefaultConfig] and overrides it from the process
// environment. Malformed numeric values keep the default. The result is not
// validated.
func ConfigFromEnv() Config {
	cfg := defaultConfig()

	cfg.Backend.URL = envString(EnvBackendURL, envString(EnvPublicBackendURL, ""))
	cfg.Backend.AnonKey = envString(EnvAnonKey, envString(EnvPublicAnonKey, ""))
	cfg.Backend.AutoRefresh = envBool(EnvAutoRefresh, cfg.Backend.AutoRefresh)

	cfg.Storage.Kind = StorageKind(strings.ToLower(envString(EnvStorage, string(cfg.Storage.Kind))))
	cfg.Storage.Path = envString(EnvStoragePath, cfg.Storage.Path)
	cfg.Storage.Passphrase = envString(EnvPassphrase, cfg.Storage.Passphrase)
	cfg.Storage.RedisAddr = envString(EnvRedisAddr, cfg.Storage.RedisAddr)

	cfg.Bootstrap.MaxFetchAttempts = envInt(EnvFetchAttempts, cfg.Bootstrap.MaxFetchAttempts)
	cfg.Bootstrap.BackoffStep = envDuration(EnvBackoffStep, cfg.Bootstrap.BackoffStep)

	cfg.Audit.Enabled = envBool(EnvAudit, cfg.Audit.Enabled)

	cfg.Log.Level = envString(EnvLogLevel, cfg.Log.Level)
	cfg.Log.JSON = envBool(EnvLogJSON, cfg.Log.JSON)
	return cfg
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}
