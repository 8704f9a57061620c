package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays EVSTORE_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v, ok := list("EVSTORE_PUSH_ALLOWLIST"); ok {
		cfg.Init.PushAllowlist = v
	}
	if v, ok := list("EVSTORE_READ_ALLOWLIST"); ok {
		cfg.Init.ReadAllowlist = v
	}
	if v, ok := list("EVSTORE_REMOVE_ALLOWLIST"); ok {
		cfg.Init.RemoveAllowlist = v
	}
	if v := os.Getenv("EVSTORE_GRANULARITY_MS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Init.GranularityMs = n
		}
	}
	if v := os.Getenv("EVSTORE_REMOVAL_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Init.Removal.Enabled = b
		}
	}
	if v := os.Getenv("EVSTORE_DEDUP_WINDOW_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.DedupWindowMs = n
		}
	}
	if v := os.Getenv("EVSTORE_HEARTBEAT_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.HeartbeatIntervalMs = n
		}
	}
	if v := os.Getenv("EVSTORE_MIGRATION_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MigrationBatchSize = n
		}
	}
	if v := os.Getenv("EVSTORE_READ_MAX_LENGTH"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.ReadMaxLength = n
		}
	}
	if v := os.Getenv("EVSTORE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("EVSTORE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func list(key string) ([]string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil, false
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}
