package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	logpkg "github.com/rzbill/evstore/pkg/log"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// Init is stored on first start and ignored afterwards.
	Init InitConfig `json:"init" yaml:"init"`

	DedupWindowMs       int64  `json:"dedupWindowMs" yaml:"dedupWindowMs"`
	HeartbeatIntervalMs int64  `json:"heartbeatIntervalMs" yaml:"heartbeatIntervalMs"`
	MigrationBatchSize  int    `json:"migrationBatchSize" yaml:"migrationBatchSize"`
	ReadMaxLength       uint64 `json:"readMaxLength" yaml:"readMaxLength"`

	Log logpkg.Config `json:"log" yaml:"log"`
}

// InitConfig captures deployment-time settings.
type InitConfig struct {
	PushAllowlist   []string `json:"pushAllowlist" yaml:"pushAllowlist"`
	ReadAllowlist   []string `json:"readAllowlist" yaml:"readAllowlist"`
	RemoveAllowlist []string `json:"removeAllowlist" yaml:"removeAllowlist"`
	// GranularityMs buckets event timestamps; 0 disables bucketing.
	GranularityMs uint64        `json:"granularityMs" yaml:"granularityMs"`
	Removal       RemovalConfig `json:"removal" yaml:"removal"`
}

// RemovalConfig gates head removal of stored events.
type RemovalConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DedupWindowMs:       time.Hour.Milliseconds(),
		HeartbeatIntervalMs: 1000,
		MigrationBatchSize:  1000,
		ReadMaxLength:       10_000,
		Log:                 logpkg.Config{Level: "info", Format: "text"},
	}
}

// DedupWindow returns the dedup retention as a duration.
func (c Config) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowMs) * time.Millisecond
}

// HeartbeatInterval returns the runtime tick interval.
func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

// Validate rejects values the runtime cannot work with.
func (c Config) Validate() error {
	var errs []error
	if c.DedupWindowMs <= 0 {
		errs = append(errs, errors.New("dedupWindowMs must be positive"))
	}
	if c.HeartbeatIntervalMs <= 0 {
		errs = append(errs, errors.New("heartbeatIntervalMs must be positive"))
	}
	if c.MigrationBatchSize <= 0 {
		errs = append(errs, errors.New("migrationBatchSize must be positive"))
	}
	if c.ReadMaxLength == 0 {
		errs = append(errs, errors.New("readMaxLength must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
