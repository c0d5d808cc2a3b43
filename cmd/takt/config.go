package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all takt configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath           string `json:"db_path"`
	LogLevel         string `json:"log_level"`
	LogFormat        string `json:"log_format"` // "text" or "json"
	PoolSize         int    `json:"pool_size"`
	KBPath           string `json:"kb_path"`
	MasterDataPath   string `json:"master_data_path"`
	SnapshotDir      string `json:"snapshot_dir"`
	RegistryURL      string `json:"registry_url"`
	ContainerURL     string `json:"container_url"`
	SimURL           string `json:"sim_url"`
	BackendTimeout   string `json:"backend_timeout"`
	MetricsAddr      string `json:"metrics_addr"`
	SchedulerEnabled bool   `json:"scheduler_enabled"`
}

func defaultConfig() Config {
	return Config{
		DBPath:           filepath.Join(taktDir(), "takt.db"),
		LogLevel:         "info",
		LogFormat:        "text",
		PoolSize:         10,
		BackendTimeout:   "30s",
		SchedulerEnabled: true,
	}
}

func taktDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".takt"
	}
	return filepath.Join(home, ".takt")
}

func settingsPath() string {
	return filepath.Join(taktDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("TAKT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("TAKT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TAKT_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("TAKT_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("TAKT_KB_PATH"); v != "" {
		cfg.KBPath = v
	}
	if v := os.Getenv("TAKT_MASTER_DATA_PATH"); v != "" {
		cfg.MasterDataPath = v
	}
	if v := os.Getenv("TAKT_SNAPSHOT_DIR"); v != "" {
		cfg.SnapshotDir = v
	}
	if v := os.Getenv("TAKT_REGISTRY_URL"); v != "" {
		cfg.RegistryURL = v
	}
	if v := os.Getenv("TAKT_CONTAINER_URL"); v != "" {
		cfg.ContainerURL = v
	}
	if v := os.Getenv("TAKT_SIM_URL"); v != "" {
		cfg.SimURL = v
	}
	if v := os.Getenv("TAKT_BACKEND_TIMEOUT"); v != "" {
		cfg.BackendTimeout = v
	}
	if v := os.Getenv("TAKT_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("TAKT_SCHEDULER_ENABLED"); v != "" {
		cfg.SchedulerEnabled = v == "true" || v == "1"
	}

	return cfg
}

// backendTimeout parses the configured backend timeout, falling back to 30s.
func (c Config) backendTimeout() time.Duration {
	d, err := time.ParseDuration(c.BackendTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
