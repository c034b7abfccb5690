// Package config loads observer configuration from a yaml file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Management ManagementConfig `koanf:"management"`
	Poll       PollConfig       `koanf:"poll"`
	Collection CollectionConfig `koanf:"collection"`
	Archive    ArchiveConfig    `koanf:"archive"`
	Features   FeatureConfig    `koanf:"features"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type ManagementConfig struct {
	BaseURL string `koanf:"base_url"`
	Key     string `koanf:"key"` // bearer token; empty means unauthenticated
}

// PollConfig holds the polling cadences, in seconds. The defaults are
// calibrated against the management API and rarely need changing.
type PollConfig struct {
	HistorySeconds          int `koanf:"history_seconds"`
	LogsSeconds             int `koanf:"logs_seconds"`
	EvidenceThrottleSeconds int `koanf:"evidence_throttle_seconds"`
	HistoryLimit            int `koanf:"history_limit"`
	LogLimit                int `koanf:"log_limit"`
}

type CollectionConfig struct {
	RequestBound int `koanf:"request_bound"`
	LogBound     int `koanf:"log_bound"`
}

type ArchiveConfig struct {
	Path string `koanf:"path"` // empty disables the sqlite archive
}

type FeatureConfig struct {
	// Observability gates the focus-filter stage of the display pipeline.
	Observability bool `koanf:"observability"`
}

// Load reads configuration from path (a missing file is fine) and QUOTIO_*
// environment variables, then applies defaults and validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("QUOTIO_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "QUOTIO_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Management.BaseURL == "" {
		return nil, fmt.Errorf("management.base_url is required")
	}
	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":                    8416,
		"poll.history_seconds":           10,
		"poll.logs_seconds":              2,
		"poll.evidence_throttle_seconds": 5,
		"poll.history_limit":             200,
		"poll.log_limit":                 200,
		"collection.request_bound":       1000,
		"collection.log_bound":           1000,
		"features.observability":         true,
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}
}
