package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Config holds the operator-tunable knobs for the demo shell. It is
// loaded the same way the rest of this codebase's tooling loads config:
// defaults, overlaid by a global user config, overlaid by a project
// config, overlaid by CLI flags — highest precedence last.
type Config struct {
	Workers               int    `json:"workers"`
	InitialSessionEntries uint64 `json:"initial_session_entries"`
	AllocatorBlockBytes   int    `json:"allocator_block_bytes"`
	SnapshotPath          string `json:"snapshot_path,omitempty"`
}

const configFileName = ".lbcoreshell.json"

func defaultConfig() Config {
	return Config{
		Workers:               4,
		InitialSessionEntries: 1 << 16,
		AllocatorBlockBytes:   4 << 20,
		SnapshotPath:          "lbcoreshell.snapshot.json",
	}
}

func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "lbcoreshell", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "lbcoreshell", "config.json")
	}

	return ""
}

// loadConfig loads defaults, then the global config (if present), then
// the project config at configPath (if non-empty and present).
func loadConfig(env map[string]string, configPath string) (Config, error) {
	cfg := defaultConfig()

	if path := globalConfigPath(env); path != "" {
		overlay, loaded, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = mergeConfig(cfg, overlay)
		}
	}

	if configPath != "" {
		overlay, loaded, err := loadConfigFile(configPath)
		if err != nil {
			return Config{}, err
		}

		if !loaded {
			return Config{}, fmt.Errorf("config file not found: %s", configPath)
		}

		cfg = mergeConfig(cfg, overlay)
	}

	return cfg, nil
}

func loadConfigFile(path string) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("read %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("invalid JSONC in %s: %w", path, err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	return cfg, true, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.Workers != 0 {
		base.Workers = overlay.Workers
	}

	if overlay.InitialSessionEntries != 0 {
		base.InitialSessionEntries = overlay.InitialSessionEntries
	}

	if overlay.AllocatorBlockBytes != 0 {
		base.AllocatorBlockBytes = overlay.AllocatorBlockBytes
	}

	if overlay.SnapshotPath != "" {
		base.SnapshotPath = overlay.SnapshotPath
	}

	return base
}
