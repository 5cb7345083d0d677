// Package config loads interviewpro settings from JSONC files and the
// environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/tidwall/jsonc"
)

// UserConfigPath returns ~/.config/interviewpro/interviewpro.jsonc (or the
// platform equivalent).
func UserConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "interviewpro", "interviewpro.jsonc"), nil
}

// Load reads and merges configuration.
// Resolution order: defaults → user config → the file at path (if non-empty)
// → environment overrides. A missing user config is not an error; a missing
// explicit file is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if userPath, err := UserConfigPath(); err == nil {
		if userMap, err := loadJSONC(userPath); err == nil {
			if err := mergeIntoConfig(&cfg, userMap); err != nil {
				return nil, fmt.Errorf("merging user config: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if path != "" {
		m, err := loadJSONC(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		if err := mergeIntoConfig(&cfg, m); err != nil {
			return nil, fmt.Errorf("merging %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// loadJSONC reads a JSONC file and returns it as a map.
func loadJSONC(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}

// mergeIntoConfig round-trips cfg through a map so src can be deep-merged
// over it with mergo.
func mergeIntoConfig(cfg *Config, src map[string]any) error {
	cfgBytes, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var dst map[string]any
	if err := json.Unmarshal(cfgBytes, &dst); err != nil {
		return err
	}

	if err := mergo.Merge(&dst, src, mergo.WithOverride); err != nil {
		return err
	}

	merged, err := json.Marshal(dst)
	if err != nil {
		return err
	}
	return json.Unmarshal(merged, cfg)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.Model.APIKey = key
	} else if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		cfg.Model.APIKey = key
	}
	if p := os.Getenv("INTERVIEWPRO_PROVIDER"); p != "" {
		cfg.Model.Provider = strings.ToLower(p)
	}
	if m := os.Getenv("INTERVIEWPRO_MODEL"); m != "" {
		cfg.Model.Name = m
	}
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
