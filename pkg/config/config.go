// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package config loads loomcat's runtime configuration.
//
// Priority: env vars (LOOMCAT_*) > config file > defaults. The CLI's own
// flags (e.g. --root) are applied by the commands on top of the loaded values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is the config file basename, without extension.
const DefaultConfigFileName = "loomcat"

// Config holds all configuration for the correlation engine.
type Config struct {
	// DataDir is computed from LOOMCAT_DATA_DIR (or ~/.loomcat) and is not
	// itself loaded from the config file.
	DataDir string `mapstructure:"-"`

	// SessionRoot overrides the discovered transcript root
	// (sessionindex.Root's result) when non-empty.
	SessionRoot string `mapstructure:"session_root"`

	// AutoCompactEnabled records whether auto-compaction is on (default
	// true). It corresponds to tokenacct.AutoCompactLimit when true and
	// tokenacct.NoAutoCompactLimit when false; nothing in this module reads
	// it to pick a limit.
	AutoCompactEnabled bool `mapstructure:"auto_compact_enabled"`

	// HookStorePath is the sqlite file backing the ephemeral hook-response
	// store (component F). Empty means no hook store is opened and bundles
	// come from the transcript alone.
	HookStorePath string `mapstructure:"hook_store_path"`

	Logging LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig controls the shared zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GetDataDir returns the loomcat data directory.
//
// Priority: LOOMCAT_DATA_DIR env var, then ~/.loomcat. Read directly from
// os.Getenv rather than viper to avoid a circular dependency during config
// bootstrap (the config file itself lives under this directory).
func GetDataDir() string {
	if dir := os.Getenv("LOOMCAT_DATA_DIR"); dir != "" {
		return expandPath(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".loomcat"
	}
	return filepath.Join(home, ".loomcat")
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return path
}

// Load reads configuration from cfgFile (if non-empty), falling back to
// loomcat.yaml in the data directory, the current directory, or
// /etc/loomcat/, then overlays LOOMCAT_*-prefixed environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(GetDataDir())
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/loomcat/")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix("LOOMCAT")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.DataDir = GetDataDir()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("auto_compact_enabled", true)
	v.SetDefault("session_root", "")
	v.SetDefault("hook_store_path", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
