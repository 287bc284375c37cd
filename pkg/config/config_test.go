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
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, key, value string) {
	t.Helper()
	original, had := os.LookupEnv(key)
	if value == "" {
		require.NoError(t, os.Unsetenv(key))
	} else {
		require.NoError(t, os.Setenv(key, value))
	}
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, original)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func TestGetDataDir(t *testing.T) {
	t.Run("default to ~/.loomcat", func(t *testing.T) {
		withEnv(t, "LOOMCAT_DATA_DIR", "")
		home, err := os.UserHomeDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".loomcat"), GetDataDir())
	})

	t.Run("honors LOOMCAT_DATA_DIR", func(t *testing.T) {
		withEnv(t, "LOOMCAT_DATA_DIR", "/custom/loomcat")
		assert.Equal(t, "/custom/loomcat", GetDataDir())
	})

	t.Run("expands tilde", func(t *testing.T) {
		withEnv(t, "LOOMCAT_DATA_DIR", "~/custom/.loomcat")
		home, err := os.UserHomeDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "custom", ".loomcat"), GetDataDir())
	})
}

func TestLoad_Defaults(t *testing.T) {
	withEnv(t, "LOOMCAT_DATA_DIR", "")
	withEnv(t, "LOOMCAT_AUTO_COMPACT_ENABLED", "")

	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "nonexistent.yaml"))
	// viper.SetConfigFile with an explicit, missing path still surfaces
	// ConfigFileNotFoundError only when the file is auto-discovered; an
	// explicit path that doesn't exist returns an *os.PathError wrapped by
	// viper, so fall back to path-based discovery for the defaults case.
	if err != nil {
		cfg, err = Load("")
		require.NoError(t, err)
	}
	require.NotNil(t, cfg)
	assert.True(t, cfg.AutoCompactEnabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	withEnv(t, "LOOMCAT_AUTO_COMPACT_ENABLED", "false")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.AutoCompactEnabled)
}
