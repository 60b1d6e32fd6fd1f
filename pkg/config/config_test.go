// Copyright © 2024 Bank-Vaults Maintainers
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("log_level: warn\ndefault_backend: sqlite\nflush_delay: 2s\n"), 0o600))

	tests := []struct {
		name       string
		env        map[string]string
		wantConfig *Config
	}{
		{
			name: "Valid configuration",
			env: map[string]string{
				LogLevelEnv:       "debug",
				JSONLogEnv:        "true",
				LogServerEnv:      "http://localhost:8080",
				DefaultBackendEnv: "memory",
				FlushDelayEnv:     "1s",
			},
			wantConfig: &Config{
				LogLevel:       "debug",
				JSONLog:        true,
				LogServer:      "http://localhost:8080",
				DefaultBackend: "memory",
				FlushDelay:     time.Second,
			},
		},
		{
			name: "Defaults",
			env:  map[string]string{},
			wantConfig: &Config{
				LogLevel:   "info",
				FlushDelay: 500 * time.Millisecond,
			},
		},
		{
			name: "Config file overridden by environment",
			env: map[string]string{
				ConfigFileEnv: configFile,
				JSONLogEnv:    "true",
				FlushDelayEnv: "3s",
			},
			wantConfig: &Config{
				LogLevel:       "warn",
				JSONLog:        true,
				DefaultBackend: "sqlite",
				FlushDelay:     3 * time.Second,
			},
		},
	}

	for _, tt := range tests {
		ttp := tt
		t.Run(ttp.name, func(t *testing.T) {
			for envKey, envVal := range ttp.env {
				t.Setenv(envKey, envVal)
			}

			config, err := LoadConfig()
			assert.NoError(t, err, "Unexpected error")

			assert.Equal(t, ttp.wantConfig, config, "Unexpected config")
		})
	}
}

func TestConfigInvalidFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("log_level: [unclosed\n"), 0o600))
	t.Setenv(ConfigFileEnv, configFile)

	_, err := LoadConfig()
	assert.Error(t, err)
}
