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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
)

const (
	LogLevelEnv       = "SETTINGS_LOG_LEVEL"
	JSONLogEnv        = "SETTINGS_JSON_LOG"
	LogServerEnv      = "SETTINGS_LOG_SERVER"
	DefaultBackendEnv = "SETTINGS_DEFAULT_BACKEND"
	FlushDelayEnv     = "SETTINGS_FLUSH_DELAY"
	ConfigFileEnv     = "SETTINGS_CONFIG_FILE"
)

type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	JSONLog   bool   `mapstructure:"json_log"`
	LogServer string `mapstructure:"log_server"`

	// Name of the settings provider used for default accessors.
	// Empty selects the fallback file provider.
	DefaultBackend string `mapstructure:"default_backend"`

	// Applied to default accessors.
	FlushDelay time.Duration `mapstructure:"flush_delay"`
}

// LoadConfig reads configuration from environment variables and the optional
// config file named by SETTINGS_CONFIG_FILE. Environment variables take
// precedence over the file.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("json_log", false)
	v.SetDefault("log_server", "")
	v.SetDefault("default_backend", "")
	v.SetDefault("flush_delay", v1alpha1.DefaultFlushDelay)

	// Environment
	for key, env := range map[string]string{
		"log_level":       LogLevelEnv,
		"json_log":        JSONLogEnv,
		"log_server":      LogServerEnv,
		"default_backend": DefaultBackendEnv,
		"flush_delay":     FlushDelayEnv,
		"config_file":     ConfigFileEnv,
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	// File
	if configFile := v.GetString("config_file"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return config, nil
}
