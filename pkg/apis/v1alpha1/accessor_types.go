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

package v1alpha1

import (
	"time"

	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

var (
	DefaultFlushDelay   = 500 * time.Millisecond
	DefaultSyncSchedule = "@every 1m"
)

// AccessorSpec defines an arbitrary settings accessor.
type AccessorSpec struct {
	// Used to derive default storage locations.
	// Optional for factories that receive the owner separately.
	Owner Owner `json:"owner,omitempty"`

	// Used to configure how long local changes are buffered before they are
	// written to the backend. Defaults to DefaultFlushDelay.
	// Optional
	FlushDelay string `json:"flushDelay,omitempty"`

	// Used to configure schedule for pulling external changes.
	// The schedule is in Cron format, see https://en.wikipedia.org/wiki/Cron
	// Defaults to DefaultSyncSchedule
	// Optional
	SyncSchedule string `json:"syncSchedule,omitempty"`

	// Used to configure settings provider.
	// Required
	Provider AccessorProvider `json:"provider"`
}

func (spec *AccessorSpec) GetFlushDelay() time.Duration {
	if spec.FlushDelay == "" {
		return DefaultFlushDelay
	}
	delay, err := time.ParseDuration(spec.FlushDelay)
	if err != nil || delay < 0 {
		logrus.Errorf("using default FlushDelay %s due to parse error: %v", DefaultFlushDelay, err)
		return DefaultFlushDelay
	}
	return delay
}

func (spec *AccessorSpec) GetSyncSchedule() string {
	if spec.SyncSchedule == "" {
		return DefaultSyncSchedule
	}
	if _, err := cron.ParseStandard(spec.SyncSchedule); err != nil {
		logrus.Errorf("using default SyncSchedule %s due to parse error: %v", DefaultSyncSchedule, err)
		return DefaultSyncSchedule
	}
	return spec.SyncSchedule
}

// AccessorProvider defines which settings provider to use.
// Only one can be specified.
type AccessorProvider struct {
	// Used for local YAML file provider.
	File *AccessorProviderFile `json:"file,omitempty"`

	// Used for local SQLite provider.
	SQLite *AccessorProviderSQLite `json:"sqlite,omitempty"`

	// Used for Vault provider.
	Vault *AccessorProviderVault `json:"vault,omitempty"`

	// Used for Kubernetes ConfigMap provider.
	Kubernetes *AccessorProviderKubernetes `json:"kubernetes,omitempty"`

	// Used for platform-native preferences provider.
	Native *AccessorProviderNative `json:"native,omitempty"`

	// Used for in-process memory provider.
	Memory *AccessorProviderMemory `json:"memory,omitempty"`
}

// AccessorProviderFile defines provider for a local YAML file.
type AccessorProviderFile struct {
	// Defaults to <user config dir>/<organization>/<application>.yaml
	Path string `json:"path,omitempty"`

	// Disables filesystem notifications, changes are only detected on Sync.
	DisableWatch bool `json:"disableWatch,omitempty"`
}

// AccessorProviderSQLite defines provider for a local SQLite database.
type AccessorProviderSQLite struct {
	// Defaults to <user config dir>/<organization>/<application>.db
	// Use ":memory:" for a private in-memory database.
	Path string `json:"path,omitempty"`

	// Used to configure how often the database is checked for commits
	// made by other connections. Defaults to 2s, negative disables polling.
	PollInterval string `json:"pollInterval,omitempty"`
}

// AccessorProviderVault defines provider for a Vault KV v2 secrets engine.
type AccessorProviderVault struct {
	// Defaults to VAULT_ADDR.
	Address string `json:"address,omitempty"`

	// KV v2 mount, e.g. "secret".
	MountPath string `json:"mount-path"`

	// Defaults to <organization>/<application>.
	Prefix string `json:"prefix,omitempty"`

	Role      string `json:"role,omitempty"`
	AuthPath  string `json:"auth-path,omitempty"`
	TokenPath string `json:"token-path,omitempty"`
	Token     string `json:"token,omitempty"`
}

// AccessorProviderKubernetes defines provider for a Kubernetes ConfigMap.
type AccessorProviderKubernetes struct {
	// Uses in-cluster config when empty.
	ConfigPath string `json:"config-path,omitempty"`

	Namespace string `json:"namespace"`

	// Defaults to <application>-settings.
	Name string `json:"name,omitempty"`
}

// AccessorProviderNative defines provider for platform-native preferences.
type AccessorProviderNative struct {
	// Used on macOS as the defaults domain. Defaults to com.<organization>.<application>.
	Domain string `json:"domain,omitempty"`
}

// AccessorProviderMemory defines provider for process memory.
type AccessorProviderMemory struct {
	// Accessors with the same location share their entries.
	// Defaults to the owner name.
	Location string `json:"location,omitempty"`
}
