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

package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/settings"
)

type Provider struct{}

var _ v1alpha1.Provider = &Provider{}

func (p *Provider) NewAccessor(_ context.Context, owner v1alpha1.Owner, spec v1alpha1.AccessorSpec) (v1alpha1.Accessor, error) {
	providerCfg := spec.Provider.SQLite

	path := providerCfg.Path
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user config dir: %w", err)
		}
		path = filepath.Join(configDir, filepath.Join(owner.Segments()...)+".db")
	}

	pollInterval, err := getPollInterval(providerCfg.PollInterval)
	if err != nil {
		return nil, err
	}

	driver, err := NewDriver(path, pollInterval)
	if err != nil {
		return nil, err
	}
	store, err := settings.New(driver, settings.WithFlushDelay(spec.GetFlushDelay()))
	if err != nil {
		driver.Close()
		return nil, err
	}
	return store, nil
}

func (p *Provider) Validate(spec v1alpha1.AccessorSpec) error {
	providerCfg := spec.Provider.SQLite
	if providerCfg == nil {
		return fmt.Errorf("empty .SQLite")
	}
	if providerCfg.Path == "" {
		if err := spec.Owner.Validate(); err != nil {
			return fmt.Errorf("empty .SQLite.Path requires a valid owner: %w", err)
		}
	}
	if _, err := getPollInterval(providerCfg.PollInterval); err != nil {
		return err
	}
	return nil
}

func getPollInterval(value string) (time.Duration, error) {
	if value == "" {
		return DefaultPollInterval, nil
	}
	interval, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid .SQLite.PollInterval: %w", err)
	}
	return interval, nil
}

func init() {
	v1alpha1.Register(&Provider{}, &v1alpha1.AccessorProvider{
		SQLite: &v1alpha1.AccessorProviderSQLite{},
	})
}
