// Copyright © 2023 Cisco
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

package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/settings"
)

const fileExtension = ".yaml"

type Provider struct{}

var _ v1alpha1.Provider = &Provider{}

func (p *Provider) NewAccessor(_ context.Context, owner v1alpha1.Owner, spec v1alpha1.AccessorSpec) (v1alpha1.Accessor, error) {
	path := spec.Provider.File.Path
	if path == "" {
		var err error
		if path, err = DefaultPath(owner); err != nil {
			return nil, err
		}
	}

	driver, err := NewDriver(path)
	if err != nil {
		return nil, err
	}

	var storeDriver settings.Driver = driver
	if spec.Provider.File.DisableWatch {
		storeDriver = unwatched{driver}
	}
	return settings.New(storeDriver, settings.WithFlushDelay(spec.GetFlushDelay()))
}

func (p *Provider) Validate(spec v1alpha1.AccessorSpec) error {
	provider := spec.Provider.File
	if provider == nil {
		return fmt.Errorf("empty .File")
	}
	if provider.Path == "" {
		if err := spec.Owner.Validate(); err != nil {
			return fmt.Errorf("empty .File.Path requires a valid owner: %w", err)
		}
	}
	return nil
}

// DefaultPath returns the settings file of owner inside the user config dir,
// e.g. ~/.config/<organization>/<application>.yaml on Linux.
func DefaultPath(owner v1alpha1.Owner) (string, error) {
	if err := owner.Validate(); err != nil {
		return "", err
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(configDir, filepath.Join(owner.Segments()...)+fileExtension), nil
}

// unwatched hides the Watcher implementation of a driver.
type unwatched struct {
	settings.Driver
}

func init() {
	v1alpha1.Register(&Provider{}, &v1alpha1.AccessorProvider{
		File: &v1alpha1.AccessorProviderFile{},
	})
}
