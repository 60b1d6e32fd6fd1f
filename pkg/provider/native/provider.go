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

package native

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/settings"
)

type Provider struct{}

var _ v1alpha1.Provider = &Provider{}

func (p *Provider) NewAccessor(_ context.Context, owner v1alpha1.Owner, spec v1alpha1.AccessorSpec) (v1alpha1.Accessor, error) {
	driver, err := newPlatformDriver(owner, spec.Provider.Native)
	if err != nil {
		return nil, err
	}
	return settings.New(driver, settings.WithFlushDelay(spec.GetFlushDelay()))
}

func (p *Provider) Validate(spec v1alpha1.AccessorSpec) error {
	if spec.Provider.Native == nil {
		return fmt.Errorf("empty .Native")
	}
	if err := spec.Owner.Validate(); err != nil {
		return fmt.Errorf("native settings require a valid owner: %w", err)
	}
	return nil
}

// defaultsDomain returns the configured domain or com.<organization>.<application>.
func defaultsDomain(owner v1alpha1.Owner, providerCfg *v1alpha1.AccessorProviderNative) string {
	if providerCfg != nil && providerCfg.Domain != "" {
		return providerCfg.Domain
	}
	return strings.ToLower("com." + strings.Join(owner.Segments(), "."))
}

// xdgPath returns $XDG_CONFIG_HOME/<organization>/<application>/settings.yaml.
func xdgPath(owner v1alpha1.Owner) string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(append(append([]string{dir}, owner.Segments()...), "settings.yaml")...)
}

func init() {
	v1alpha1.Register(&Provider{}, &v1alpha1.AccessorProvider{
		Native: &v1alpha1.AccessorProviderNative{},
	})
}
