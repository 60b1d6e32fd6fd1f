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

package vault

import (
	"context"
	"fmt"

	"github.com/bank-vaults/vault-sdk/vault"
	"github.com/pkg/errors"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/settings"
)

type Provider struct{}

var _ v1alpha1.Provider = &Provider{}

func (p *Provider) NewAccessor(_ context.Context, owner v1alpha1.Owner, spec v1alpha1.AccessorSpec) (v1alpha1.Accessor, error) {
	vaultCfg := spec.Provider.Vault

	var opts []vault.ClientOption
	if vaultCfg.Address != "" {
		opts = append(opts, vault.ClientURL(vaultCfg.Address))
	}
	if vaultCfg.Role != "" {
		opts = append(opts, vault.ClientRole(vaultCfg.Role))
	}
	if vaultCfg.AuthPath != "" {
		opts = append(opts, vault.ClientAuthPath(vaultCfg.AuthPath))
	}
	if vaultCfg.TokenPath != "" {
		opts = append(opts, vault.ClientTokenPath(vaultCfg.TokenPath))
	}
	if vaultCfg.Token != "" {
		opts = append(opts, vault.ClientToken(vaultCfg.Token))
	}

	apiClient, err := vault.NewClientWithOptions(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create vault client")
	}

	prefix := vaultCfg.Prefix
	if prefix == "" {
		prefix = owner.String()
	}

	driver := newDriver(
		apiClient.RawClient().Logical(),
		apiClient.RawClient().Address(),
		vaultCfg.MountPath,
		prefix,
		apiClient.Close,
	)
	store, err := settings.New(driver, settings.WithFlushDelay(spec.GetFlushDelay()))
	if err != nil {
		driver.Close()
		return nil, err
	}
	return store, nil
}

func (p *Provider) Validate(spec v1alpha1.AccessorSpec) error {
	vaultCfg := spec.Provider.Vault
	if vaultCfg == nil {
		return fmt.Errorf("empty Vault config")
	}
	if vaultCfg.MountPath == "" {
		return fmt.Errorf("empty .Vault.MountPath")
	}
	if vaultCfg.Prefix == "" {
		if err := spec.Owner.Validate(); err != nil {
			return fmt.Errorf("empty .Vault.Prefix requires a valid owner: %w", err)
		}
	}
	return nil
}

func init() {
	v1alpha1.Register(&Provider{}, &v1alpha1.AccessorProvider{
		Vault: &v1alpha1.AccessorProviderVault{},
	})
}
