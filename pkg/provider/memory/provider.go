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

package memory

import (
	"context"
	"fmt"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/settings"
)

type Provider struct{}

var _ v1alpha1.Provider = &Provider{}

func (p *Provider) NewAccessor(_ context.Context, owner v1alpha1.Owner, spec v1alpha1.AccessorSpec) (v1alpha1.Accessor, error) {
	location := spec.Provider.Memory.Location
	if location == "" {
		if err := owner.Validate(); err != nil {
			return nil, fmt.Errorf("memory location requires a valid owner: %w", err)
		}
		location = owner.String()
	}

	return settings.New(NewDriver(location), settings.WithFlushDelay(spec.GetFlushDelay()))
}

func (p *Provider) Validate(spec v1alpha1.AccessorSpec) error {
	if spec.Provider.Memory == nil {
		return fmt.Errorf("empty .Memory")
	}
	return nil
}

func init() {
	v1alpha1.Register(&Provider{}, &v1alpha1.AccessorProvider{
		Memory: &v1alpha1.AccessorProviderMemory{},
	})
}
