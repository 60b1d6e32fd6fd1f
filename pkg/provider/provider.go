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

package provider

import (
	"context"
	"fmt"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	// Register providers
	_ "github.com/bank-vaults/settings-sync/pkg/provider/file"
	_ "github.com/bank-vaults/settings-sync/pkg/provider/kubernetes"
	_ "github.com/bank-vaults/settings-sync/pkg/provider/memory"
	_ "github.com/bank-vaults/settings-sync/pkg/provider/native"
	_ "github.com/bank-vaults/settings-sync/pkg/provider/sqlite"
	_ "github.com/bank-vaults/settings-sync/pkg/provider/vault"
)

// NewAccessor creates a settings accessor for provided spec.
// The owner of spec is used when set, otherwise owner is.
func NewAccessor(ctx context.Context, owner v1alpha1.Owner, spec v1alpha1.AccessorSpec) (v1alpha1.Accessor, error) {
	if spec.Owner == (v1alpha1.Owner{}) {
		spec.Owner = owner
	}

	// Get provider
	provider, err := v1alpha1.GetProvider(&spec.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	// Validate
	if err = provider.Validate(spec); err != nil {
		return nil, fmt.Errorf("failed to validate settings backend: %w", err)
	}

	// Create
	accessor, err := provider.NewAccessor(ctx, spec.Owner, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to create settings accessor: %w", err)
	}

	return accessor, nil
}
