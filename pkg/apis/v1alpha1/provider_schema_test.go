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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct{}

func (p *fakeProvider) NewAccessor(_ context.Context, _ Owner, _ AccessorSpec) (Accessor, error) {
	return nil, errors.New("not implemented")
}

func (p *fakeProvider) Validate(_ AccessorSpec) error {
	return nil
}

func TestProviderRegistry(t *testing.T) {
	provider := &fakeProvider{}
	Register(provider, &AccessorProvider{Memory: &AccessorProviderMemory{}})

	// Duplicate registration panics
	assert.Panics(t, func() {
		Register(&fakeProvider{}, &AccessorProvider{Memory: &AccessorProviderMemory{}})
	})

	// Registration requires exactly one backend
	assert.Panics(t, func() {
		Register(&fakeProvider{}, &AccessorProvider{})
	})

	// Lookup by backend
	got, err := GetProvider(&AccessorProvider{Memory: &AccessorProviderMemory{Location: "x"}})
	require.NoError(t, err)
	assert.Same(t, provider, got)

	// Lookup by name
	got, backend, err := GetProviderByName("memory")
	require.NoError(t, err)
	assert.Same(t, provider, got)
	assert.NotNil(t, backend.Memory)
	assert.Nil(t, backend.File)

	name, err := GetProviderName(&backend)
	require.NoError(t, err)
	assert.Equal(t, "memory", name)
	assert.Contains(t, RegisteredProviders(), "memory")

	// Unknown backends
	_, err = GetProvider(&AccessorProvider{Vault: &AccessorProviderVault{}})
	assert.True(t, errors.Is(err, ErrProviderNotFound))
	_, _, err = GetProviderByName("unknown")
	assert.True(t, errors.Is(err, ErrProviderNotFound))

	// Invalid backends
	_, err = GetProvider(nil)
	assert.Error(t, err)
	_, err = GetProvider(&AccessorProvider{
		File:   &AccessorProviderFile{},
		Memory: &AccessorProviderMemory{},
	})
	assert.Error(t, err)
}

func TestAccessorSpecDefaults(t *testing.T) {
	spec := AccessorSpec{}
	assert.Equal(t, DefaultFlushDelay, spec.GetFlushDelay())
	assert.Equal(t, DefaultSyncSchedule, spec.GetSyncSchedule())

	spec = AccessorSpec{FlushDelay: "invalid", SyncSchedule: "invalid"}
	assert.Equal(t, DefaultFlushDelay, spec.GetFlushDelay())
	assert.Equal(t, DefaultSyncSchedule, spec.GetSyncSchedule())

	spec = AccessorSpec{FlushDelay: "2s", SyncSchedule: "*/5 * * * *"}
	assert.Equal(t, "2s", spec.GetFlushDelay().String())
	assert.Equal(t, "*/5 * * * *", spec.GetSyncSchedule())
}

func TestOwner(t *testing.T) {
	assert.Error(t, Owner{}.Validate())
	assert.Error(t, Owner{Application: "../etc"}.Validate())
	assert.Error(t, Owner{Organization: "a/b", Application: "app"}.Validate())
	assert.NoError(t, Owner{Organization: "acme", Application: "demo"}.Validate())
	assert.Equal(t, "acme/demo", Owner{Organization: "acme", Application: "demo"}.String())
	assert.Equal(t, "demo", Owner{Application: "demo"}.String())
}
