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

package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
)

// FallbackProvider is used by registries without a default accessor.
const FallbackProvider = "file"

// Factory constructs an accessor for owner.
type Factory func(owner v1alpha1.Owner) (v1alpha1.Accessor, error)

// Registry selects how default accessors are constructed. The last
// registration wins. A zero Registry falls back to FallbackProvider.
type Registry struct {
	mu           sync.Mutex
	factory      Factory
	providerName string
	spec         v1alpha1.AccessorSpec
}

func NewRegistry() *Registry {
	return &Registry{}
}

// SetDefaultAccessor registers a constructor used for default accessors.
func (r *Registry) SetDefaultAccessor(factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factory = factory
	r.providerName = ""
}

// SetDefaultAccessorType registers the name of a settings provider used for
// default accessors, e.g. "sqlite". The name is resolved on creation.
func (r *Registry) SetDefaultAccessorType(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factory = nil
	r.providerName = name
}

// SetDefaultSpec sets the common spec fields applied to accessors created by
// provider name, e.g. FlushDelay.
func (r *Registry) SetDefaultSpec(spec v1alpha1.AccessorSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.spec = spec
}

// CreateDefaultAccessor creates a default accessor for owner. Returns nil if
// the accessor could not be constructed.
func (r *Registry) CreateDefaultAccessor(owner v1alpha1.Owner) v1alpha1.Accessor {
	accessor, err := r.createDefaultAccessor(owner)
	if err != nil {
		logrus.WithField("owner", owner.String()).Errorf("Failed to create default settings accessor: %v", err)
		return nil
	}
	return accessor
}

func (r *Registry) createDefaultAccessor(owner v1alpha1.Owner) (accessor v1alpha1.Accessor, err error) {
	r.mu.Lock()
	factory, providerName, spec := r.factory, r.providerName, r.spec
	r.mu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			accessor, err = nil, fmt.Errorf("accessor constructor panicked: %v", rec)
		}
	}()

	// Construct
	if factory != nil {
		accessor, err = factory(owner)
	} else {
		if providerName == "" {
			providerName = FallbackProvider
		}
		accessor, err = newNamedAccessor(owner, providerName, spec)
	}
	if err != nil {
		return nil, err
	}
	if accessor == nil {
		return nil, fmt.Errorf("accessor constructor returned no accessor")
	}
	return accessor, nil
}

func newNamedAccessor(owner v1alpha1.Owner, name string, spec v1alpha1.AccessorSpec) (v1alpha1.Accessor, error) {
	_, backend, err := v1alpha1.GetProviderByName(name)
	if err != nil {
		return nil, err
	}
	spec.Owner = owner
	spec.Provider = backend
	return NewAccessor(context.Background(), owner, spec)
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// SetDefaultAccessor registers factory in the process-wide registry.
func SetDefaultAccessor(factory Factory) {
	defaultRegistry.SetDefaultAccessor(factory)
}

// SetDefaultAccessorType registers a provider name in the process-wide registry.
func SetDefaultAccessorType(name string) {
	defaultRegistry.SetDefaultAccessorType(name)
}

// CreateDefaultAccessor creates a default accessor from the process-wide
// registry. Returns nil on failure.
func CreateDefaultAccessor(owner v1alpha1.Owner) v1alpha1.Accessor {
	return defaultRegistry.CreateDefaultAccessor(owner)
}
