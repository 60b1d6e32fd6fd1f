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
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

type registration struct {
	provider Provider
	field    int
}

var (
	providers  = map[string]registration{}
	providerMu sync.RWMutex
)

// Register a settings provider for a given backend. Panics if a provider for
// the same backend is already registered.
func Register(provider Provider, backend *AccessorProvider) {
	field, err := getProviderField(backend)
	if err != nil {
		panic(fmt.Errorf("error registering settings backend: %w", err))
	}
	providerName := providerFieldName(field)

	providerMu.Lock()
	defer providerMu.Unlock()

	if _, exists := providers[providerName]; exists {
		panic(fmt.Errorf("settings backend %s already registered", providerName))
	}

	providers[providerName] = registration{provider: provider, field: field}
}

// GetProvider returns the Provider for given AccessorProvider.
func GetProvider(backend *AccessorProvider) (Provider, error) {
	field, err := getProviderField(backend)
	if err != nil {
		return nil, fmt.Errorf("failed to find settings backend: %w", err)
	}
	providerName := providerFieldName(field)

	providerMu.RLock()
	defer providerMu.RUnlock()

	reg, ok := providers[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerName)
	}

	return reg.provider, nil
}

// GetProviderByName returns the Provider registered under name together with
// an AccessorProvider that selects it using an empty backend config.
func GetProviderByName(name string) (Provider, AccessorProvider, error) {
	providerMu.RLock()
	reg, ok := providers[name]
	providerMu.RUnlock()

	if !ok {
		return nil, AccessorProvider{}, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}

	var backend AccessorProvider
	v := reflect.ValueOf(&backend).Elem().Field(reg.field)
	v.Set(reflect.New(v.Type().Elem()))

	return reg.provider, backend, nil
}

// GetProviderName returns the name of the backend selected by AccessorProvider.
func GetProviderName(backend *AccessorProvider) (string, error) {
	field, err := getProviderField(backend)
	if err != nil {
		return "", err
	}
	return providerFieldName(field), nil
}

// RegisteredProviders returns names of all registered providers in sorted order.
func RegisteredProviders() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// getProviderField returns the index of the configured AccessorProvider field or an error if the
// AccessorProvider is invalid/not configured.
func getProviderField(backend *AccessorProvider) (int, error) {
	if backend == nil {
		return 0, errors.New("no AccessorProvider provided")
	}

	nonNilField, nonNilCount := 0, 0
	v := reflect.ValueOf(*backend)
	for num := range v.NumField() {
		if !v.Field(num).IsNil() {
			nonNilField = num
			nonNilCount++
		}

		if nonNilCount > 1 {
			break
		}
	}

	if nonNilCount != 1 {
		return 0, fmt.Errorf("only one settings backend required for AccessorProvider, found %d", nonNilCount)
	}

	return nonNilField, nil
}

// providerFieldName returns the JSON name of an AccessorProvider field.
func providerFieldName(field int) string {
	tag := reflect.TypeOf(AccessorProvider{}).Field(field).Tag.Get("json")
	name, _, _ := strings.Cut(tag, ",")
	return name
}
