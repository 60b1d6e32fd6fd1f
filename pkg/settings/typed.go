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

package settings

import (
	"time"

	"github.com/spf13/cast"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
)

// missing marks absent entries, it is never stored.
type missing struct{}

// LoadAs loads key into a value of type T. Values reloaded from a backend lose
// their Go type, so they are decoded again into T. Returns defaultValue if key
// is absent or cannot be represented as T.
func LoadAs[T any](accessor v1alpha1.Accessor, key v1alpha1.Key, defaultValue T) T {
	if store, ok := accessor.(*Store); ok {
		raw, ok := store.loadRaw(key)
		if !ok {
			return defaultValue
		}
		var out T
		if err := DecodeInto(raw, &out); err != nil {
			return defaultValue
		}
		return out
	}

	value := accessor.Load(key, missing{})
	if _, ok := value.(missing); ok {
		return defaultValue
	}
	if typed, ok := value.(T); ok {
		return typed
	}
	raw, err := Encode(value)
	if err != nil {
		return defaultValue
	}
	var out T
	if err := DecodeInto(raw, &out); err != nil {
		return defaultValue
	}
	return out
}

// LoadString loads key as a string, converting scalar values.
func LoadString(accessor v1alpha1.Accessor, key v1alpha1.Key, defaultValue string) string {
	return loadCast(accessor, key, defaultValue, cast.ToStringE)
}

// LoadInt loads key as an int, converting numeric and string values.
func LoadInt(accessor v1alpha1.Accessor, key v1alpha1.Key, defaultValue int) int {
	return loadCast(accessor, key, defaultValue, cast.ToIntE)
}

// LoadInt64 loads key as an int64, converting numeric and string values.
func LoadInt64(accessor v1alpha1.Accessor, key v1alpha1.Key, defaultValue int64) int64 {
	return loadCast(accessor, key, defaultValue, cast.ToInt64E)
}

// LoadFloat64 loads key as a float64, converting numeric and string values.
func LoadFloat64(accessor v1alpha1.Accessor, key v1alpha1.Key, defaultValue float64) float64 {
	return loadCast(accessor, key, defaultValue, cast.ToFloat64E)
}

// LoadBool loads key as a bool, converting numeric and string values.
func LoadBool(accessor v1alpha1.Accessor, key v1alpha1.Key, defaultValue bool) bool {
	return loadCast(accessor, key, defaultValue, cast.ToBoolE)
}

// LoadDuration loads key as a time.Duration. Strings are parsed with
// time.ParseDuration, numbers are treated as nanoseconds.
func LoadDuration(accessor v1alpha1.Accessor, key v1alpha1.Key, defaultValue time.Duration) time.Duration {
	return loadCast(accessor, key, defaultValue, cast.ToDurationE)
}

// LoadStringSlice loads key as a slice of strings.
func LoadStringSlice(accessor v1alpha1.Accessor, key v1alpha1.Key, defaultValue []string) []string {
	return loadCast(accessor, key, defaultValue, cast.ToStringSliceE)
}

// LoadStringMap loads key as a map of strings to values.
func LoadStringMap(accessor v1alpha1.Accessor, key v1alpha1.Key, defaultValue map[string]any) map[string]any {
	return loadCast(accessor, key, defaultValue, cast.ToStringMapE)
}

func loadCast[T any](accessor v1alpha1.Accessor, key v1alpha1.Key, defaultValue T, convert func(any) (T, error)) T {
	value := accessor.Load(key, missing{})
	if _, ok := value.(missing); ok {
		return defaultValue
	}
	converted, err := convert(value)
	if err != nil {
		return defaultValue
	}
	return converted
}
