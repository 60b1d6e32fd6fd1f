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
	"context"
	"sort"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
)

// Driver persists encoded settings to a durable backend.
// Drivers are only called from a single goroutine at a time per Store.
type Driver interface {
	// Type describes the durable backend.
	Type() string

	// ReadAll returns all entries currently present in the durable backend.
	ReadAll(ctx context.Context) (map[v1alpha1.Key][]byte, error)

	// Apply writes changes to the durable backend in order.
	// A ChangeRemove removes the key and every key nested under it.
	Apply(ctx context.Context, changes []Change) error

	// Close releases all resources held by the driver.
	Close() error
}

// Watcher is implemented by drivers that can detect external changes.
// The returned channel receives a value whenever the durable backend may have
// changed and is closed when ctx is done or the driver is closed.
type Watcher interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}

type ChangeOp int

const (
	ChangeSave ChangeOp = iota
	ChangeRemove
)

func (op ChangeOp) String() string {
	if op == ChangeRemove {
		return "remove"
	}
	return "save"
}

// Change describes a single pending modification of the durable backend.
type Change struct {
	Op    ChangeOp
	Key   v1alpha1.Key
	Value []byte // encoded value, only set for ChangeSave
}

// ApplyChanges applies changes to an entry map in place.
// Drivers that rewrite a whole snapshot use it to merge changes.
func ApplyChanges(entries map[v1alpha1.Key][]byte, changes []Change) {
	for _, change := range changes {
		switch change.Op {
		case ChangeSave:
			entries[change.Key] = change.Value
		case ChangeRemove:
			for key := range entries {
				if change.Key.IsPrefixOf(key) {
					delete(entries, key)
				}
			}
		}
	}
}

// SortedKeys returns keys of entries in sorted order.
func SortedKeys[V any](entries map[v1alpha1.Key]V) []v1alpha1.Key {
	keys := make([]v1alpha1.Key, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
