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
	"fmt"
)

// Accessor decouples a settings consumer from the concrete settings backend.
// Implementations must support concurrent calls.
type Accessor interface {
	// Type describes the backend, e.g. "file(/home/user/.config/acme/demo.yaml)".
	Type() string

	// Contains reports whether key holds an explicit value.
	// Keys that only act as a group prefix are not contained.
	Contains(key Key) bool

	// Load returns the value stored for key or defaultValue if there is none.
	Load(key Key, defaultValue any) any

	// Save creates or overwrites the entry for key. An EntryChanged event is
	// delivered to all subscribers before Save returns. The durable write is
	// deferred.
	Save(key Key, value any) error

	// Remove deletes the entry for key and every entry nested under it.
	// An EntryRemoved event is delivered for each removed entry before Remove returns.
	Remove(key Key) error

	// Sync blocks until all scheduled durable writes are completed and
	// externally changed entries are reloaded.
	Sync(ctx context.Context) error

	// Subscribe registers fn for change events. Calling the returned func
	// removes the subscription.
	Subscribe(fn func(Event)) (unsubscribe func())

	// Close persists all pending changes and releases the backend.
	Close() error
}

// Lister is implemented by accessors that can enumerate their entries.
type Lister interface {
	// Keys returns all entry keys nested under group (including group itself)
	// in sorted order. An empty group lists all keys.
	Keys(group Key) []Key
}

// EventKind defines the kind of change an Event describes.
type EventKind int

const (
	EntryChanged EventKind = iota
	EntryRemoved
)

func (k EventKind) String() string {
	switch k {
	case EntryChanged:
		return "EntryChanged"
	case EntryRemoved:
		return "EntryRemoved"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// EventOrigin tells whether a change was made through this accessor or detected from outside.
type EventOrigin int

const (
	OriginLocal EventOrigin = iota
	OriginExternal
)

func (o EventOrigin) String() string {
	if o == OriginExternal {
		return "external"
	}
	return "local"
}

// Event describes a single change of an entry.
type Event struct {
	Kind   EventKind
	Key    Key
	Value  any // only set for EntryChanged
	Origin EventOrigin
}
