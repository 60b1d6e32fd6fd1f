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
	"sync"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/settings"
)

// location is a named set of entries shared by all drivers that point to it.
type location struct {
	mu       sync.Mutex
	entries  map[v1alpha1.Key][]byte
	watchers map[*Driver]chan struct{}
}

var (
	locations   = map[string]*location{}
	locationsMu sync.Mutex
)

func getLocation(name string) *location {
	locationsMu.Lock()
	defer locationsMu.Unlock()

	loc, ok := locations[name]
	if !ok {
		loc = &location{
			entries:  map[v1alpha1.Key][]byte{},
			watchers: map[*Driver]chan struct{}{},
		}
		locations[name] = loc
	}
	return loc
}

// Snapshot returns a copy of the entries currently stored at a location.
func Snapshot(name string) map[v1alpha1.Key][]byte {
	loc := getLocation(name)
	loc.mu.Lock()
	defer loc.mu.Unlock()

	return copyEntries(loc.entries)
}

// Reset drops all entries stored at a location.
func Reset(name string) {
	loc := getLocation(name)
	loc.mu.Lock()
	defer loc.mu.Unlock()

	loc.entries = map[v1alpha1.Key][]byte{}
}

// Driver keeps entries in process memory. Drivers created for the same
// location share entries and are notified about each other's writes.
type Driver struct {
	name string
	loc  *location
}

var (
	_ settings.Driver  = &Driver{}
	_ settings.Watcher = &Driver{}
)

func NewDriver(name string) *Driver {
	return &Driver{
		name: name,
		loc:  getLocation(name),
	}
}

func (d *Driver) Type() string {
	return fmt.Sprintf("memory(%s)", d.name)
}

func (d *Driver) ReadAll(_ context.Context) (map[v1alpha1.Key][]byte, error) {
	d.loc.mu.Lock()
	defer d.loc.mu.Unlock()

	return copyEntries(d.loc.entries), nil
}

func (d *Driver) Apply(_ context.Context, changes []settings.Change) error {
	d.loc.mu.Lock()
	defer d.loc.mu.Unlock()

	settings.ApplyChanges(d.loc.entries, changes)

	// Notify siblings
	for watcher, ch := range d.loc.watchers {
		if watcher == d {
			continue
		}
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (d *Driver) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	d.loc.mu.Lock()
	if _, exists := d.loc.watchers[d]; exists {
		d.loc.mu.Unlock()
		return nil, fmt.Errorf("%s is already watched", d.Type())
	}
	d.loc.watchers[d] = ch
	d.loc.mu.Unlock()

	go func() {
		<-ctx.Done()
		d.unwatch()
	}()

	return ch, nil
}

func (d *Driver) Close() error {
	d.unwatch()
	return nil
}

func (d *Driver) unwatch() {
	d.loc.mu.Lock()
	defer d.loc.mu.Unlock()

	if ch, ok := d.loc.watchers[d]; ok {
		delete(d.loc.watchers, d)
		close(ch)
	}
}

func copyEntries(entries map[v1alpha1.Key][]byte) map[v1alpha1.Key][]byte {
	result := make(map[v1alpha1.Key][]byte, len(entries))
	for key, value := range entries {
		result[key] = append([]byte(nil), value...)
	}
	return result
}
