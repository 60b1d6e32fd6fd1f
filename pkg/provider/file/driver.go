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

package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/settings"
)

// LockSuffix names the advisory lock file next to the settings file.
const LockSuffix = ".lock"

const lockRetryDelay = 10 * time.Millisecond

// pathLocks serializes read-modify-write cycles of drivers sharing a file
// within a process. Other processes are excluded by the advisory file lock.
var (
	pathLocks   = map[string]*sync.Mutex{}
	pathLocksMu sync.Mutex
)

func lockPath(path string) func() {
	pathLocksMu.Lock()
	mu, ok := pathLocks[path]
	if !ok {
		mu = &sync.Mutex{}
		pathLocks[path] = mu
	}
	pathLocksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Driver keeps all entries of an accessor in a single YAML file. Keys are
// stored verbatim, so lookups are case-sensitive on every platform.
// Writers hold an advisory lock on <path>.lock, so processes that share a
// file do not lose each other's updates.
type Driver struct {
	path string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

var (
	_ settings.Driver  = &Driver{}
	_ settings.Watcher = &Driver{}
)

func NewDriver(path string) (*Driver, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path '%s': %w", path, err)
	}
	return &Driver{path: absPath}, nil
}

func (d *Driver) Type() string {
	return fmt.Sprintf("file(%s)", d.path)
}

func (d *Driver) Path() string {
	return d.path
}

func (d *Driver) ReadAll(_ context.Context) (map[v1alpha1.Key][]byte, error) {
	unlock := lockPath(d.path)
	defer unlock()

	return d.read()
}

func (d *Driver) Apply(ctx context.Context, changes []settings.Change) error {
	unlock := lockPath(d.path)
	defer unlock()

	// Lock
	unlockFile, err := d.lockFile(ctx)
	if err != nil {
		return err
	}
	defer unlockFile()

	// Read
	entries, err := d.read()
	if err != nil {
		return err
	}

	// Merge
	settings.ApplyChanges(entries, changes)

	// Write
	data, err := settings.MarshalDocument(entries)
	if err != nil {
		return err
	}
	return d.write(data)
}

// Watch reports changes of the file. The parent directory is watched so that
// atomic replacements done by other writers are detected.
func (d *Driver) Watch(ctx context.Context) (<-chan struct{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.watcher != nil {
		return nil, fmt.Errorf("%s is already watched", d.Type())
	}

	// Create parent dir for watching
	parentDir := filepath.Dir(d.path)
	if err := os.MkdirAll(parentDir, 0o700); err != nil {
		return nil, fmt.Errorf("watch failed to create dir '%s': %w", parentDir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(parentDir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch dir '%s': %w", parentDir, err)
	}
	d.watcher = watcher

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer d.stopWatch()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != d.path || event.Op == fsnotify.Chmod {
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.WithField("path", d.path).Warnf("File watcher error: %v", err)
			}
		}
	}()

	return ch, nil
}

func (d *Driver) Close() error {
	return d.stopWatch()
}

func (d *Driver) stopWatch() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.watcher == nil {
		return nil
	}
	err := d.watcher.Close()
	d.watcher = nil
	return err
}

// lockFile acquires the advisory lock shared with other processes.
func (d *Driver) lockFile(ctx context.Context) (func(), error) {
	parentDir := filepath.Dir(d.path)
	if err := os.MkdirAll(parentDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create dir '%s': %w", parentDir, err)
	}

	lock := flock.New(d.path + LockSuffix)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock file '%s': %w", lock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock file '%s'", lock.Path())
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			logrus.WithField("path", lock.Path()).Warnf("Failed to unlock file: %v", err)
		}
	}, nil
}

func (d *Driver) read() (map[v1alpha1.Key][]byte, error) {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[v1alpha1.Key][]byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file '%s': %w", d.path, err)
	}

	entries, err := settings.UnmarshalDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file '%s': %w", d.path, err)
	}
	return entries, nil
}

func (d *Driver) write(data []byte) error {
	// Create parent dir for file
	parentDir := filepath.Dir(d.path)
	if err := os.MkdirAll(parentDir, 0o700); err != nil {
		return fmt.Errorf("failed to create dir '%s': %w", parentDir, err)
	}

	// Write to a temporary file and replace
	tmp, err := os.CreateTemp(parentDir, "."+filepath.Base(d.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in '%s': %w", parentDir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write file '%s': %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync file '%s': %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file '%s': %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return fmt.Errorf("failed to replace file '%s': %w", d.path, err)
	}
	return nil
}
