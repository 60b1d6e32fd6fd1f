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
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
)

var ErrClosed = errors.New("settings accessor is closed")

var (
	_ v1alpha1.Accessor = &Store{}
	_ v1alpha1.Lister   = &Store{}
)

// Store implements v1alpha1.Accessor on top of a Driver.
// Reads are served from memory, writes are applied to memory immediately and
// written to the driver after a delay, on Sync or on Close.
type Store struct {
	driver  Driver
	log     *logrus.Entry
	metrics *Metrics
	onError func(error)
	delay   time.Duration

	mu      sync.RWMutex
	entries map[v1alpha1.Key]entry
	pending []Change
	closed  bool

	// ioMu serializes driver calls
	ioMu sync.Mutex

	notifier notifier

	kickCh    chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

type entry struct {
	value any
	raw   []byte
}

// New creates a Store for driver and loads its current entries.
// Returns an error if the initial load fails.
func New(driver Driver, opts ...Option) (*Store, error) {
	if driver == nil {
		return nil, fmt.Errorf("cannot create settings store for nil driver")
	}
	option := newOptions(opts...)

	logger := option.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithFields(logrus.Fields{
		"accessor": driver.Type(),
		"id":       uuid.NewString(),
	})

	// Load
	snapshot, err := driver.ReadAll(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load settings from %s: %w", driver.Type(), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	store := &Store{
		driver:  driver,
		log:     logger,
		metrics: option.Metrics,
		onError: option.ErrorHandler,
		delay:   option.FlushDelay,
		entries: make(map[v1alpha1.Key]entry, len(snapshot)),
		kickCh:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		cancel:  cancel,
	}
	for key, raw := range snapshot {
		value, err := Decode(raw)
		if err != nil {
			logger.WithError(err).Warnf("Skipped loading key '%s'", key)
			continue
		}
		store.entries[key] = entry{value: value, raw: raw}
	}

	// Watch
	var watchCh <-chan struct{}
	if watcher, ok := driver.(Watcher); ok {
		watchCh, err = watcher.Watch(ctx)
		if err != nil {
			logger.WithError(err).Warnf("Failed to watch for external changes, changes will only be detected on sync")
			watchCh = nil
		}
	}

	go store.run(ctx, watchCh)

	logger.Debugf("Loaded %d entries", len(store.entries))
	return store, nil
}

func (s *Store) Type() string {
	return s.driver.Type()
}

func (s *Store) Contains(key v1alpha1.Key) bool {
	if err := key.Validate(); err != nil {
		s.log.WithError(err).Warnf("Contains called with invalid key")
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entries[key]
	return ok
}

func (s *Store) Load(key v1alpha1.Key, defaultValue any) any {
	if err := key.Validate(); err != nil {
		s.log.WithError(err).Warnf("Load called with invalid key")
		return defaultValue
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if current, ok := s.entries[key]; ok {
		return current.value
	}
	return defaultValue
}

// loadRaw returns the encoded value of key.
func (s *Store) loadRaw(key v1alpha1.Key) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	current, ok := s.entries[key]
	return current.raw, ok
}

func (s *Store) Save(key v1alpha1.Key, value any) error {
	if err := key.Validate(); err != nil {
		return err
	}
	raw, err := Encode(value)
	if err != nil {
		return fmt.Errorf("cannot save key '%s': %w", key, err)
	}

	// Later changes by the caller must not leak into the store
	value = clone(value)

	// Update
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.entries[key] = entry{value: value, raw: raw}
	s.pending = append(s.pending, Change{Op: ChangeSave, Key: key, Value: raw})
	s.setPendingGauge()
	s.mu.Unlock()

	// Notify
	s.notifier.emit(v1alpha1.Event{
		Kind:   v1alpha1.EntryChanged,
		Key:    key,
		Value:  value,
		Origin: v1alpha1.OriginLocal,
	})
	s.kick()

	return nil
}

func (s *Store) Remove(key v1alpha1.Key) error {
	if err := key.Validate(); err != nil {
		return err
	}

	// Update
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	var removed []v1alpha1.Key
	for existing := range s.entries {
		if key.IsPrefixOf(existing) {
			removed = append(removed, existing)
			delete(s.entries, existing)
		}
	}
	// The durable backend may hold nested keys that were not loaded yet,
	// so the removal is always scheduled.
	s.pending = append(s.pending, Change{Op: ChangeRemove, Key: key})
	s.setPendingGauge()
	s.mu.Unlock()

	// Notify
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	events := make([]v1alpha1.Event, 0, len(removed))
	for _, removedKey := range removed {
		events = append(events, v1alpha1.Event{
			Kind:   v1alpha1.EntryRemoved,
			Key:    removedKey,
			Origin: v1alpha1.OriginLocal,
		})
	}
	s.notifier.emit(events...)
	s.kick()

	return nil
}

func (s *Store) Keys(group v1alpha1.Key) []v1alpha1.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]v1alpha1.Key, 0, len(s.entries))
	for key := range s.entries {
		if group == "" || group.IsPrefixOf(key) {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (s *Store) Subscribe(fn func(v1alpha1.Event)) func() {
	return s.notifier.subscribe(fn)
}

// Sync writes all pending changes to the driver and reloads entries that were
// changed externally. Subscribers receive events for all reloaded entries.
func (s *Store) Sync(ctx context.Context) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if err := s.flush(ctx); err != nil {
		return err
	}
	return s.reload(ctx)
}

// Close stops background processing and writes all pending changes.
// The driver is closed even if the final write fails.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		// In-flight writes complete before the context is cancelled
		close(s.stopCh)
		<-s.doneCh
		s.cancel()

		flushErr := s.flush(context.Background())
		if flushErr != nil {
			s.log.WithError(flushErr).Errorf("Failed to write pending changes on close")
		}
		s.closeErr = errors.Join(flushErr, s.driver.Close())
	})
	return s.closeErr
}

// Pending returns the number of changes waiting for a durable write.
func (s *Store) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// run handles delayed writes and driver watch notifications until Close.
func (s *Store) run(ctx context.Context, watchCh <-chan struct{}) {
	defer close(s.doneCh)

	var timer *time.Timer
	var timerCh <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-s.kickCh: // Handles local changes
			if timerCh == nil {
				timer = time.NewTimer(s.delay)
				timerCh = timer.C
			}

		case <-timerCh: // Handles delayed writes
			timerCh = nil
			if err := s.flush(ctx); err != nil {
				s.log.WithError(err).Errorf("Failed to write changes, retrying...")
				s.onError(err)

				timer = time.NewTimer(max(s.delay, MinRetryDelay))
				timerCh = timer.C
			}

		case _, ok := <-watchCh: // Handles external changes
			if !ok {
				watchCh = nil
				continue
			}
			if err := s.reload(ctx); err != nil {
				s.log.WithError(err).Errorf("Failed to reload external changes")
				s.onError(err)
			}

		case <-s.stopCh: // Handles closing
			return
		}
	}
}

func (s *Store) kick() {
	select {
	case s.kickCh <- struct{}{}:
	default:
	}
}

// flush writes pending changes to the driver. On failure the changes are kept
// and retried on the next flush.
func (s *Store) flush(ctx context.Context) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	// Write
	backend := s.driver.Type()
	if err := s.driver.Apply(ctx, batch); err != nil {
		s.mu.Lock()
		s.pending = append(batch, s.pending...)
		s.setPendingGauge()
		s.mu.Unlock()

		s.metrics.FlushErrors.WithLabelValues(backend).Inc()
		return fmt.Errorf("failed to write %d changes to %s: %w", len(batch), backend, err)
	}

	s.mu.Lock()
	s.setPendingGauge()
	s.mu.Unlock()

	s.metrics.Flushes.WithLabelValues(backend).Inc()
	s.log.Debugf("Wrote %d changes", len(batch))
	return nil
}

// reload reads all entries from the driver and applies external changes to
// entries that have no pending local changes.
func (s *Store) reload(ctx context.Context) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	snapshot, err := s.driver.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload settings from %s: %w", s.driver.Type(), err)
	}

	// Diff
	var events []v1alpha1.Event
	s.mu.Lock()
	for key, raw := range snapshot {
		if s.isPending(key) {
			continue
		}
		if current, ok := s.entries[key]; ok && bytes.Equal(current.raw, raw) {
			continue
		}
		value, err := Decode(raw)
		if err != nil {
			s.log.WithError(err).Warnf("Skipped reloading key '%s'", key)
			continue
		}
		s.entries[key] = entry{value: value, raw: raw}
		events = append(events, v1alpha1.Event{
			Kind:   v1alpha1.EntryChanged,
			Key:    key,
			Value:  value,
			Origin: v1alpha1.OriginExternal,
		})
	}
	for key := range s.entries {
		if _, ok := snapshot[key]; ok || s.isPending(key) {
			continue
		}
		delete(s.entries, key)
		events = append(events, v1alpha1.Event{
			Kind:   v1alpha1.EntryRemoved,
			Key:    key,
			Origin: v1alpha1.OriginExternal,
		})
	}
	s.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	// Notify
	sort.Slice(events, func(i, j int) bool { return events[i].Key < events[j].Key })
	s.metrics.ExternalChanges.WithLabelValues(s.driver.Type()).Add(float64(len(events)))
	s.log.Debugf("Reloaded %d external changes", len(events))
	s.notifier.emit(events...)

	return nil
}

// isPending reports whether key is affected by a change that was not written yet.
// Must be called with s.mu held.
func (s *Store) isPending(key v1alpha1.Key) bool {
	for _, change := range s.pending {
		if change.Key == key || (change.Op == ChangeRemove && change.Key.IsPrefixOf(key)) {
			return true
		}
	}
	return false
}

// setPendingGauge must be called with s.mu held.
func (s *Store) setPendingGauge() {
	s.metrics.PendingChanges.WithLabelValues(s.driver.Type()).Set(float64(len(s.pending)))
}
