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

package storesync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
)

// Status defines response data returned by Sync.
type Status struct {
	Total    uint32    //  total number of keys marked for sync
	Synced   uint32    //  number of successful syncs
	Success  bool      //  if Sync was successful
	Status   string    //  an arbitrary status message
	SyncedAt time.Time //  completion timestamp
}

// Source is an accessor that can enumerate its entries.
type Source interface {
	v1alpha1.Accessor
	v1alpha1.Lister
}

// Sync copies entries under groups from source to target and makes them
// durable in target. All entries are copied when no groups are given.
// Entries of target that are not present in source are kept.
func Sync(ctx context.Context, source v1alpha1.Accessor, target v1alpha1.Accessor, groups ...v1alpha1.Key) (*Status, error) {
	// Validate
	if source == nil {
		return nil, fmt.Errorf("source is nil")
	}
	if target == nil {
		return nil, fmt.Errorf("target is nil")
	}
	lister, ok := source.(Source)
	if !ok {
		return nil, fmt.Errorf("source %s cannot list keys", source.Type())
	}
	if len(groups) == 0 {
		groups = []v1alpha1.Key{""}
	}
	for _, group := range groups {
		if group == "" {
			continue
		}
		if err := group.Validate(); err != nil {
			return nil, err
		}
	}

	// Pull external changes so the latest values are copied
	if err := source.Sync(ctx); err != nil {
		return nil, fmt.Errorf("failed to sync source %s: %w", source.Type(), err)
	}

	// Get sync plan for each group in a separate goroutine.
	// Overlapping groups select the same key only once.
	planMu := sync.Mutex{}
	syncPlan := map[v1alpha1.Key]struct{}{}
	fetchGroup, fetchCtx := errgroup.WithContext(ctx)
	for _, group := range groups {
		group := group
		fetchGroup.Go(func() error {
			if err := fetchCtx.Err(); err != nil {
				return err
			}
			keys := lister.Keys(group)

			planMu.Lock()
			defer planMu.Unlock()
			for _, key := range keys {
				syncPlan[key] = struct{}{}
			}
			return nil
		})
	}

	// Wait fetch
	if err := fetchGroup.Wait(); err != nil {
		return nil, fmt.Errorf("aborted syncing, reason: %w", err)
	}

	keys := make([]v1alpha1.Key, 0, len(syncPlan))
	for key := range syncPlan {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	// Copy each key in a separate goroutine
	log := logrus.WithField("source", source.Type()).WithField("target", target.Type())
	var syncWg sync.WaitGroup
	var syncCounter atomic.Uint32
	for _, key := range keys {
		syncWg.Add(1)
		go func(key v1alpha1.Key) {
			defer syncWg.Done()

			// Load, removed concurrently if missing
			value := source.Load(key, nil)
			if value == nil && !source.Contains(key) {
				log.Warnf("Skipped syncing key %s, reason: removed from source", key)
				return
			}

			// Save
			if err := target.Save(key, value); err != nil {
				log.Errorf("Failed to sync key %s, reason: %v", key, err)
				return
			}

			log.Debugf("Successfully synced key %s", key)
			syncCounter.Add(1)
		}(key)
	}
	syncWg.Wait()

	// Make durable
	if err := target.Sync(ctx); err != nil {
		return nil, fmt.Errorf("failed to sync target %s: %w", target.Type(), err)
	}

	// Return response
	syncCount := syncCounter.Load()
	totalCount := uint32(len(syncPlan))
	return &Status{
		Total:    totalCount,
		Synced:   syncCount,
		Success:  totalCount == syncCount,
		Status:   fmt.Sprintf("Synced %d out of total %d keys", syncCount, totalCount),
		SyncedAt: time.Now(),
	}, nil
}
