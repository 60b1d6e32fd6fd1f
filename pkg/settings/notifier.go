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
	"sync"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
)

// notifier delivers events to subscribers in subscription order.
type notifier struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

type subscription struct {
	id uint64
	fn func(v1alpha1.Event)
}

func (n *notifier) subscribe(fn func(v1alpha1.Event)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { n.unsubscribe(id) })
	}
}

func (n *notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, sub := range n.subs {
		if sub.id == id {
			n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
			return
		}
	}
}

// emit calls subscribers synchronously. Subscribers may call back into the
// accessor and subscribe or unsubscribe while being notified.
func (n *notifier) emit(events ...v1alpha1.Event) {
	if len(events) == 0 {
		return
	}

	n.mu.RLock()
	subs := n.subs
	n.mu.RUnlock()

	for _, event := range events {
		for _, sub := range subs {
			sub.fn(event)
		}
	}
}
