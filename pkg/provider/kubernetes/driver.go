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

package kubernetes

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	apiv1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/watch"
	clientv1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/util/retry"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/settings"
)

// DataKey is the ConfigMap data entry holding the settings document.
const DataKey = "settings.yaml"

// ManagedByLabel marks ConfigMaps created by the driver.
const ManagedByLabel = "app.kubernetes.io/managed-by"

var rewatchDelay = time.Second

// Driver keeps all entries in a single ConfigMap as a YAML document.
// Keys are stored verbatim, so lookups are case-sensitive.
type Driver struct {
	namespace  string
	name       string
	configMaps clientv1.ConfigMapInterface
}

var (
	_ settings.Driver  = &Driver{}
	_ settings.Watcher = &Driver{}
)

func NewDriver(configMaps clientv1.ConfigMapInterface, namespace, name string) *Driver {
	return &Driver{
		namespace:  namespace,
		name:       name,
		configMaps: configMaps,
	}
}

func (d *Driver) Type() string {
	return fmt.Sprintf("kubernetes(%s/%s)", d.namespace, d.name)
}

func (d *Driver) ReadAll(ctx context.Context) (map[v1alpha1.Key][]byte, error) {
	configMap, err := d.configMaps.Get(ctx, d.name, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return map[v1alpha1.Key][]byte{}, nil
		}
		return nil, fmt.Errorf("failed to get configmap %s: %w", d.name, err)
	}
	return d.decode(configMap)
}

// Apply merges changes into the ConfigMap. Concurrent writers are detected by
// resourceVersion conflicts and retried on a fresh copy.
func (d *Driver) Apply(ctx context.Context, changes []settings.Change) error {
	shouldRetry := func(err error) bool {
		return errors.IsConflict(err) || errors.IsAlreadyExists(err)
	}

	return retry.OnError(retry.DefaultRetry, shouldRetry, func() error {
		// Get
		shouldCreate := false
		configMap, err := d.configMaps.Get(ctx, d.name, metav1.GetOptions{})
		if err != nil {
			if !errors.IsNotFound(err) {
				return err
			}
			shouldCreate = true
			configMap = &apiv1.ConfigMap{
				ObjectMeta: metav1.ObjectMeta{
					Name:      d.name,
					Namespace: d.namespace,
					Labels: map[string]string{
						ManagedByLabel: "settings-sync",
					},
				},
			}
		}

		// Merge
		entries, err := d.decode(configMap)
		if err != nil {
			return err
		}
		settings.ApplyChanges(entries, changes)
		document, err := settings.MarshalDocument(entries)
		if err != nil {
			return err
		}
		if configMap.Data == nil {
			configMap.Data = map[string]string{}
		}
		configMap.Data[DataKey] = string(document)

		// Create
		if shouldCreate {
			_, err = d.configMaps.Create(ctx, configMap, metav1.CreateOptions{})
			return err
		}

		// Update
		_, err = d.configMaps.Update(ctx, configMap, metav1.UpdateOptions{})
		return err
	})
}

// Watch reports modifications of the ConfigMap. The watch is re-established
// when the API server closes it.
func (d *Driver) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := d.watch(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)

		for {
			d.forward(ctx, watcher, ch)
			watcher.Stop()

			// Re-establish
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(rewatchDelay):
				}
				watcher, err = d.watch(ctx)
				if err == nil {
					break
				}
				logrus.WithField("configmap", d.name).Warnf("Failed to watch configmap: %v", err)
			}

			// Changes may have been missed
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}()

	return ch, nil
}

func (d *Driver) Close() error {
	return nil
}

func (d *Driver) watch(ctx context.Context) (watch.Interface, error) {
	watcher, err := d.configMaps.Watch(ctx, metav1.ListOptions{
		FieldSelector: fields.OneTermEqualSelector("metadata.name", d.name).String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch configmap %s: %w", d.name, err)
	}
	return watcher, nil
}

// forward notifies ch about events of the ConfigMap until the watch ends.
func (d *Driver) forward(ctx context.Context, watcher watch.Interface, ch chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.ResultChan():
			if !ok {
				return
			}
			configMap, ok := event.Object.(*apiv1.ConfigMap)
			if !ok || configMap.Name != d.name {
				continue
			}
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

func (d *Driver) decode(configMap *apiv1.ConfigMap) (map[v1alpha1.Key][]byte, error) {
	entries, err := settings.UnmarshalDocument([]byte(configMap.Data[DataKey]))
	if err != nil {
		return nil, fmt.Errorf("failed to parse configmap %s: %w", d.name, err)
	}
	return entries, nil
}
