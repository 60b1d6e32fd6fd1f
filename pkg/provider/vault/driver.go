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

package vault

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	vaultapi "github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/settings"
)

// valueField holds the encoded value inside a KV v2 secret.
const valueField = "value"

// readConcurrency limits parallel secret reads during ReadAll.
const readConcurrency = 8

// Write attempts per secret before a change batch is reported as failed.
var (
	writeAttempts   uint = 3
	writeRetryDelay      = 200 * time.Millisecond
)

// logical is the subset of the Vault logical API used by the driver.
type logical interface {
	ReadWithContext(ctx context.Context, path string) (*vaultapi.Secret, error)
	ListWithContext(ctx context.Context, path string) (*vaultapi.Secret, error)
	WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*vaultapi.Secret, error)
	DeleteWithContext(ctx context.Context, path string) (*vaultapi.Secret, error)
}

// Driver stores every entry as a separate secret of a KV v2 secrets engine at
// <mount>/data/<prefix>/<key>. Vault paths are case-sensitive.
type Driver struct {
	logical logical
	address string
	mount   string
	prefix  string
	closer  func()
}

var _ settings.Driver = &Driver{}

func newDriver(logical logical, address, mount, prefix string, closer func()) *Driver {
	return &Driver{
		logical: logical,
		address: address,
		mount:   strings.Trim(mount, "/"),
		prefix:  strings.Trim(prefix, "/"),
		closer:  closer,
	}
}

func (d *Driver) Type() string {
	return fmt.Sprintf("vault(%s/%s/%s)", d.address, d.mount, d.prefix)
}

func (d *Driver) ReadAll(ctx context.Context) (map[v1alpha1.Key][]byte, error) {
	// List
	keys, err := d.recursiveList(ctx, "")
	if err != nil {
		return nil, err
	}

	// Read in parallel
	var mu sync.Mutex
	entries := make(map[v1alpha1.Key][]byte, len(keys))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(readConcurrency)
	for _, key := range keys {
		key := key
		group.Go(func() error {
			value, ok, err := d.read(groupCtx, key)
			if err != nil || !ok {
				return err
			}
			mu.Lock()
			entries[key] = value
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return entries, nil
}

// Apply writes changes one secret at a time.
func (d *Driver) Apply(ctx context.Context, changes []settings.Change) error {
	for _, change := range changes {
		var err error
		switch change.Op {
		case settings.ChangeSave:
			err = d.write(ctx, change.Key, change.Value)
		case settings.ChangeRemove:
			err = d.remove(ctx, change.Key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) Close() error {
	if d.closer != nil {
		d.closer()
	}
	return nil
}

func (d *Driver) read(ctx context.Context, key v1alpha1.Key) ([]byte, bool, error) {
	// Get from API
	response, err := d.logical.ReadWithContext(ctx, d.dataPath(key.String()))
	if err != nil {
		return nil, false, errors.Wrapf(err, "api get request failed for key '%s'", key)
	}
	if response == nil || response.Data == nil {
		return nil, false, nil
	}

	// Deleted versions have no data
	secretData, ok := response.Data["data"]
	if !ok || secretData == nil {
		return nil, false, nil
	}
	data, err := cast.ToStringMapE(secretData)
	if err != nil {
		return nil, false, errors.Wrapf(err, "invalid data for key '%s'", key)
	}

	// Get value
	rawValue, ok := data[valueField]
	if !ok {
		return nil, false, nil
	}
	encoded, err := cast.ToStringE(rawValue)
	if err != nil {
		return nil, false, errors.Wrapf(err, "invalid value for key '%s'", key)
	}
	value, err := settings.Canonicalize([]byte(encoded))
	if err != nil {
		return nil, false, errors.Wrapf(err, "invalid value for key '%s'", key)
	}
	return value, true, nil
}

func (d *Driver) write(ctx context.Context, key v1alpha1.Key, value []byte) error {
	path := d.dataPath(key.String())
	err := retry.Do(func() error {
		_, err := d.logical.WriteWithContext(ctx, path, map[string]interface{}{
			"data": map[string]interface{}{
				valueField: string(value),
			},
		})
		return err
	},
		retry.Context(ctx),
		retry.Attempts(writeAttempts),
		retry.Delay(writeRetryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return errors.Wrapf(err, "error writing key '%s' to vault addr '%s' and path '%s'", key, d.address, path)
	}
	return nil
}

// remove deletes all versions of key and of every key nested under it.
func (d *Driver) remove(ctx context.Context, key v1alpha1.Key) error {
	nested, err := d.recursiveList(ctx, key.String()+v1alpha1.KeySeparator)
	if err != nil {
		return err
	}

	for _, target := range append(nested, key) {
		path := d.metadataPath(target.String())
		if _, err := d.logical.DeleteWithContext(ctx, path); err != nil {
			return errors.Wrapf(err, "error deleting key '%s' from vault addr '%s' and path '%s'", target, d.address, path)
		}
	}
	return nil
}

// recursiveList returns all keys under dir, which is either empty or ends
// with a separator. A listed key is either a secret or a dir marked by a
// '/' suffix. Dirs are listed recursively.
func (d *Driver) recursiveList(ctx context.Context, dir string) ([]v1alpha1.Key, error) {
	// List API request
	response, err := d.logical.ListWithContext(ctx, d.metadataPath(dir))
	if err != nil {
		return nil, errors.Wrapf(err, "api list request failed for '%s'", dir)
	}
	if response == nil || response.Data == nil {
		return nil, nil
	}

	// Read from response
	listData, ok := response.Data["keys"]
	if !ok || listData == nil {
		return nil, nil
	}
	listSlice, err := cast.ToSliceE(listData)
	if err != nil {
		return nil, errors.Wrapf(err, "api list returned invalid data for '%s'", dir)
	}

	var result []v1alpha1.Key
	for _, listKey := range listSlice {
		subKey := fmt.Sprintf("%s%v", dir, listKey)
		if !strings.HasSuffix(subKey, v1alpha1.KeySeparator) { // key
			if key := v1alpha1.Key(subKey); key.IsValid() {
				result = append(result, key)
			}
			continue
		}

		// Recursive list
		subKeys, err := d.recursiveList(ctx, subKey)
		if err != nil {
			return nil, err
		}
		result = append(result, subKeys...)
	}

	return result, nil
}

func (d *Driver) dataPath(name string) string {
	return d.enginePath("data", name)
}

func (d *Driver) metadataPath(name string) string {
	return d.enginePath("metadata", name)
}

func (d *Driver) enginePath(kind, name string) string {
	parts := []string{d.mount, kind}
	if d.prefix != "" {
		parts = append(parts, d.prefix)
	}
	return strings.Join(parts, "/") + "/" + name
}
