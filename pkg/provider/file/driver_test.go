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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/settings"
)

func TestDriver(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")

	driver, err := NewDriver(path)
	require.NoError(t, err)

	// Missing file is empty
	entries, err := driver.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Write
	require.NoError(t, driver.Apply(ctx, []settings.Change{
		{Op: settings.ChangeSave, Key: "net/proxy/host", Value: []byte(`"10.0.0.1"`)},
		{Op: settings.ChangeSave, Key: "net/proxy/port", Value: []byte(`8080`)},
		{Op: settings.ChangeSave, Key: "Net/Proxy", Value: []byte(`{"a":true}`)},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Net/Proxy:\n  a: true\nnet/proxy/host: 10.0.0.1\nnet/proxy/port: 8080\n", string(data))

	// Read back, keys are case-sensitive
	entries, err = driver.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[v1alpha1.Key][]byte{
		"net/proxy/host": []byte(`"10.0.0.1"`),
		"net/proxy/port": []byte(`8080`),
		"Net/Proxy":      []byte(`{"a":true}`),
	}, entries)

	// Cascading remove
	require.NoError(t, driver.Apply(ctx, []settings.Change{
		{Op: settings.ChangeRemove, Key: "net"},
	}))
	entries, err = driver.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[v1alpha1.Key][]byte{
		"Net/Proxy": []byte(`{"a":true}`),
	}, entries)

	// No temporary files are left behind
	files, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	names := make([]string, 0, len(files))
	for _, file := range files {
		names = append(names, file.Name())
	}
	assert.Equal(t, []string{"settings.yaml", "settings.yaml" + LockSuffix}, names)
}

func TestDriverWaitsForFileLock(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.yaml")

	driver, err := NewDriver(path)
	require.NoError(t, err)

	// Another process holds the lock
	other := flock.New(path + LockSuffix)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	applied := make(chan error, 1)
	go func() {
		applied <- driver.Apply(ctx, []settings.Change{{Op: settings.ChangeSave, Key: "ui/theme", Value: []byte(`"dark"`)}})
	}()
	select {
	case err := <-applied:
		t.Fatalf("write did not wait for the file lock: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	// Write completes once the lock is released
	require.NoError(t, other.Unlock())
	select {
	case err := <-applied:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("write did not complete")
	}

	entries, err := driver.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[v1alpha1.Key][]byte{"ui/theme": []byte(`"dark"`)}, entries)

	// Cancelled writes give up waiting
	locked, err = other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock() //nolint:errcheck

	cancelCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	err = driver.Apply(cancelCtx, []settings.Change{{Op: settings.ChangeSave, Key: "ui/theme", Value: []byte(`"light"`)}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDriverRemovesNonASCIIGroup(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.yaml")

	driver, err := NewDriver(path)
	require.NoError(t, err)
	require.NoError(t, driver.Apply(ctx, []settings.Change{
		{Op: settings.ChangeSave, Key: "café/host", Value: []byte(`"10.0.0.1"`)},
		{Op: settings.ChangeSave, Key: "café/port", Value: []byte(`8080`)},
		{Op: settings.ChangeSave, Key: "cafés/x", Value: []byte(`true`)},
	}))
	require.NoError(t, driver.Apply(ctx, []settings.Change{
		{Op: settings.ChangeRemove, Key: "café"},
	}))

	// Read from a fresh driver
	reopened, err := NewDriver(path)
	require.NoError(t, err)
	entries, err := reopened.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[v1alpha1.Key][]byte{
		"cafés/x": []byte(`true`),
	}, entries)
}

func TestDriverReadsHandWrittenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
# edited by hand
ui/theme: dark
ui/scale: 1.5
"//invalid": skipped
net/proxy:
  port: 8080
  host: 10.0.0.1
`), 0o600))

	driver, err := NewDriver(path)
	require.NoError(t, err)

	entries, err := driver.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[v1alpha1.Key][]byte{
		"ui/theme":  []byte(`"dark"`),
		"ui/scale":  []byte(`1.5`),
		"net/proxy": []byte(`{"host":"10.0.0.1","port":8080}`),
	}, entries)
}

func TestDriverRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- not\n- a map\n"), 0o600))

	driver, err := NewDriver(path)
	require.NoError(t, err)

	_, err = driver.ReadAll(context.Background())
	assert.Error(t, err)
}

func TestAccessorsSharingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	spec := v1alpha1.AccessorSpec{
		FlushDelay: "1h",
		Provider: v1alpha1.AccessorProvider{
			File: &v1alpha1.AccessorProviderFile{Path: path},
		},
	}
	provider := &Provider{}
	require.NoError(t, provider.Validate(spec))

	first, err := provider.NewAccessor(context.Background(), v1alpha1.Owner{}, spec)
	require.NoError(t, err)
	defer first.Close()
	second, err := provider.NewAccessor(context.Background(), v1alpha1.Owner{}, spec)
	require.NoError(t, err)
	defer second.Close()

	events := make(chan v1alpha1.Event, 10)
	second.Subscribe(func(event v1alpha1.Event) { events <- event })

	require.NoError(t, first.Save("ui/theme", "dark"))
	require.NoError(t, first.Sync(context.Background()))

	// Detected by the file watcher or by Sync
	select {
	case <-events:
	case <-time.After(2 * time.Second):
		require.NoError(t, second.Sync(context.Background()))
	}
	assert.Equal(t, "dark", second.Load("ui/theme", nil))

	// Concurrent writers do not lose each other's entries
	require.NoError(t, second.Save("ui/scale", 2))
	require.NoError(t, first.Save("ui/font", "mono"))
	require.NoError(t, second.Sync(context.Background()))
	require.NoError(t, first.Sync(context.Background()))

	driver, err := NewDriver(path)
	require.NoError(t, err)
	entries, err := driver.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []v1alpha1.Key{"ui/font", "ui/scale", "ui/theme"}, settings.SortedKeys(entries))
}

func TestValidate(t *testing.T) {
	provider := &Provider{}

	assert.Error(t, provider.Validate(v1alpha1.AccessorSpec{}))
	assert.Error(t, provider.Validate(v1alpha1.AccessorSpec{
		Provider: v1alpha1.AccessorProvider{File: &v1alpha1.AccessorProviderFile{}},
	}))
	assert.NoError(t, provider.Validate(v1alpha1.AccessorSpec{
		Owner:    v1alpha1.Owner{Organization: "acme", Application: "demo"},
		Provider: v1alpha1.AccessorProvider{File: &v1alpha1.AccessorProviderFile{}},
	}))
}

func TestDefaultPath(t *testing.T) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		t.Skipf("no user config dir: %v", err)
	}

	path, err := DefaultPath(v1alpha1.Owner{Organization: "acme", Application: "demo"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(configDir, "acme", "demo.yaml"), path)

	path, err = DefaultPath(v1alpha1.Owner{Application: "demo"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(configDir, "demo.yaml"), path)

	_, err = DefaultPath(v1alpha1.Owner{})
	assert.Error(t, err)
}
