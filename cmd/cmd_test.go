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

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bank-vaults/settings-sync/pkg/settings"
)

func TestEntries(t *testing.T) {
	store := fileStore(t, filepath.Join(t.TempDir(), "settings.yaml"))

	_, err := execute(t, "--store", store, "set", "ui/theme", "dark")
	require.NoError(t, err)
	_, err = execute(t, "--store", store, "set", "net/proxy", "{host: 10.0.0.1, port: 8080}")
	require.NoError(t, err)

	// Get
	out, err := execute(t, "--store", store, "get", "ui/theme")
	require.NoError(t, err)
	assert.Equal(t, "dark\n", out)

	out, err = execute(t, "--store", store, "get", "net/proxy")
	require.NoError(t, err)
	assert.Equal(t, "host: 10.0.0.1\nport: 8080\n", out)

	// List
	out, err = execute(t, "--store", store, "list")
	require.NoError(t, err)
	assert.Equal(t, "net/proxy\nui/theme\n", out)

	out, err = execute(t, "--store", store, "list", "--values", "net")
	require.NoError(t, err)
	assert.Equal(t, "net/proxy:\n  host: 10.0.0.1\n  port: 8080\n", out)

	// Remove group
	_, err = execute(t, "--store", store, "remove", "net")
	require.NoError(t, err)

	_, err = execute(t, "--store", store, "get", "net/proxy")
	assert.ErrorContains(t, err, "not found")

	out, err = execute(t, "--store", store, "list")
	require.NoError(t, err)
	assert.Equal(t, "ui/theme\n", out)

	// Sync
	_, err = execute(t, "--store", store, "sync")
	assert.NoError(t, err)
}

func TestEntriesValidation(t *testing.T) {
	store := fileStore(t, filepath.Join(t.TempDir(), "settings.yaml"))

	_, err := execute(t, "--store", store, "get", "/invalid")
	assert.Error(t, err)

	_, err = execute(t, "--store", store, "set", "invalid/", "value")
	assert.Error(t, err)

	_, err = execute(t, "--store", store, "set", "ui/theme", "{unclosed")
	assert.Error(t, err)

	_, err = execute(t, "--store", store, "get")
	assert.Error(t, err)
}

func TestStoreFiles(t *testing.T) {
	dir := t.TempDir()

	for _, tt := range []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing settingsStore",
			content: "provider:\n  file: {}\n",
			wantErr: "missing settingsStore",
		},
		{
			name:    "no provider",
			content: "settingsStore:\n  provider: {}\n",
			wantErr: "failed to get provider",
		},
		{
			name:    "multiple providers",
			content: "settingsStore:\n  provider:\n    file: {}\n    memory: {}\n",
			wantErr: "failed to get provider",
		},
		{
			name:    "invalid provider config",
			content: "settingsStore:\n  provider:\n    kubernetes: {}\n",
			wantErr: "failed to validate settings backend",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "-")+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := execute(t, "--store", path, "list")
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	_, err := execute(t, "--store", filepath.Join(dir, "missing.yaml"), "list")
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	dir := t.TempDir()
	source := fileStore(t, filepath.Join(dir, "source.yaml"))
	target := sqliteStore(t, filepath.Join(dir, "target.db"))

	_, err := execute(t, "--store", source, "set", "ui/theme", "dark")
	require.NoError(t, err)
	_, err = execute(t, "--store", source, "set", "ui/font/size", "12")
	require.NoError(t, err)
	_, err = execute(t, "--store", source, "set", "net/proxy/host", "10.0.0.1")
	require.NoError(t, err)

	// Migrate group
	out, err := execute(t, "--store", source, "migrate", "--target", target, "ui")
	require.NoError(t, err)
	assert.Equal(t, "Synced 2 out of total 2 keys\n", out)

	out, err = execute(t, "--store", target, "list", "--values")
	require.NoError(t, err)
	assert.Equal(t, "ui/font/size: 12\nui/theme: dark\n", out)

	// Migrate all
	out, err = execute(t, "--store", source, "migrate", "--target", target)
	require.NoError(t, err)
	assert.Equal(t, "Synced 3 out of total 3 keys\n", out)

	out, err = execute(t, "--store", target, "get", "net/proxy/host")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1\n", out)

	// Target is required
	_, err = execute(t, "--store", source, "migrate")
	assert.Error(t, err)
}

func TestDefaultAccessor(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("user config dir is only configurable on linux")
	}
	configDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	// Fallback file provider
	_, err := execute(t, "--organization", "acme", "--application", "demo", "set", "ui/theme", "dark")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(configDir, "acme", "demo.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ui/theme: dark\n", string(data))

	// Provider selected by name
	t.Setenv("SETTINGS_DEFAULT_BACKEND", "sqlite")

	_, err = execute(t, "--organization", "acme", "--application", "demo", "set", "ui/theme", "light")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(configDir, "acme", "demo.db"))

	out, err := execute(t, "--organization", "acme", "--application", "demo", "get", "ui/theme")
	require.NoError(t, err)
	assert.Equal(t, "light\n", out)

	// Unknown provider
	t.Setenv("SETTINGS_DEFAULT_BACKEND", "unknown")

	_, err = execute(t, "--organization", "acme", "--application", "demo", "list")
	assert.ErrorContains(t, err, "failed to create default settings accessor")
}

func TestWatch(t *testing.T) {
	store := fileStore(t, filepath.Join(t.TempDir(), "settings.yaml"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start watching
	out := &lockedBuffer{}
	done := make(chan error, 1)
	go func() {
		root := NewRootCmd()
		root.SetOut(out)
		root.SetErr(io.Discard)
		root.SetArgs([]string{"--store", store, "watch", "--schedule", "@every 1s"})
		done <- root.ExecuteContext(ctx)
	}()

	// Change from another process until the watcher picks it up
	counter := 0
	assert.Eventually(t, func() bool {
		counter++
		_, err := execute(t, "--store", store, "set", "ui/counter", fmt.Sprint(counter))
		assert.NoError(t, err)
		return strings.Contains(out.String(), "external EntryChanged ui/counter")
	}, 15*time.Second, 1500*time.Millisecond)

	// Stop watching
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestMetricsServer(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := settings.NewMetrics(registry)
	metrics.Flushes.WithLabelValues("memory(test)").Inc()

	server := newMetricsServer(":0", registry)
	recorder := httptest.NewRecorder()
	server.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `settings_flushes_total{backend="memory(test)"} 1`)
}

func TestParseValue(t *testing.T) {
	for _, tt := range []struct {
		text string
		want any
	}{
		{text: "dark", want: "dark"},
		{text: "8080", want: json.Number("8080")},
		{text: "true", want: true},
		{text: "'true'", want: "true"},
		{text: "[a, b]", want: []any{"a", "b"}},
		{text: "host: 10.0.0.1", want: map[string]any{"host": "10.0.0.1"}},
		{text: "", want: nil},
	} {
		value, err := parseValue(tt.text)
		require.NoError(t, err)
		assert.Equal(t, tt.want, value, tt.text)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	root := NewRootCmd()
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func fileStore(t *testing.T, path string) string {
	return storeFile(t, fmt.Sprintf(`
settingsStore:
  flushDelay: 10ms
  provider:
    file:
      path: %q
      disableWatch: true
`, path))
}

func sqliteStore(t *testing.T, path string) string {
	return storeFile(t, fmt.Sprintf(`
settingsStore:
  flushDelay: 10ms
  provider:
    sqlite:
      path: %q
      pollInterval: -1s
`, path))
}

func storeFile(t *testing.T, content string) string {
	// Create file
	tmpFile, err := os.CreateTemp(t.TempDir(), "store.*.yaml")
	require.NoError(t, err)
	defer tmpFile.Close()

	// Write
	_, err = tmpFile.WriteString(content)
	require.NoError(t, err)

	return tmpFile.Name()
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
