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

package settings_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bank-vaults/settings-sync/pkg/settings"
)

type proxySettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func TestTypedLoads(t *testing.T) {
	store := createStore(t, t.Name())

	require.NoError(t, store.Save("string", "value"))
	require.NoError(t, store.Save("int", 8080))
	require.NoError(t, store.Save("int-string", "8080"))
	require.NoError(t, store.Save("float", 0.25))
	require.NoError(t, store.Save("bool", true))
	require.NoError(t, store.Save("bool-string", "true"))
	require.NoError(t, store.Save("duration", "1m30s"))
	require.NoError(t, store.Save("slice", []string{"a", "b"}))
	require.NoError(t, store.Save("map", map[string]any{"a": "b"}))

	assert.Equal(t, "value", settings.LoadString(store, "string", ""))
	assert.Equal(t, "8080", settings.LoadString(store, "int", ""))
	assert.Equal(t, 8080, settings.LoadInt(store, "int", 0))
	assert.Equal(t, 8080, settings.LoadInt(store, "int-string", 0))
	assert.Equal(t, int64(8080), settings.LoadInt64(store, "int", 0))
	assert.Equal(t, 0.25, settings.LoadFloat64(store, "float", 0))
	assert.True(t, settings.LoadBool(store, "bool", false))
	assert.True(t, settings.LoadBool(store, "bool-string", false))
	assert.Equal(t, 90*time.Second, settings.LoadDuration(store, "duration", 0))
	assert.Equal(t, []string{"a", "b"}, settings.LoadStringSlice(store, "slice", nil))
	assert.Equal(t, map[string]any{"a": "b"}, settings.LoadStringMap(store, "map", nil))

	// Missing and inconvertible values return the default
	assert.Equal(t, "default", settings.LoadString(store, "missing", "default"))
	assert.Equal(t, 7, settings.LoadInt(store, "string", 7))
	assert.Equal(t, time.Second, settings.LoadDuration(store, "string", time.Second))
}

func TestLoadAs(t *testing.T) {
	location := t.Name()
	store := createStore(t, location)

	proxy := proxySettings{Host: "10.0.0.1", Port: 8080}
	require.NoError(t, store.Save("net/proxy", proxy))
	assert.Equal(t, proxy, settings.LoadAs(store, "net/proxy", proxySettings{}))
	assert.Equal(t, proxySettings{Port: 1}, settings.LoadAs(store, "missing", proxySettings{Port: 1}))
	assert.Equal(t, 3, settings.LoadAs(store, "net/proxy", 3))

	// Values reloaded from the backend keep loading with their saved type
	require.NoError(t, store.Sync(testCtx))
	other := createPassiveStore(t, location)
	assert.Equal(t, proxy, settings.LoadAs(other, "net/proxy", proxySettings{}))
	assert.Equal(t, "10.0.0.1", settings.LoadStringMap(other, "net/proxy", nil)["host"])
}

func TestCodec(t *testing.T) {
	for _, tt := range []struct {
		value any
		want  string
	}{
		{value: "value", want: `"value"`},
		{value: 8080, want: `8080`},
		{value: 1.0, want: `1`},
		{value: proxySettings{Port: 1, Host: "h"}, want: `{"host":"h","port":1}`},
		{value: map[string]int{"b": 1, "a": 2}, want: `{"a":2,"b":1}`},
	} {
		data, err := settings.Encode(tt.value)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(data))

		// Decoded values encode to the same bytes
		decoded, err := settings.Decode(data)
		require.NoError(t, err)
		again, err := settings.Encode(decoded)
		require.NoError(t, err)
		assert.Equal(t, data, again)
	}

	_, err := settings.Decode([]byte("{"))
	assert.Error(t, err)
	_, err = settings.Canonicalize([]byte("not json"))
	assert.Error(t, err)
}
