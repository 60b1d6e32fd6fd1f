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

package v1alpha1

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	for _, tt := range []struct {
		key    Key
		valid  bool
		path   []string
		name   string
		groups []Key
	}{
		{ // empty
			key: "",
		},
		{ // leading separator
			key:    "/a",
			path:   []string{""},
			name:   "a",
			groups: []Key{""},
		},
		{ // trailing separator
			key:    "a/",
			path:   []string{"a"},
			name:   "",
			groups: []Key{"a"},
		},
		{ // doubled separator
			key:    "a//b",
			path:   []string{"a", ""},
			name:   "b",
			groups: []Key{"a", "a/"},
		},
		{ // only name
			key:   "key",
			valid: true,
			path:  []string{},
			name:  "key",
		},
		{ // path and name
			key:    "group/subgroup/key",
			valid:  true,
			path:   []string{"group", "subgroup"},
			name:   "key",
			groups: []Key{"group", "group/subgroup"},
		},
	} {
		t.Run(string(tt.key), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.key.IsValid())
			if tt.valid {
				assert.NoError(t, tt.key.Validate())
			} else {
				assert.True(t, errors.Is(tt.key.Validate(), ErrInvalidKey))
			}
			if tt.key == "" {
				assert.Nil(t, tt.key.GetPath())
				assert.Nil(t, tt.key.ParentGroups())
				return
			}
			assert.Equal(t, tt.path, tt.key.GetPath())
			assert.Equal(t, tt.name, tt.key.GetName())
			assert.Equal(t, tt.groups, tt.key.ParentGroups())
		})
	}
}

func TestKeyIsPrefixOf(t *testing.T) {
	for _, tt := range []struct {
		a, b Key
		want bool
	}{
		{a: "a", b: "a", want: true},
		{a: "a", b: "a/b", want: true},
		{a: "a/b", b: "a/b/c", want: true},
		{a: "a", b: "ab", want: false},
		{a: "a/b", b: "a", want: false},
		{a: "a/b", b: "a/bc/d", want: false},
	} {
		assert.Equal(t, tt.want, tt.a.IsPrefixOf(tt.b), "%q prefix of %q", tt.a, tt.b)
	}
}

func TestKeyJoin(t *testing.T) {
	assert.Equal(t, Key("net/proxy/host"), JoinKey("net", "proxy", "host"))
	assert.Equal(t, Key("net/proxy"), Key("net").Child("proxy"))
	assert.Equal(t, Key("net"), Key("").Child("net"))
	assert.Equal(t, []string{"net", "proxy"}, Key("net/proxy").Segments())
}
