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
	"fmt"
	"strings"
)

// KeySeparator separates the segments of a Key.
const KeySeparator = "/"

var ErrInvalidKey = errors.New("invalid settings key")

// Key points to a settings entry or group.
// Accepted formats: "key", "group/key", "group/subgroup/key".
// Every prefix of a key is itself a valid key that can be addressed independently.
// Keys are compared as-is, no case folding is applied.
type Key string

// JoinKey creates a Key from segments, e.g. JoinKey("net", "proxy") returns "net/proxy".
func JoinKey(segments ...string) Key {
	return Key(strings.Join(segments, KeySeparator))
}

// IsValid checks that the key consists of one or more non-empty segments.
func (key Key) IsValid() bool {
	if key == "" {
		return false
	}
	for _, segment := range strings.Split(string(key), KeySeparator) {
		if segment == "" {
			return false
		}
	}
	return true
}

// Validate returns ErrInvalidKey if the key is not valid.
func (key Key) Validate() error {
	if !key.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidKey, string(key))
	}
	return nil
}

// Segments returns all parts of the key, e.g. Segments("a/b/c") returns ["a", "b", "c"].
func (key Key) Segments() []string {
	if key == "" {
		return nil
	}
	return strings.Split(string(key), KeySeparator)
}

// GetPath returns path pointed by Key, e.g. GetPath("path/to/key") returns ["path", "to"]
func (key Key) GetPath() []string {
	parts := key.Segments()
	if len(parts) == 0 {
		return nil
	}
	return parts[:len(parts)-1]
}

// GetName returns base key pointed by Key, e.g. GetName("path/to/key") returns "key"
func (key Key) GetName() string {
	parts := key.Segments()
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// Child returns a key nested directly under this key.
func (key Key) Child(name string) Key {
	if key == "" {
		return Key(name)
	}
	return key + KeySeparator + Key(name)
}

// ParentGroups returns all strict ancestors of the key in root-to-leaf order,
// e.g. ParentGroups("a/b/c") returns ["a", "a/b"].
func (key Key) ParentGroups() []Key {
	path := key.GetPath()
	if len(path) == 0 {
		return nil
	}

	groups := make([]Key, 0, len(path))
	for i := range path {
		groups = append(groups, JoinKey(path[:i+1]...))
	}
	return groups
}

// IsPrefixOf reports whether other is this key or one of its descendants.
func (key Key) IsPrefixOf(other Key) bool {
	return other == key || strings.HasPrefix(string(other), string(key)+KeySeparator)
}

func (key Key) String() string {
	return string(key)
}
