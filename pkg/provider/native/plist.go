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

package native

import (
	"bytes"
	"fmt"

	"howett.net/plist"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/settings"
)

// parseDefaults converts a property list exported by `defaults export`
// into entries. String values written by the driver hold encoded values,
// other values are converted to their closest encoded form.
func parseDefaults(data []byte) (map[v1alpha1.Key][]byte, error) {
	entries := map[v1alpha1.Key][]byte{}
	if len(bytes.TrimSpace(data)) == 0 {
		return entries, nil
	}

	var document map[string]any
	if _, err := plist.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("failed to parse property list: %w", err)
	}

	for name, value := range document {
		key := v1alpha1.Key(name)
		if !key.IsValid() {
			continue
		}
		encoded, err := encodeDefault(value)
		if err != nil {
			return nil, fmt.Errorf("failed to read entry %q: %w", name, err)
		}
		entries[key] = encoded
	}
	return entries, nil
}

// encodeDefault keeps strings holding encoded values and encodes everything else.
func encodeDefault(value any) ([]byte, error) {
	if text, ok := value.(string); ok {
		if canonical, err := settings.Canonicalize([]byte(text)); err == nil {
			return canonical, nil
		}
	}
	return settings.Encode(value)
}
