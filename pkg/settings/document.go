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
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ghodss/yaml"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
)

// UnmarshalDocument parses a YAML document mapping full keys to values.
// An empty document yields no entries. Keys that are not valid are skipped.
func UnmarshalDocument(data []byte) (map[v1alpha1.Key][]byte, error) {
	entries := map[v1alpha1.Key][]byte{}
	if len(bytes.TrimSpace(data)) == 0 {
		return entries, nil
	}

	// Convert
	jsonBytes, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert document to json: %w", err)
	}

	var document map[string]json.RawMessage
	if err := json.Unmarshal(jsonBytes, &document); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	// Canonicalize
	for name, raw := range document {
		key := v1alpha1.Key(name)
		if !key.IsValid() {
			continue
		}
		value, err := Canonicalize(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to read entry %q: %w", name, err)
		}
		entries[key] = value
	}
	return entries, nil
}

// MarshalDocument renders entries as a YAML document with sorted keys.
func MarshalDocument(entries map[v1alpha1.Key][]byte) ([]byte, error) {
	document := make(map[string]json.RawMessage, len(entries))
	for key, value := range entries {
		document[key.String()] = value
	}

	jsonBytes, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	data, err := yaml.JSONToYAML(jsonBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to convert document to yaml: %w", err)
	}
	return data, nil
}
