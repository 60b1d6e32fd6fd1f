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

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/ghodss/yaml"
	"github.com/spf13/cobra"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/settings"
)

func newGetCmd(root *rootCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Prints the value stored for a key as YAML.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			ctx := cobraCmd.Context()
			key := v1alpha1.Key(args[0])
			if err := key.Validate(); err != nil {
				return err
			}

			accessor, err := root.openAccessor(ctx)
			if err != nil {
				return err
			}
			defer closeAccessor(ctx, accessor)

			if !accessor.Contains(key) {
				return fmt.Errorf("key '%s' not found in %s", key, accessor.Type())
			}
			return printValue(cobraCmd.OutOrStdout(), accessor.Load(key, nil))
		},
	}
}

func newSetCmd(root *rootCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Stores a value for a key. The value is parsed as YAML.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			value, err := parseValue(args[1])
			if err != nil {
				return err
			}

			accessor, err := root.openAccessor(cobraCmd.Context())
			if err != nil {
				return err
			}

			saveErr := accessor.Save(v1alpha1.Key(args[0]), value)
			return errors.Join(saveErr, accessor.Close())
		},
	}
}

func newRemoveCmd(root *rootCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <key>",
		Short: "Removes a key and every key nested under it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			accessor, err := root.openAccessor(cobraCmd.Context())
			if err != nil {
				return err
			}

			removeErr := accessor.Remove(v1alpha1.Key(args[0]))
			return errors.Join(removeErr, accessor.Close())
		},
	}
}

type listCmd struct {
	root       *rootCmd
	flagValues bool
}

func newListCmd(root *rootCmd) *cobra.Command {
	cmd := &listCmd{root: root}
	cobraCmd := &cobra.Command{
		Use:   "list [group]",
		Short: "Lists keys nested under a group, or all keys.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  cmd.run,
	}

	cobraCmd.Flags().BoolVar(&cmd.flagValues, "values", false, "Print entries as a YAML document.")

	return cobraCmd
}

func (cmd *listCmd) run(cobraCmd *cobra.Command, args []string) error {
	ctx := cobraCmd.Context()
	var group v1alpha1.Key
	if len(args) > 0 {
		group = v1alpha1.Key(args[0])
	}

	accessor, err := cmd.root.openAccessor(ctx)
	if err != nil {
		return err
	}
	defer closeAccessor(ctx, accessor)

	lister, ok := accessor.(v1alpha1.Lister)
	if !ok {
		return fmt.Errorf("%s cannot list keys", accessor.Type())
	}
	keys := lister.Keys(group)

	out := cobraCmd.OutOrStdout()
	if !cmd.flagValues {
		for _, key := range keys {
			fmt.Fprintln(out, key)
		}
		return nil
	}

	// Render document
	entries := make(map[v1alpha1.Key][]byte, len(keys))
	for _, key := range keys {
		raw, err := settings.Encode(accessor.Load(key, nil))
		if err != nil {
			return fmt.Errorf("failed to encode '%s': %w", key, err)
		}
		entries[key] = raw
	}
	data, err := settings.MarshalDocument(entries)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

// parseValue converts a YAML scalar or document to a settings value.
func parseValue(text string) (any, error) {
	jsonBytes, err := yaml.YAMLToJSON([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("failed to parse value: %w", err)
	}
	return settings.Decode(jsonBytes)
}

func printValue(out io.Writer, value any) error {
	raw, err := settings.Encode(value)
	if err != nil {
		return err
	}
	data, err := yaml.JSONToYAML(raw)
	if err != nil {
		return fmt.Errorf("failed to convert value to yaml: %w", err)
	}
	_, err = out.Write(data)
	return err
}
