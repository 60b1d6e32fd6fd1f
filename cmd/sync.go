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
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newSyncCmd(root *rootCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Writes pending changes and reloads changes made outside of this process.",
		Args:  cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			ctx := cobraCmd.Context()
			accessor, err := root.openAccessor(ctx)
			if err != nil {
				return err
			}
			defer closeAccessor(ctx, accessor)

			if err := accessor.Sync(ctx); err != nil {
				return fmt.Errorf("failed to sync %s: %w", accessor.Type(), err)
			}
			slog.InfoContext(ctx, "Synced settings", slog.String("backend", accessor.Type()))

			return nil
		},
	}
}
