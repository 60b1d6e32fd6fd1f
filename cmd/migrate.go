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

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/storesync"
)

type migrateCmd struct {
	root           *rootCmd
	flagTargetFile string
}

func newMigrateCmd(root *rootCmd) *cobra.Command {
	cmd := &migrateCmd{root: root}
	cobraCmd := &cobra.Command{
		Use:   "migrate --target <store.yaml> [group...]",
		Short: "Copies settings under groups, or all settings, to a target store.",
		RunE:  cmd.run,
	}

	// Register cmd flags
	cobraCmd.Flags().StringVar(&cmd.flagTargetFile, "target", "", "Target store config file. "+
		"This is the store where the settings will be copied to.")
	_ = cobraCmd.MarkFlagRequired("target")

	return cobraCmd
}

func (cmd *migrateCmd) run(cobraCmd *cobra.Command, args []string) error {
	ctx := cobraCmd.Context()

	groups := make([]v1alpha1.Key, 0, len(args))
	for _, arg := range args {
		groups = append(groups, v1alpha1.Key(arg))
	}

	// Init source
	source, err := cmd.root.openAccessor(ctx)
	if err != nil {
		return fmt.Errorf("error initializing source store: %w", err)
	}
	defer closeAccessor(ctx, source)

	// Init target
	target, err := initStore(ctx, cmd.flagTargetFile, cmd.root.owner())
	if err != nil {
		return fmt.Errorf("error initializing target store: %w", err)
	}
	defer closeAccessor(ctx, target)

	// Sync
	status, err := storesync.Sync(ctx, source, target, groups...)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, status.Status)
	fmt.Fprintln(cobraCmd.OutOrStdout(), status.Status)

	if !status.Success {
		return fmt.Errorf("migration incomplete: %s", status.Status)
	}
	return nil
}
