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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ghodss/yaml"
	"github.com/spf13/cobra"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/config"
	"github.com/bank-vaults/settings-sync/pkg/provider"
	"github.com/bank-vaults/settings-sync/pkg/utils"
)

const (
	DefaultOrganization = "bank-vaults"
	DefaultApplication  = "settings-sync"
)

type rootCmd struct {
	flagStoreFile    string
	flagOrganization string
	flagApplication  string
}

// NewRootCmd creates the settings-sync command tree.
func NewRootCmd() *cobra.Command {
	cmd := &rootCmd{}
	cobraCmd := &cobra.Command{
		Use: "settings-sync",
		Long: `Settings Sync reads and writes application settings through a pluggable backend
like a local YAML file, SQLite, HashiCorp Vault or a Kubernetes ConfigMap
and synchronizes settings between backends.`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:      true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error { return cmd.init() },
	}

	// Register cmd flags
	cobraCmd.PersistentFlags().StringVar(&cmd.flagStoreFile, "store", "", "Settings store config file. "+
		"Uses the default accessor when not specified.")
	cobraCmd.PersistentFlags().StringVar(&cmd.flagOrganization, "organization", DefaultOrganization,
		"Organization used to derive default storage locations.")
	cobraCmd.PersistentFlags().StringVar(&cmd.flagApplication, "application", DefaultApplication,
		"Application used to derive default storage locations.")

	cobraCmd.AddCommand(
		newGetCmd(cmd),
		newSetCmd(cmd),
		newRemoveCmd(cmd),
		newListCmd(cmd),
		newSyncCmd(cmd),
		newWatchCmd(cmd),
		newMigrateCmd(cmd),
	)

	return cobraCmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		slog.ErrorContext(ctx, fmt.Sprintf("failed to execute command: %v", err))
		stop()
		os.Exit(1)
	}
}

func (cmd *rootCmd) init() error {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	utils.InitLogger(cfg)

	// Configure default accessors, empty selects the fallback provider
	provider.SetDefaultAccessorType(cfg.DefaultBackend)
	provider.DefaultRegistry().SetDefaultSpec(v1alpha1.AccessorSpec{
		FlushDelay: cfg.FlushDelay.String(),
	})

	return nil
}

func (cmd *rootCmd) owner() v1alpha1.Owner {
	return v1alpha1.Owner{
		Organization: cmd.flagOrganization,
		Application:  cmd.flagApplication,
	}
}

// openAccessor creates the accessor selected by --store or the default accessor.
func (cmd *rootCmd) openAccessor(ctx context.Context) (v1alpha1.Accessor, error) {
	if cmd.flagStoreFile == "" {
		accessor := provider.CreateDefaultAccessor(cmd.owner())
		if accessor == nil {
			return nil, fmt.Errorf("failed to create default settings accessor")
		}
		return accessor, nil
	}
	return initStore(ctx, cmd.flagStoreFile, cmd.owner())
}

func initStore(ctx context.Context, path string, owner v1alpha1.Owner) (v1alpha1.Accessor, error) {
	spec, err := loadStore(path)
	if err != nil {
		return nil, fmt.Errorf("error loading store: %w", err)
	}

	accessor, err := provider.NewAccessor(ctx, owner, *spec)
	if err != nil {
		return nil, fmt.Errorf("error creating accessor: %w", err)
	}

	return accessor, nil
}

func loadStore(path string) (*v1alpha1.AccessorSpec, error) {
	// Load file
	yamlBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Unmarshal (convert YAML to JSON)
	var storeConfig = struct {
		SettingsStore *v1alpha1.AccessorSpec `json:"settingsStore"`
	}{}

	jsonBytes, err := yaml.YAMLToJSON(yamlBytes)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(jsonBytes, &storeConfig); err != nil {
		return nil, err
	}
	if storeConfig.SettingsStore == nil {
		return nil, fmt.Errorf("missing settingsStore in %s", path)
	}

	return storeConfig.SettingsStore, nil
}

// closeAccessor persists pending changes and reports failures that are not
// already returned by the command.
func closeAccessor(ctx context.Context, accessor v1alpha1.Accessor) {
	if err := accessor.Close(); err != nil {
		slog.ErrorContext(ctx, fmt.Sprintf("failed to close %s: %v", accessor.Type(), err))
	}
}
