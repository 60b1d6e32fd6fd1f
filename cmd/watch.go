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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/settings"
	settingssync "github.com/bank-vaults/settings-sync/pkg/sync"
)

type watchCmd struct {
	root            *rootCmd
	flagSchedule    string
	flagMetricsAddr string
}

func newWatchCmd(root *rootCmd) *cobra.Command {
	cmd := &watchCmd{root: root}
	cobraCmd := &cobra.Command{
		Use:   "watch",
		Short: "Prints change events until interrupted. External changes are pulled on schedule.",
		Args:  cobra.NoArgs,
		RunE:  cmd.run,
	}

	// Register cmd flags
	cobraCmd.Flags().StringVar(&cmd.flagSchedule, "schedule", v1alpha1.DefaultSyncSchedule,
		"Sync periodically using CRON schedule.")
	cobraCmd.Flags().StringVar(&cmd.flagMetricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address, e.g. :9090.")

	return cobraCmd
}

func (cmd *watchCmd) run(cobraCmd *cobra.Command, _ []string) error {
	ctx := cobraCmd.Context()

	// Serve metrics
	if cmd.flagMetricsAddr != "" {
		registry := prometheus.NewRegistry()
		settings.SetDefaultMetrics(settings.NewMetrics(registry))
		defer settings.SetDefaultMetrics(nil)

		server := newMetricsServer(cmd.flagMetricsAddr, registry)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.ErrorContext(ctx, fmt.Sprintf("metrics server failed: %v", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	accessor, err := cmd.root.openAccessor(ctx)
	if err != nil {
		return err
	}
	defer closeAccessor(ctx, accessor)

	// Print events
	out := cobraCmd.OutOrStdout()
	var outMu sync.Mutex
	unsubscribe := accessor.Subscribe(func(event v1alpha1.Event) {
		line := fmt.Sprintf("%s %s %s", event.Origin, event.Kind, event.Key)
		if event.Kind == v1alpha1.EntryChanged {
			if raw, err := settings.Encode(event.Value); err == nil {
				line += " " + string(raw)
			}
		}

		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintln(out, line)
	})
	defer unsubscribe()

	// Pull on schedule
	manager, err := settingssync.Start(accessor,
		settingssync.WithSchedule(cmd.flagSchedule),
		settingssync.WithLogger(logrus.WithField("backend", accessor.Type())),
	)
	if err != nil {
		return fmt.Errorf("failed to start sync: %w", err)
	}
	defer func() {
		manager.Stop()
		manager.Wait()
	}()

	slog.InfoContext(ctx, "Watching settings",
		slog.String("backend", accessor.Type()),
		slog.String("schedule", cmd.flagSchedule),
	)
	<-ctx.Done()

	return nil
}

func newMetricsServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
