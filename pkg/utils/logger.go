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

package utils

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"

	slogmulti "github.com/samber/slog-multi"
	slogsyslog "github.com/samber/slog-syslog"
	"github.com/sirupsen/logrus"

	"github.com/bank-vaults/settings-sync/pkg/config"
)

const appName = "settings-sync"

// InitLogger configures the default slog logger and the logrus standard
// logger used by library packages.
func InitLogger(config *config.Config) {
	slog.SetDefault(NewLogger(config, os.Stdout, os.Stderr))
	configureLogrus(config)
}

// NewLogger creates a logger which sends warnings and errors to stderr and
// everything else to stdout.
func NewLogger(config *config.Config, stdout, stderr io.Writer) *slog.Logger {
	var level slog.Level

	err := level.UnmarshalText([]byte(config.LogLevel))
	if err != nil { // Silently fall back to info level
		level = slog.LevelInfo
	}

	levelFilter := func(levels ...slog.Level) func(ctx context.Context, r slog.Record) bool {
		return func(_ context.Context, r slog.Record) bool {
			return r.Level >= level && slices.Contains(levels, r.Level)
		}
	}

	newHandler := func(w io.Writer, minLevel slog.Level) slog.Handler {
		if config.JSONLog {
			return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: minLevel})
		}
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: minLevel})
	}

	router := slogmulti.Router()

	// Send logs with level higher than warning to stderr
	router = router.Add(
		newHandler(stderr, slog.LevelWarn),
		levelFilter(slog.LevelWarn, slog.LevelError),
	)

	// Send info and debug logs to stdout
	router = router.Add(
		newHandler(stdout, slog.LevelDebug),
		levelFilter(slog.LevelDebug, slog.LevelInfo),
	)

	if config.LogServer != "" {
		writer, err := net.Dial("udp", config.LogServer)

		// We silently ignore syslog connection errors for the lack of a better solution
		if err == nil {
			router = router.Add(slogsyslog.Option{Level: level, Writer: writer}.NewSyslogHandler())
		}
	}

	logger := slog.New(router.Handler())
	return logger.With(slog.String("app", appName))
}

func configureLogrus(config *config.Config) {
	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)

	if config.JSONLog {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logrus.StandardLogger().AddHook(appHook{})
}

// appHook adds the application name to logrus entries.
type appHook struct{}

func (appHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (appHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["app"]; !ok {
		entry.Data["app"] = appName
	}
	return nil
}
