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

package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/settings"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var DefaultPollInterval = 2 * time.Second

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Driver keeps entries in a SQLite table. Keys use the BINARY collation, so
// lookups are case-sensitive.
type Driver struct {
	db           *sql.DB
	path         string
	pollInterval time.Duration

	mu       sync.Mutex
	watching bool
	stopPoll context.CancelFunc
}

var (
	_ settings.Driver  = &Driver{}
	_ settings.Watcher = &Driver{}
)

// NewDriver opens (or creates) the database at path and runs pending migrations.
// A negative pollInterval disables change polling.
func NewDriver(path string, pollInterval time.Duration) (*Driver, error) {
	dsn := path
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create dir for '%s': %w", path, err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database '%s': %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database '%s': %w", path, err)
	}

	// Single connection keeps PRAGMA data_version meaningful and avoids lock errors
	db.SetMaxOpenConns(1)

	// Wait for writers of other processes instead of failing
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}

	driver := &Driver{
		db:           db,
		path:         path,
		pollInterval: pollInterval,
	}
	if err := driver.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return driver, nil
}

func (d *Driver) Type() string {
	return fmt.Sprintf("sqlite(%s)", d.path)
}

func (d *Driver) ReadAll(ctx context.Context) (map[v1alpha1.Key][]byte, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT key, value FROM entries")
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := map[v1alpha1.Key][]byte{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if !v1alpha1.Key(key).IsValid() {
			continue
		}
		canonical, err := settings.Canonicalize([]byte(value))
		if err != nil {
			return nil, fmt.Errorf("failed to read entry %q: %w", key, err)
		}
		entries[v1alpha1.Key(key)] = canonical
	}
	return entries, rows.Err()
}

// Apply writes all changes in one transaction.
func (d *Driver) Apply(ctx context.Context, changes []settings.Change) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, change := range changes {
		switch change.Op {
		case settings.ChangeSave:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO entries (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				change.Key.String(), string(change.Value),
			)
		case settings.ChangeRemove:
			prefix := change.Key.String() + v1alpha1.KeySeparator
			// substr and length both count characters
			_, err = tx.ExecContext(ctx,
				"DELETE FROM entries WHERE key = ? OR substr(key, 1, length(?)) = ?",
				change.Key.String(), prefix, prefix,
			)
		}
		if err != nil {
			return fmt.Errorf("failed to %s %q: %w", change.Op, change.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Watch polls PRAGMA data_version, which changes whenever another connection
// commits to the database.
func (d *Driver) Watch(ctx context.Context) (<-chan struct{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.watching {
		return nil, fmt.Errorf("%s is already watched", d.Type())
	}
	if d.pollInterval < 0 || d.path == MemoryPath {
		ch := make(chan struct{})
		close(ch)
		return ch, nil
	}

	version, err := d.dataVersion(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	d.watching = true
	d.stopPoll = cancel

	interval := d.pollInterval
	if interval == 0 {
		interval = DefaultPollInterval
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current, err := d.dataVersion(ctx)
				if err != nil {
					if ctx.Err() == nil {
						logrus.WithField("path", d.path).Warnf("Failed to poll database: %v", err)
					}
					continue
				}
				if current == version {
					continue
				}
				version = current
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()

	return ch, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	if d.stopPoll != nil {
		d.stopPoll()
	}
	d.mu.Unlock()

	return d.db.Close()
}

func (d *Driver) dataVersion(ctx context.Context) (int64, error) {
	var version int64
	if err := d.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to query data version: %w", err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (d *Driver) AppliedMigrations() ([]int, error) {
	rows, err := d.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// migrate applies embedded SQL migrations that have not been run yet.
func (d *Driver) migrate() error {
	if _, err := d.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	files, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name() < files[j].Name()
	})

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(file.Name())
		if err != nil {
			return err
		}

		// Skip applied
		var exists int
		if err := d.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + file.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file.Name(), err)
		}

		// Apply
		tx, err := d.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("failed to parse migration version from %q: %w", filename, err)
	}
	return version, nil
}
