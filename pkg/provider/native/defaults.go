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
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/settings"
)

// runner executes the defaults command with args and returns its stdout.
type runner func(ctx context.Context, args ...string) ([]byte, error)

func runDefaults(ctx context.Context, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "defaults", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &commandError{err: err, output: strings.TrimSpace(stderr.String())}
	}
	return stdout.Bytes(), nil
}

type commandError struct {
	err    error
	output string
}

func (e *commandError) Error() string {
	return fmt.Sprintf("%v, output: %s", e.err, e.output)
}

func (e *commandError) Unwrap() error {
	return e.err
}

// isMissing reports whether the defaults command failed because a domain or
// key does not exist.
func isMissing(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true
	}
	var cmdErr *commandError
	return errors.As(err, &cmdErr) && strings.Contains(cmdErr.output, "does not exist")
}

// DefaultsDriver stores entries in a macOS user defaults domain. Every entry
// is a string default holding the encoded value. Default names are
// case-sensitive.
type DefaultsDriver struct {
	domain string
	run    runner
}

var _ settings.Driver = &DefaultsDriver{}

func NewDefaultsDriver(domain string) *DefaultsDriver {
	return &DefaultsDriver{domain: domain, run: runDefaults}
}

func (d *DefaultsDriver) Type() string {
	return fmt.Sprintf("native(defaults:%s)", d.domain)
}

func (d *DefaultsDriver) ReadAll(ctx context.Context) (map[v1alpha1.Key][]byte, error) {
	output, err := d.run(ctx, "export", d.domain, "-")
	if err != nil {
		if isMissing(err) {
			return map[v1alpha1.Key][]byte{}, nil
		}
		return nil, fmt.Errorf("failed to export defaults domain '%s': %w", d.domain, err)
	}
	return parseDefaults(output)
}

func (d *DefaultsDriver) Apply(ctx context.Context, changes []settings.Change) error {
	var current map[v1alpha1.Key][]byte
	for _, change := range changes {
		switch change.Op {
		case settings.ChangeSave:
			if _, err := d.run(ctx, "write", d.domain, change.Key.String(), "-string", string(change.Value)); err != nil {
				return fmt.Errorf("failed to write default for key '%s': %w", change.Key, err)
			}
			if current != nil {
				current[change.Key] = change.Value
			}

		case settings.ChangeRemove:
			// Nested keys are found in the exported domain
			if current == nil {
				var err error
				if current, err = d.ReadAll(ctx); err != nil {
					return err
				}
			}
			for _, key := range settings.SortedKeys(current) {
				if !change.Key.IsPrefixOf(key) {
					continue
				}
				if _, err := d.run(ctx, "delete", d.domain, key.String()); err != nil && !isMissing(err) {
					return fmt.Errorf("failed to delete default for key '%s': %w", key, err)
				}
				delete(current, key)
			}
		}
	}
	return nil
}

func (d *DefaultsDriver) Close() error {
	return nil
}
