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

package v1alpha1

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var ErrProviderNotFound = errors.New("settings provider not found")

var ownerNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Provider defines methods to create accessors for a backend.
type Provider interface {
	// NewAccessor creates a new Accessor owned by owner for the provided spec.
	NewAccessor(ctx context.Context, owner Owner, spec AccessorSpec) (Accessor, error)

	// Validate checks if the provided spec is valid.
	Validate(spec AccessorSpec) error
}

// Owner identifies the consumer an accessor is created for.
// Backends use it to derive a default storage location.
type Owner struct {
	// Organization groups applications, e.g. "bank-vaults".
	// Optional
	Organization string `json:"organization,omitempty"`

	// Application names the settings consumer, e.g. "settings-sync".
	// Required
	Application string `json:"application"`
}

func (o Owner) Validate() error {
	if o.Application == "" {
		return fmt.Errorf("empty .Owner.Application")
	}
	if !ownerNameRe.MatchString(o.Application) {
		return fmt.Errorf("invalid .Owner.Application %q", o.Application)
	}
	if o.Organization != "" && !ownerNameRe.MatchString(o.Organization) {
		return fmt.Errorf("invalid .Owner.Organization %q", o.Organization)
	}
	return nil
}

// Segments returns the non-empty owner name parts, organization first.
func (o Owner) Segments() []string {
	if o.Organization == "" {
		return []string{o.Application}
	}
	return []string{o.Organization, o.Application}
}

func (o Owner) String() string {
	return JoinKey(o.Segments()...).String()
}
