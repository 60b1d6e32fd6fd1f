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

//go:build !darwin

package native

import (
	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/provider/file"
	"github.com/bank-vaults/settings-sync/pkg/settings"
)

// newPlatformDriver returns a driver for the XDG settings file of owner.
func newPlatformDriver(owner v1alpha1.Owner, _ *v1alpha1.AccessorProviderNative) (settings.Driver, error) {
	return file.NewDriver(xdgPath(owner))
}
