// Copyright © 2023 Cisco
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

package kubernetes

import (
	"context"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
	"github.com/bank-vaults/settings-sync/pkg/settings"
)

type Provider struct{}

var _ v1alpha1.Provider = &Provider{}

func (p *Provider) NewAccessor(_ context.Context, owner v1alpha1.Owner, spec v1alpha1.AccessorSpec) (v1alpha1.Accessor, error) {
	providerCfg := spec.Provider.Kubernetes
	kubeConfig, err := buildConfig(providerCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to build kube config: %w", err)
	}
	kubeClient, err := kubernetes.NewForConfig(kubeConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build kube client: %w", err)
	}

	driver := NewDriver(
		kubeClient.CoreV1().ConfigMaps(providerCfg.Namespace),
		providerCfg.Namespace,
		configMapName(owner, providerCfg),
	)
	return settings.New(driver, settings.WithFlushDelay(spec.GetFlushDelay()))
}

func (p *Provider) Validate(spec v1alpha1.AccessorSpec) error {
	providerCfg := spec.Provider.Kubernetes
	if providerCfg == nil {
		return fmt.Errorf("empty Kubernetes config")
	}
	if providerCfg.Namespace == "" {
		return fmt.Errorf("empty .Kubernetes.Namespace")
	}
	if providerCfg.Name == "" {
		if err := spec.Owner.Validate(); err != nil {
			return fmt.Errorf("empty .Kubernetes.Name requires a valid owner: %w", err)
		}
	}
	if errs := validation.IsDNS1123Subdomain(configMapName(spec.Owner, providerCfg)); len(errs) > 0 {
		return fmt.Errorf("invalid configmap name: %s", strings.Join(errs, ", "))
	}
	return nil
}

// configMapName returns the configured name or <application>-settings.
func configMapName(owner v1alpha1.Owner, providerCfg *v1alpha1.AccessorProviderKubernetes) string {
	if providerCfg.Name != "" {
		return providerCfg.Name
	}
	name := strings.ToLower(strings.ReplaceAll(owner.Application, "_", "-"))
	return name + "-settings"
}

func buildConfig(configPath string) (*rest.Config, error) {
	if configPath == "" {
		return rest.InClusterConfig()
	}
	return clientcmd.BuildConfigFromFlags("", configPath)
}

func init() {
	v1alpha1.Register(&Provider{}, &v1alpha1.AccessorProvider{
		Kubernetes: &v1alpha1.AccessorProviderKubernetes{},
	})
}
