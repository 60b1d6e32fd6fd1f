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

package settings

import (
	"github.com/prometheus/client_golang/prometheus"
)

const PrometheusNamespace = "settings"

type Metrics struct {
	Flushes         *prometheus.CounterVec
	FlushErrors     *prometheus.CounterVec
	PendingChanges  *prometheus.GaugeVec
	ExternalChanges *prometheus.CounterVec
}

// NewMetrics creates settings metrics and registers them with reg.
// A nil reg creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	metrics := &Metrics{}

	metrics.Flushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: PrometheusNamespace,
			Name:      "flushes_total",
			Help:      "The number of successful durable writes",
		},
		[]string{"backend"},
	)

	metrics.FlushErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: PrometheusNamespace,
			Name:      "flush_errors_total",
			Help:      "The number of failed durable writes",
		},
		[]string{"backend"},
	)

	metrics.PendingChanges = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: PrometheusNamespace,
			Name:      "pending_changes",
			Help:      "The number of changes waiting for a durable write",
		},
		[]string{"backend"},
	)

	metrics.ExternalChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: PrometheusNamespace,
			Name:      "external_changes_total",
			Help:      "The number of entries changed outside of the accessor",
		},
		[]string{"backend"},
	)

	if reg != nil {
		reg.MustRegister(metrics.Flushes, metrics.FlushErrors, metrics.PendingChanges, metrics.ExternalChanges)
	}

	return metrics
}
