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
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
)

// MinRetryDelay is the shortest delay before a failed durable write is retried.
var MinRetryDelay = 1 * time.Second

var defaultMetrics atomic.Pointer[Metrics]

// SetDefaultMetrics defines metrics used by stores created without WithMetrics.
// Passing nil restores unregistered metrics.
func SetDefaultMetrics(metrics *Metrics) {
	defaultMetrics.Store(metrics)
}

type options struct {
	FlushDelay   time.Duration
	Logger       *logrus.Entry
	Metrics      *Metrics
	ErrorHandler func(error)
}

type Option func(*options)

// WithFlushDelay defines how long local changes are buffered before they are
// written to the driver. Defaults to v1alpha1.DefaultFlushDelay.
func WithFlushDelay(delay time.Duration) Option {
	return func(o *options) { o.FlushDelay = delay }
}

// WithLogger defines the logger used for background operations.
func WithLogger(logger *logrus.Entry) Option {
	return func(o *options) { o.Logger = logger }
}

// WithMetrics defines where store metrics are recorded.
func WithMetrics(metrics *Metrics) Option {
	return func(o *options) { o.Metrics = metrics }
}

// WithErrorHandler defines a handler that receives errors of background writes and reloads.
func WithErrorHandler(handler func(error)) Option {
	return func(o *options) { o.ErrorHandler = handler }
}

func newOptions(opts ...Option) *options {
	option := &options{
		FlushDelay: v1alpha1.DefaultFlushDelay,
	}
	for _, opt := range opts {
		opt(option)
	}
	if option.Metrics == nil {
		option.Metrics = defaultMetrics.Load()
	}
	if option.Metrics == nil {
		option.Metrics = NewMetrics(nil)
	}
	if option.ErrorHandler == nil {
		option.ErrorHandler = func(error) {}
	}
	return option
}
