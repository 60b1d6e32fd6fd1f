package sync

import (
	"time"

	"github.com/sirupsen/logrus"
)

var DefaultSyncPeriod = time.Minute

type Option func(o *options)

type options struct {
	Schedule string
	Period   time.Duration
	RunOnce  bool
	Logger   *logrus.Entry
}

// WithSchedule defines the cron schedule at which the synchronization will be
// triggered. Takes precedence over WithPeriod.
func WithSchedule(schedule string) Option {
	return func(o *options) { o.Schedule = schedule }
}

// WithPeriod defines the period at which the synchronization will be triggered.
// Default to DefaultSyncPeriod.
func WithPeriod(t time.Duration) Option {
	return func(o *options) { o.Period = t }
}

// WithRunOnce synchronizes a single time and stops.
func WithRunOnce() Option {
	return func(o *options) { o.RunOnce = true }
}

// WithLogger defines the logger used to report synchronization results.
func WithLogger(logger *logrus.Entry) Option {
	return func(o *options) { o.Logger = logger }
}

func newOptions(opts ...Option) *options {
	option := &options{
		Period: DefaultSyncPeriod,
	}
	for _, opt := range opts {
		opt(option)
	}
	if option.Logger == nil {
		option.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return option
}
