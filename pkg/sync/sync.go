package sync

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/krayzpipes/cronticker/cronticker"
	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"

	"github.com/bank-vaults/settings-sync/pkg/apis/v1alpha1"
)

// Status describes the result of a single synchronization.
type Status struct {
	SyncID   int
	Success  bool
	Error    error
	Started  time.Time
	Duration time.Duration
}

// Manager is used to manage synchronization process.
// It should only be created via Start.
type Manager struct {
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped atomic.Bool
	status  atomic.Pointer[Status]
}

// ticker delivers synchronization triggers.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.Ticker.C }

type cronTicker struct{ *cronticker.CronTicker }

func (t cronTicker) C() <-chan time.Time { return t.CronTicker.C }

// Start will periodically synchronize accessor with its backend based on
// provided options. Synchronization writes pending changes and reloads
// external changes, see v1alpha1.Accessor.Sync.
// Returns Manager which can be used to manage synchronization or an error.
func Start(accessor v1alpha1.Accessor, opts ...Option) (*Manager, error) {
	option := newOptions(opts...)

	// Validate
	if accessor == nil {
		return nil, fmt.Errorf("cannot sync nil accessor")
	}

	// Create ticker
	var trigger ticker
	if !option.RunOnce {
		var err error
		if trigger, err = newTicker(option); err != nil {
			return nil, err
		}
	}

	manager := &Manager{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go manager.handle(accessor, trigger, option)

	return manager, nil
}

// Stop will stop synchronization. Safe for concurrent usage.
func (m *Manager) Stop() {
	if m.stopped.CompareAndSwap(false, true) {
		close(m.stopCh)
	}
}

// Wait will block until synchronization is stopped or completed.
func (m *Manager) Wait() {
	<-m.doneCh
}

// LastStatus returns the result of the latest synchronization, nil if none
// has completed yet.
func (m *Manager) LastStatus() *Status {
	return m.status.Load()
}

// handle runs processing loop. This should only be called once.
func (m *Manager) handle(accessor v1alpha1.Accessor, trigger ticker, option *options) {
	defer close(m.doneCh)

	log := option.Logger.WithField("accessor", accessor.Type())

	// Handle once
	if trigger == nil {
		m.status.Store(m.doSync(1, accessor, log))
		return
	}
	defer trigger.Stop()

	// Handle sync
	for syncID := 1; ; syncID++ {
		select {
		case <-trigger.C():
			m.status.Store(m.doSync(syncID, accessor, log))

		case <-m.stopCh:
			log.Infof("Sync terminated, closing...")
			return
		}
	}
}

// doSync synchronizes accessor until the manager is stopped.
func (m *Manager) doSync(syncID int, accessor v1alpha1.Accessor, log *logrus.Entry) *Status {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-m.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	status := &Status{
		SyncID:  syncID,
		Started: time.Now(),
	}
	status.Error = accessor.Sync(ctx)
	status.Duration = time.Since(status.Started)
	status.Success = status.Error == nil

	if status.Error != nil {
		log.Errorf("Sync id=%d failed: %v", syncID, status.Error)
	} else {
		log.Debugf("Sync id=%d completed in %s", syncID, status.Duration)
	}
	return status
}

func newTicker(option *options) (ticker, error) {
	if option.Schedule != "" {
		if _, err := cron.ParseStandard(option.Schedule); err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", option.Schedule, err)
		}
		t, err := cronticker.NewTicker(option.Schedule)
		if err != nil {
			return nil, fmt.Errorf("failed to create cron ticker: %w", err)
		}
		return cronTicker{&t}, nil
	}

	if option.Period <= 0 {
		return nil, fmt.Errorf("invalid period %s", option.Period)
	}
	return timeTicker{time.NewTicker(option.Period)}, nil
}
