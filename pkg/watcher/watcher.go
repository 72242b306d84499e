// Package watcher periodically observes the election key, independent of
// this node's own candidacy, and exposes the observed lease for the health
// endpoint and metrics.
package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/election-coordinator/pkg/common"
	"github.com/ethpandaops/election-coordinator/pkg/leasestore"
)

const observeTimeout = 5 * time.Second

type Watcher struct {
	log    logrus.FieldLogger
	store  leasestore.Store
	key    string
	config *Config

	scheduler *gocron.Scheduler

	mu         sync.RWMutex
	current    *leasestore.Lease
	lastHolder string
}

func NewWatcher(log logrus.FieldLogger, store leasestore.Store, key string, config *Config) (*Watcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Watcher{
		log:    log.WithField("component", "watcher").WithField("key", key),
		store:  store,
		key:    key,
		config: config,
	}, nil
}

// Start schedules the periodic observation. No-op when disabled.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.config.Enabled {
		w.log.Debug("Leader watcher disabled")

		return nil
	}

	w.scheduler = gocron.NewScheduler(time.UTC)

	if _, err := w.scheduler.Every(w.config.Interval).Do(func() {
		w.observe(ctx)
	}); err != nil {
		return err
	}

	w.scheduler.StartAsync()

	w.log.WithField("interval", w.config.Interval).Info("Started leader watcher")

	return nil
}

// Stop halts the observation schedule.
func (w *Watcher) Stop(_ context.Context) error {
	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	return nil
}

// Leader returns the most recently observed lease, or nil when no leader
// was observed.
func (w *Watcher) Leader() *leasestore.Lease {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.current == nil {
		return nil
	}

	lease := *w.current

	return &lease
}

func (w *Watcher) observe(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, observeTimeout)
	defer cancel()

	lease, err := w.store.Leader(opCtx)
	if err != nil {
		if errors.Is(err, leasestore.ErrNoLeader) {
			w.record(nil)

			return
		}

		w.log.WithError(err).Warn("Failed to observe election key")

		return
	}

	w.record(lease)
}

func (w *Watcher) record(lease *leasestore.Lease) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.lastHolder != "" && (lease == nil || lease.Holder != w.lastHolder) {
		common.ObservedLeader.WithLabelValues(w.key, w.lastHolder).Set(0)
	}

	w.current = lease

	if lease == nil {
		w.lastHolder = ""

		return
	}

	w.lastHolder = lease.Holder

	common.ObservedLeader.WithLabelValues(w.key, lease.Holder).Set(1)
	common.ObservedTerm.WithLabelValues(w.key).Set(float64(lease.Term))
}
