package watcher_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethpandaops/election-coordinator/pkg/leasestore"
	"github.com/ethpandaops/election-coordinator/pkg/watcher"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func TestWatcher_ObservesLeaderChanges(t *testing.T) {
	ctx := context.Background()
	store := leasestore.NewMemoryStore()

	w, err := watcher.NewWatcher(testLogger(), store, "test", &watcher.Config{
		Enabled:  true,
		Interval: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, w.Start(ctx))

	defer func() {
		_ = w.Stop(ctx)
	}()

	// No leader yet.
	assert.Nil(t, w.Leader())

	term, err := store.TryAcquire(ctx, "node-a", time.Minute)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		lease := w.Leader()

		return lease != nil && lease.Holder == "node-a" && lease.Term == term
	}, 2*time.Second, 20*time.Millisecond)

	// Release clears the observed lease.
	require.NoError(t, store.Release(ctx, "node-a", term))

	require.Eventually(t, func() bool {
		return w.Leader() == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatcher_Disabled(t *testing.T) {
	ctx := context.Background()
	store := leasestore.NewMemoryStore()

	w, err := watcher.NewWatcher(testLogger(), store, "test", &watcher.Config{Enabled: false})
	require.NoError(t, err)

	require.NoError(t, w.Start(ctx))

	_, err = store.TryAcquire(ctx, "node-a", time.Minute)
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	assert.Nil(t, w.Leader(), "disabled watcher never observes")

	require.NoError(t, w.Stop(ctx))
}

func TestConfig_Validate(t *testing.T) {
	require.Error(t, (&watcher.Config{Enabled: true, Interval: 0}).Validate())
	require.NoError(t, (&watcher.Config{Enabled: false}).Validate())
	require.NoError(t, (&watcher.Config{Enabled: true, Interval: time.Second}).Validate())
}
