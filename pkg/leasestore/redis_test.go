package leasestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethpandaops/election-coordinator/internal/testutil"
	"github.com/ethpandaops/election-coordinator/pkg/leasestore"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*leasestore.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	client, mr := testutil.NewMiniredisClient(t)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return leasestore.NewRedisStore(client, log, "election:test"), mr
}

func TestRedisStore_AcquireConflict(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	term, err := store.TryAcquire(ctx, "node-a", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), term)

	_, err = store.TryAcquire(ctx, "node-b", 10*time.Second)
	require.ErrorIs(t, err, leasestore.ErrConflict)

	lease, err := store.Leader(ctx)
	require.NoError(t, err)
	assert.Equal(t, "node-a", lease.Holder)
	assert.Equal(t, uint64(1), lease.Term)
	assert.False(t, lease.Expiry.IsZero(), "leader lease should carry an expiry")
}

func TestRedisStore_TermIncrementsAcrossLeaderships(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	term, err := store.TryAcquire(ctx, "node-a", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), term)

	require.NoError(t, store.Release(ctx, "node-a", term))

	term, err = store.TryAcquire(ctx, "node-a", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), term)

	// Expiry rather than release must also start a new term.
	mr.FastForward(11 * time.Second)

	term, err = store.TryAcquire(ctx, "node-b", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), term)
}

func TestRedisStore_RenewGuards(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	term, err := store.TryAcquire(ctx, "node-a", 10*time.Second)
	require.NoError(t, err)

	require.NoError(t, store.Renew(ctx, "node-a", term, 10*time.Second))

	// Wrong identity or term never renews.
	require.ErrorIs(t, store.Renew(ctx, "node-b", term, 10*time.Second), leasestore.ErrConflict)
	require.ErrorIs(t, store.Renew(ctx, "node-a", term+1, 10*time.Second), leasestore.ErrConflict)

	// A renew after the lease lapsed is a conflict, not a resurrection.
	mr.FastForward(11 * time.Second)
	require.ErrorIs(t, store.Renew(ctx, "node-a", term, 10*time.Second), leasestore.ErrConflict)

	_, err = store.Leader(ctx)
	require.ErrorIs(t, err, leasestore.ErrNoLeader)
}

func TestRedisStore_ReleaseGuards(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	term, err := store.TryAcquire(ctx, "node-a", 10*time.Second)
	require.NoError(t, err)

	require.ErrorIs(t, store.Release(ctx, "node-b", term), leasestore.ErrConflict)
	require.ErrorIs(t, store.Release(ctx, "node-a", term+1), leasestore.ErrConflict)

	require.NoError(t, store.Release(ctx, "node-a", term))

	_, err = store.Leader(ctx)
	require.ErrorIs(t, err, leasestore.ErrNoLeader)
}

func TestRedisStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	mr.Close()

	_, err := store.TryAcquire(ctx, "node-a", 10*time.Second)
	require.ErrorIs(t, err, leasestore.ErrUnavailable)

	err = store.Renew(ctx, "node-a", 1, 10*time.Second)
	require.ErrorIs(t, err, leasestore.ErrUnavailable)

	_, err = store.Leader(ctx)
	require.ErrorIs(t, err, leasestore.ErrUnavailable)
}
