//go:build integration

package leasestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethpandaops/election-coordinator/internal/testutil"
	"github.com/ethpandaops/election-coordinator/pkg/leasestore"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Integration_LeaseLifecycle(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewRedisContainer(t)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store := leasestore.NewRedisStore(client, log, "election-coordinator:test")

	term, err := store.TryAcquire(ctx, "node-a", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), term)

	_, err = store.TryAcquire(ctx, "node-b", 10*time.Second)
	require.ErrorIs(t, err, leasestore.ErrConflict)

	require.NoError(t, store.Renew(ctx, "node-a", term, 10*time.Second))
	require.ErrorIs(t, store.Renew(ctx, "node-b", term, 10*time.Second), leasestore.ErrConflict)

	require.NoError(t, store.Release(ctx, "node-a", term))

	term, err = store.TryAcquire(ctx, "node-b", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), term, "term increments across leaderships")
}
