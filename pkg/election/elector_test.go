package election_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethpandaops/election-coordinator/internal/testutil"
	"github.com/ethpandaops/election-coordinator/pkg/election"
	"github.com/ethpandaops/election-coordinator/pkg/leasestore"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

// fastConfig returns an election config scaled down so tests settle quickly.
func fastConfig(key, nodeID string) *election.Config {
	return &election.Config{
		Key:                key,
		NodeID:             nodeID,
		TTL:                500 * time.Millisecond,
		RenewalInterval:    100 * time.Millisecond,
		AcquireInterval:    100 * time.Millisecond,
		MaxRenewalFailures: 2,
		OperationTimeout:   200 * time.Millisecond,
		MaxRetries:         0,
	}
}

func TestNewLeaseElector(t *testing.T) {
	store := leasestore.NewMemoryStore()

	tests := []struct {
		name    string
		config  *election.Config
		wantErr bool
	}{
		{
			name:    "missing key",
			config:  &election.Config{TTL: 10 * time.Second, RenewalInterval: 5 * time.Second, AcquireInterval: 2 * time.Second, MaxRenewalFailures: 2, OperationTimeout: 3 * time.Second},
			wantErr: true,
		},
		{
			name:    "renewal interval not shorter than ttl",
			config:  &election.Config{Key: "test", TTL: 5 * time.Second, RenewalInterval: 5 * time.Second, AcquireInterval: 2 * time.Second, MaxRenewalFailures: 2, OperationTimeout: 3 * time.Second},
			wantErr: true,
		},
		{
			name:    "retry budget reaches ttl",
			config:  &election.Config{Key: "test", TTL: 10 * time.Second, RenewalInterval: 5 * time.Second, AcquireInterval: 2 * time.Second, MaxRenewalFailures: 2, OperationTimeout: 3 * time.Second, MaxRetries: 3},
			wantErr: true,
		},
		{
			name:    "valid config",
			config:  fastConfig("test", "node-1"),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			elector, err := election.NewLeaseElector(store, testLogger(), tt.config)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.False(t, elector.IsLeader())
			assert.Equal(t, election.StateFollower, elector.State())
		})
	}
}

func TestNewLeaseElector_GeneratesNodeID(t *testing.T) {
	store := leasestore.NewMemoryStore()

	elector, err := election.NewLeaseElector(store, testLogger(), fastConfig("test", ""))
	require.NoError(t, err)
	assert.NotEmpty(t, elector.NodeID())

	other, err := election.NewLeaseElector(store, testLogger(), fastConfig("test", ""))
	require.NoError(t, err)
	assert.NotEqual(t, elector.NodeID(), other.NodeID())
}

func TestLeaseElector_AcquiresLeadership(t *testing.T) {
	ctx := context.Background()
	store := leasestore.NewMemoryStore()

	elector, err := election.NewLeaseElector(store, testLogger(), fastConfig("test", "node-1"))
	require.NoError(t, err)

	var (
		mu          sync.Mutex
		transitions []election.Transition
	)

	elector.OnTransition(func(_ context.Context, transition election.Transition) {
		mu.Lock()
		defer mu.Unlock()

		transitions = append(transitions, transition)
	})

	require.NoError(t, elector.Start(ctx))

	require.Eventually(t, elector.IsLeader, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, election.StateLeader, elector.State())
	assert.Equal(t, uint64(1), elector.Term())

	leaderID, err := elector.LeaderID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "node-1", leaderID)

	mu.Lock()
	require.GreaterOrEqual(t, len(transitions), 2)
	assert.Equal(t, election.StateCandidate, transitions[0].To)
	assert.Equal(t, election.StateFollower, transitions[0].From)
	assert.Equal(t, election.StateLeader, transitions[1].To)
	assert.Equal(t, uint64(1), transitions[1].Term)
	mu.Unlock()

	require.NoError(t, elector.Stop(ctx))
	assert.Equal(t, election.StateShuttingDown, elector.State())

	// Stopping releases the lease so a successor does not wait out the TTL.
	_, err = store.Leader(ctx)
	require.ErrorIs(t, err, leasestore.ErrNoLeader)

	mu.Lock()
	last := transitions[len(transitions)-1]
	mu.Unlock()

	assert.Equal(t, election.StateShuttingDown, last.To)
}

func TestLeaseElector_SingleLeaderAmongCandidates(t *testing.T) {
	ctx := context.Background()
	store := leasestore.NewMemoryStore()

	const numCandidates = 3

	electors := make([]*election.LeaseElector, 0, numCandidates)

	for i := 0; i < numCandidates; i++ {
		elector, err := election.NewLeaseElector(store, testLogger(), fastConfig("test", ""))
		require.NoError(t, err)

		electors = append(electors, elector)
	}

	for _, elector := range electors {
		require.NoError(t, elector.Start(ctx))
	}

	defer func() {
		for _, elector := range electors {
			_ = elector.Stop(ctx)
		}
	}()

	leaderCount := func() int {
		count := 0

		for _, elector := range electors {
			if elector.IsLeader() {
				count++
			}
		}

		return count
	}

	require.Eventually(t, func() bool {
		return leaderCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The winner stays stable and no second leader ever appears.
	for i := 0; i < 20; i++ {
		assert.LessOrEqual(t, leaderCount(), 1)
		time.Sleep(20 * time.Millisecond)
	}

	assert.Equal(t, 1, leaderCount())
}

func TestLeaseElector_DemotesAfterRenewalFailureCeiling(t *testing.T) {
	ctx := context.Background()
	store := leasestore.NewMemoryStore()

	elector, err := election.NewLeaseElector(store, testLogger(), fastConfig("test", "node-1"))
	require.NoError(t, err)

	var demoted atomic.Bool

	elector.OnTransition(func(_ context.Context, transition election.Transition) {
		if transition.From == election.StateLeader && transition.To == election.StateFollower {
			demoted.Store(true)
		}
	})

	require.NoError(t, elector.Start(ctx))
	require.Eventually(t, elector.IsLeader, 2*time.Second, 10*time.Millisecond)

	// Two consecutive renewal failures (MaxRenewalFailures) must demote.
	store.SetUnavailable(true)

	require.Eventually(t, demoted.Load, 2*time.Second, 10*time.Millisecond)
	assert.False(t, elector.IsLeader())

	// Once the backend recovers and the stale lease expires, the elector
	// campaigns its way back with a fresh term.
	store.SetUnavailable(false)

	require.Eventually(t, func() bool {
		return elector.IsLeader() && elector.Term() == 2
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, elector.Stop(ctx))
}

func TestLeaseElector_DemotesWhenLeaseStolen(t *testing.T) {
	ctx := context.Background()
	store := leasestore.NewMemoryStore()

	// A long acquire interval keeps the demoted elector from racing the
	// intruder for the freed lease; the initial campaign happens on Start.
	config := fastConfig("test", "node-1")
	config.AcquireInterval = 10 * time.Second

	elector, err := election.NewLeaseElector(store, testLogger(), config)
	require.NoError(t, err)

	require.NoError(t, elector.Start(ctx))
	require.Eventually(t, elector.IsLeader, 2*time.Second, 10*time.Millisecond)

	// Yank the lease out from under the elector and hand it to an intruder.
	require.NoError(t, store.Release(ctx, elector.NodeID(), elector.Term()))

	_, err = store.TryAcquire(ctx, "intruder", time.Hour)
	require.NoError(t, err)

	// The next renewal conflicts and demotes immediately.
	require.Eventually(t, func() bool {
		return !elector.IsLeader()
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	assert.False(t, elector.IsLeader())

	leaderID, err := elector.LeaderID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "intruder", leaderID)

	require.NoError(t, elector.Stop(ctx))
}

func TestLeaseElector_FailoverAfterLeaderStops(t *testing.T) {
	ctx := context.Background()
	store := leasestore.NewMemoryStore()

	first, err := election.NewLeaseElector(store, testLogger(), fastConfig("test", "node-1"))
	require.NoError(t, err)

	require.NoError(t, first.Start(ctx))
	require.Eventually(t, first.IsLeader, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), first.Term())

	require.NoError(t, first.Stop(ctx))

	second, err := election.NewLeaseElector(store, testLogger(), fastConfig("test", "node-2"))
	require.NoError(t, err)

	require.NoError(t, second.Start(ctx))

	// The released lease is free immediately and the successor starts a
	// strictly greater term.
	require.Eventually(t, second.IsLeader, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(2), second.Term())

	require.NoError(t, second.Stop(ctx))
}

func TestLeaseElector_StopIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := leasestore.NewMemoryStore()

	elector, err := election.NewLeaseElector(store, testLogger(), fastConfig("test", "node-1"))
	require.NoError(t, err)

	require.NoError(t, elector.Start(ctx))
	require.Eventually(t, elector.IsLeader, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, elector.Stop(ctx))
	require.NoError(t, elector.Stop(ctx))
}

func TestLeaseElector_CallbackOrder(t *testing.T) {
	ctx := context.Background()
	store := leasestore.NewMemoryStore()

	elector, err := election.NewLeaseElector(store, testLogger(), fastConfig("test", "node-1"))
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []int
	)

	for i := 1; i <= 3; i++ {
		id := i

		elector.OnTransition(func(_ context.Context, transition election.Transition) {
			if transition.To != election.StateLeader {
				return
			}

			mu.Lock()
			defer mu.Unlock()

			order = append(order, id)
		})
	}

	require.NoError(t, elector.Start(ctx))
	require.Eventually(t, elector.IsLeader, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, order, "callbacks fire in registration order")
	mu.Unlock()

	require.NoError(t, elector.Stop(ctx))
}

func TestLeaseElector_RedisBackend(t *testing.T) {
	ctx := context.Background()

	client, _ := testutil.NewMiniredisClient(t)
	store := leasestore.NewRedisStore(client, testLogger(), "election:test")

	elector, err := election.NewLeaseElector(store, testLogger(), fastConfig("test", "node-1"))
	require.NoError(t, err)

	require.NoError(t, elector.Start(ctx))

	require.Eventually(t, elector.IsLeader, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), elector.Term())

	require.NoError(t, elector.Stop(ctx))

	_, err = store.Leader(ctx)
	require.ErrorIs(t, err, leasestore.ErrNoLeader)
}
