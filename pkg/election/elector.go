package election

import (
	"context"
	"errors"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/ethpandaops/election-coordinator/pkg/common"
	"github.com/ethpandaops/election-coordinator/pkg/leasestore"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LeaseElector implements leader election on top of a lease store.
//
// A single run goroutine owns all state transitions; the acquisition and
// renewal tickers run on independent schedules but feed the same select
// loop, so transitions never interleave.
var _ Elector = (*LeaseElector)(nil)

type LeaseElector struct {
	store  leasestore.Store
	log    logrus.FieldLogger
	config *Config
	nodeID string

	mu              sync.RWMutex
	state           State
	term            uint64
	leaderSince     time.Time
	renewalFailures int
	stopped         bool

	// Callback-based notification (guaranteed delivery)
	callbacksMu sync.RWMutex
	callbacks   []TransitionCallback

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewLeaseElector creates an elector competing for config.Key on the given
// lease store.
func NewLeaseElector(store leasestore.Store, log logrus.FieldLogger, config *Config) (*LeaseElector, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	nodeID := config.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	return &LeaseElector{
		store:    store,
		log:      log.WithField("component", "election").WithField("node_id", nodeID),
		config:   config,
		nodeID:   nodeID,
		state:    StateFollower,
		stopChan: make(chan struct{}),
	}, nil
}

// NodeID returns the candidate identity this elector competes with.
func (e *LeaseElector) NodeID() string {
	return e.nodeID
}

// Start begins the leader election process.
func (e *LeaseElector) Start(ctx context.Context) error {
	e.log.WithFields(logrus.Fields{
		"key":              e.config.Key,
		"ttl":              e.config.TTL,
		"renewal_interval": e.config.RenewalInterval,
	}).Info("Starting leader election")

	common.ElectionStatus.WithLabelValues(e.config.Key, e.nodeID).Set(0)

	e.wg.Add(1)

	go e.run(ctx)

	return nil
}

// Stop gracefully stops the election. From any state the machine moves to
// ShuttingDown and, if the lease is held, attempts a best-effort release
// with its own short timeout.
func (e *LeaseElector) Stop(ctx context.Context) error {
	e.mu.Lock()

	if e.stopped {
		e.mu.Unlock()

		return nil
	}

	e.stopped = true
	e.mu.Unlock()

	e.log.Info("Stopping leader election")

	close(e.stopChan)
	e.wg.Wait()

	wasLeader := e.IsLeader()
	term := e.Term()

	if wasLeader {
		e.recordLeadershipEnd()
	}

	e.transitionTo(ctx, StateShuttingDown, term)

	if wasLeader {
		releaseCtx, cancel := context.WithTimeout(context.Background(), e.config.OperationTimeout)
		defer cancel()

		if err := e.store.Release(releaseCtx, e.nodeID, term); err != nil {
			e.log.WithError(err).Error("Failed to release lease on stop")
			common.ElectionErrors.WithLabelValues(e.config.Key, e.nodeID, "release").Inc()
		}
	}

	return nil
}

// IsLeader returns true if this node currently holds the lease.
func (e *LeaseElector) IsLeader() bool {
	return e.State() == StateLeader
}

// State returns the current state machine state.
func (e *LeaseElector) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.state
}

// Term returns the term of the most recent leadership held by this node.
func (e *LeaseElector) Term() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.term
}

// LeaderID returns the identity of the current lease holder.
func (e *LeaseElector) LeaderID(ctx context.Context) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.config.OperationTimeout)
	defer cancel()

	lease, err := e.store.Leader(opCtx)
	if err != nil {
		return "", err
	}

	return lease.Holder, nil
}

// OnTransition registers a callback for guaranteed transition notification.
// Callbacks are invoked synchronously in registration order.
func (e *LeaseElector) OnTransition(callback TransitionCallback) {
	e.callbacksMu.Lock()
	defer e.callbacksMu.Unlock()

	e.callbacks = append(e.callbacks, callback)
}

// run is the main election loop. It is the only goroutine that mutates the
// state machine.
func (e *LeaseElector) run(ctx context.Context) {
	defer e.wg.Done()

	acquireTicker := time.NewTicker(e.config.AcquireInterval)
	defer acquireTicker.Stop()

	renewTicker := time.NewTicker(e.config.RenewalInterval)
	defer renewTicker.Stop()

	// Campaign immediately rather than waiting out the first tick.
	e.campaign(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-acquireTicker.C:
			if !e.IsLeader() {
				e.campaign(ctx)
			}
		case <-renewTicker.C:
			if e.IsLeader() {
				e.renewLease(ctx)
			}
		}
	}
}

// campaign attempts one acquisition cycle: Follower -> Candidate, then
// Leader on success or back to Follower on conflict or exhausted retries.
func (e *LeaseElector) campaign(ctx context.Context) {
	e.transitionTo(ctx, StateCandidate, 0)

	var term uint64

	err := e.withRetry(ctx, "acquire", func(opCtx context.Context) error {
		acquired, err := e.store.TryAcquire(opCtx, e.nodeID, e.config.TTL)
		if err != nil {
			return err
		}

		term = acquired

		return nil
	})

	switch {
	case err == nil:
		e.mu.Lock()
		e.leaderSince = time.Now()
		e.renewalFailures = 0
		e.mu.Unlock()

		e.log.WithField("term", term).Info("Acquired leadership")
		e.transitionTo(ctx, StateLeader, term)
	case errors.Is(err, leasestore.ErrConflict):
		// Lost elections are steady-state, not errors.
		e.log.Debug("Another candidate holds the lease")
		e.transitionTo(ctx, StateFollower, 0)
	default:
		e.log.WithError(err).Warn("Lease store unavailable during acquisition")
		common.ElectionErrors.WithLabelValues(e.config.Key, e.nodeID, "acquire").Inc()
		e.transitionTo(ctx, StateFollower, 0)
	}
}

// renewLease attempts one renewal cycle. A conflict demotes immediately;
// transient failures demote once MaxRenewalFailures accumulate.
func (e *LeaseElector) renewLease(ctx context.Context) {
	term := e.Term()

	err := e.withRetry(ctx, "renew", func(opCtx context.Context) error {
		return e.store.Renew(opCtx, e.nodeID, term, e.config.TTL)
	})

	if err == nil {
		e.mu.Lock()
		e.renewalFailures = 0
		e.mu.Unlock()

		return
	}

	if errors.Is(err, leasestore.ErrConflict) {
		e.log.WithField("term", term).Warn("Lease lost, demoting to follower")
		e.recordLeadershipEnd()
		e.transitionTo(ctx, StateFollower, term)

		return
	}

	common.ElectionErrors.WithLabelValues(e.config.Key, e.nodeID, "renew").Inc()

	e.mu.Lock()
	e.renewalFailures++
	failures := e.renewalFailures
	e.mu.Unlock()

	if failures >= e.config.MaxRenewalFailures {
		e.log.WithError(err).WithFields(logrus.Fields{
			"term":     term,
			"failures": failures,
		}).Warn("Renewal failure ceiling reached, demoting to follower")

		e.recordLeadershipEnd()
		e.transitionTo(ctx, StateFollower, term)

		return
	}

	e.log.WithError(err).WithField("failures", failures).Warn("Failed to renew lease, will retry")
}

// withRetry runs a lease store call with a bounded per-attempt timeout,
// retrying transient failures with exponential backoff up to MaxRetries.
// Conflicts abort immediately.
func (e *LeaseElector) withRetry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	// One cycle must finish before the next timer tick; a hung backend is
	// handled by demotion and lease expiry, not by retrying forever.
	b.MaxElapsedTime = e.config.RenewalInterval

	return backoff.Retry(func() error {
		opCtx, cancel := context.WithTimeout(ctx, e.config.OperationTimeout)
		defer cancel()

		err := fn(opCtx)
		if err == nil {
			return nil
		}

		if errors.Is(err, leasestore.ErrConflict) {
			return backoff.Permanent(err)
		}

		e.log.WithError(err).WithField("operation", operation).Debug("Lease store call failed, will retry")

		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, e.config.MaxRetries), ctx))
}

// transitionTo moves the state machine and notifies callbacks. Only the run
// goroutine and Stop (after the run goroutine has exited) call this.
func (e *LeaseElector) transitionTo(ctx context.Context, to State, term uint64) {
	e.mu.Lock()

	from := e.state
	if from == to {
		e.mu.Unlock()

		return
	}

	e.state = to

	if to == StateLeader {
		e.term = term
	}

	e.mu.Unlock()

	for _, state := range []State{StateFollower, StateCandidate, StateLeader, StateShuttingDown} {
		value := 0.0
		if state == to {
			value = 1.0
		}

		common.ElectionState.WithLabelValues(e.config.Key, e.nodeID, string(state)).Set(value)
	}

	common.ElectionTransitions.WithLabelValues(e.config.Key, e.nodeID, string(to)).Inc()

	if to == StateLeader {
		common.ElectionStatus.WithLabelValues(e.config.Key, e.nodeID).Set(1)
		common.ElectionTerm.WithLabelValues(e.config.Key, e.nodeID).Set(float64(term))
	} else {
		common.ElectionStatus.WithLabelValues(e.config.Key, e.nodeID).Set(0)
	}

	e.log.WithFields(logrus.Fields{
		"from": from,
		"to":   to,
		"term": term,
	}).Debug("State transition")

	e.notifyTransition(ctx, Transition{
		From:   from,
		To:     to,
		Term:   term,
		NodeID: e.nodeID,
		Key:    e.config.Key,
		At:     time.Now(),
	})
}

// notifyTransition invokes all registered callbacks with the transition.
// Callbacks are invoked synchronously in registration order.
func (e *LeaseElector) notifyTransition(ctx context.Context, transition Transition) {
	e.callbacksMu.RLock()
	callbacks := make([]TransitionCallback, len(e.callbacks))
	copy(callbacks, e.callbacks)
	e.callbacksMu.RUnlock()

	for _, callback := range callbacks {
		callback(ctx, transition)
	}
}

func (e *LeaseElector) recordLeadershipEnd() {
	e.mu.RLock()
	duration := time.Since(e.leaderSince).Seconds()
	e.mu.RUnlock()

	common.LeadershipDuration.WithLabelValues(e.config.Key, e.nodeID).Observe(duration)
}
