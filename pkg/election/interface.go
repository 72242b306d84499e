package election

import (
	"context"
)

// Elector defines the interface for leader election implementations.
type Elector interface {
	// Start begins the leader election process
	Start(ctx context.Context) error

	// Stop gracefully stops the election, releasing the lease if held
	Stop(ctx context.Context) error

	// IsLeader returns true if this node currently holds the lease
	IsLeader() bool

	// NodeID returns the candidate identity this elector competes with
	NodeID() string

	// State returns the current state machine state
	State() State

	// Term returns the term of the most recent leadership held by this node
	Term() uint64

	// LeaderID returns the identity of the current lease holder
	LeaderID(ctx context.Context) (string, error)

	// OnTransition registers a callback for guaranteed transition
	// notification. Callbacks are invoked synchronously in registration
	// order on every state transition.
	OnTransition(callback TransitionCallback)
}
