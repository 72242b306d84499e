package election

import (
	"context"
	"time"
)

// State is a position in the election state machine.
type State string

const (
	// StateFollower means another candidate holds the lease (or nobody does
	// and this node has not campaigned yet).
	StateFollower State = "follower"

	// StateCandidate means an acquisition attempt is in flight.
	StateCandidate State = "candidate"

	// StateLeader means this node holds a valid lease.
	StateLeader State = "leader"

	// StateShuttingDown is terminal; entered on Stop from any state.
	StateShuttingDown State = "shutting_down"
)

// Transition describes one state machine transition.
type Transition struct {
	From   State
	To     State
	Term   uint64
	NodeID string
	Key    string
	At     time.Time
}

// TransitionCallback is invoked synchronously on every state transition.
// Implementations should return quickly (< 100ms) to avoid delaying lease
// renewal; long-running work belongs in a spawned goroutine.
type TransitionCallback func(ctx context.Context, transition Transition)
