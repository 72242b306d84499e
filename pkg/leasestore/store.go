// Package leasestore abstracts the strongly consistent backends that hold
// the leadership lease for an election key.
package leasestore

import (
	"context"
	"errors"
	"time"

	"github.com/ethpandaops/election-coordinator/pkg/common"
)

// Sentinel errors.
var (
	// ErrConflict is returned when another identity holds a non-expired lease,
	// or when holder/term no longer match on renew and release.
	ErrConflict = errors.New("lease held by another candidate")

	// ErrUnavailable is returned when the backend cannot be reached. Callers
	// are expected to retry with backoff.
	ErrUnavailable = errors.New("lease backend unavailable")

	// ErrNoLeader is returned by Leader when no valid lease exists.
	ErrNoLeader = errors.New("no current lease holder")
)

// Lease is the record stored under the election key.
type Lease struct {
	// Holder is the opaque identity of the current lease holder.
	Holder string

	// Term is a monotonically increasing counter distinguishing successive
	// leaderships on the same key.
	Term uint64

	// Expiry is when the lease lapses. Zero when the backend does not expose
	// the remaining lifetime (consul sessions).
	Expiry time.Time
}

// Store is a lease store client. All operations are atomic relative to the
// backend's compare-and-swap guarantees; at most one valid lease exists per
// key at any time.
type Store interface {
	// TryAcquire claims the lease for identity. A fresh acquisition
	// increments the term. Returns ErrConflict while any non-expired lease
	// exists; holders extend through Renew, not re-acquisition.
	TryAcquire(ctx context.Context, identity string, ttl time.Duration) (uint64, error)

	// Renew extends the lease, but only while holder and term still match.
	Renew(ctx context.Context, identity string, term uint64, ttl time.Duration) error

	// Release deletes the lease, but only while holder and term still match.
	Release(ctx context.Context, identity string, term uint64) error

	// Leader returns the current lease record.
	Leader(ctx context.Context) (*Lease, error)

	// Close releases any backend resources held by the store.
	Close() error
}

// leaseRecord is the wire form stored by the consul and etcd backends.
type leaseRecord struct {
	Holder string `json:"holder"`
	Term   uint64 `json:"term"`
}

// observe records the duration and outcome of a store operation.
func observe(backend, operation string, start time.Time, err error) {
	status := "success"

	switch {
	case errors.Is(err, ErrConflict):
		status = "conflict"
	case errors.Is(err, ErrNoLeader):
		status = "no_leader"
	case err != nil:
		status = "error"
	}

	common.StoreOperationDuration.WithLabelValues(backend, operation, status).Observe(time.Since(start).Seconds())
}
