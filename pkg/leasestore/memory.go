package leasestore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by unit tests. The clock is
// injectable so expiry behavior can be driven deterministically, and the
// backend can be flipped to unavailable to exercise retry paths.
type MemoryStore struct {
	mu          sync.Mutex
	now         func() time.Time
	holder      string
	term        uint64
	expiry      time.Time
	counter     uint64
	unavailable bool
}

// NewMemoryStore creates an empty in-process lease store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// WithClock replaces the store's clock. Test-only.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.now = now

	return s
}

// SetUnavailable makes every operation fail with ErrUnavailable.
func (s *MemoryStore) SetUnavailable(unavailable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unavailable = unavailable
}

func (s *MemoryStore) TryAcquire(_ context.Context, identity string, ttl time.Duration) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		return 0, ErrUnavailable
	}

	// Any existing valid lease conflicts, the holder's own included; holders
	// extend through Renew. Matches the backend stores.
	if s.held() {
		return 0, ErrConflict
	}

	s.counter++
	s.holder = identity
	s.term = s.counter
	s.expiry = s.now().Add(ttl)

	return s.term, nil
}

func (s *MemoryStore) Renew(_ context.Context, identity string, term uint64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		return ErrUnavailable
	}

	if !s.held() || s.holder != identity || s.term != term {
		return ErrConflict
	}

	s.expiry = s.now().Add(ttl)

	return nil
}

func (s *MemoryStore) Release(_ context.Context, identity string, term uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		return ErrUnavailable
	}

	if !s.held() || s.holder != identity || s.term != term {
		return ErrConflict
	}

	s.holder = ""
	s.expiry = time.Time{}

	return nil
}

func (s *MemoryStore) Leader(_ context.Context) (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		return nil, ErrUnavailable
	}

	if !s.held() {
		return nil, ErrNoLeader
	}

	return &Lease{Holder: s.holder, Term: s.term, Expiry: s.expiry}, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// held reports whether a non-expired lease exists. Callers hold s.mu.
func (s *MemoryStore) held() bool {
	return s.holder != "" && s.expiry.After(s.now())
}
