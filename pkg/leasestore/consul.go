package leasestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/sirupsen/logrus"
)

// ConsulStore implements Store on Consul sessions. The lease is a KV pair
// acquired under a TTL session with delete behavior, so the key vanishes
// when the session lapses. The term lives in a sibling key updated with
// check-and-set on its ModifyIndex.
type ConsulStore struct {
	client  *api.Client
	log     logrus.FieldLogger
	key     string
	termKey string

	mu        sync.Mutex
	sessionID string
}

// NewConsulStore creates a lease store for the given election key.
func NewConsulStore(client *api.Client, log logrus.FieldLogger, key string) *ConsulStore {
	return &ConsulStore{
		client:  client,
		log:     log.WithField("component", "leasestore/consul").WithField("key", key),
		key:     key,
		termKey: key + "/term",
	}
}

// TryAcquire creates a TTL session and acquires the election key under it.
func (s *ConsulStore) TryAcquire(ctx context.Context, identity string, ttl time.Duration) (term uint64, err error) {
	defer func(start time.Time) { observe("consul", "acquire", start, err) }(time.Now())

	pair, _, err := s.client.KV().Get(s.key, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if pair != nil && pair.Session != "" {
		return 0, ErrConflict
	}

	term, err = s.nextTerm(ctx)
	if err != nil {
		return 0, err
	}

	sessionID, _, err := s.client.Session().Create(&api.SessionEntry{
		Name:      "election/" + s.key,
		Behavior:  api.SessionBehaviorDelete,
		TTL:       ttl.String(),
		LockDelay: time.Millisecond,
	}, (&api.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	value, err := json.Marshal(leaseRecord{Holder: identity, Term: term})
	if err != nil {
		return 0, fmt.Errorf("failed to encode lease record: %w", err)
	}

	acquired, _, err := s.client.KV().Acquire(&api.KVPair{
		Key:     s.key,
		Value:   value,
		Session: sessionID,
	}, (&api.WriteOptions{}).WithContext(ctx))
	if err != nil {
		s.destroySession(ctx, sessionID)

		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !acquired {
		s.destroySession(ctx, sessionID)

		return 0, ErrConflict
	}

	s.mu.Lock()
	s.sessionID = sessionID
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"holder":  identity,
		"term":    term,
		"session": sessionID,
	}).Debug("Acquired lease")

	return term, nil
}

// Renew refreshes the session TTL and verifies the key is still held by it.
// The ttl argument is fixed at session creation and ignored here.
func (s *ConsulStore) Renew(ctx context.Context, identity string, term uint64, _ time.Duration) (err error) {
	defer func(start time.Time) { observe("consul", "renew", start, err) }(time.Now())

	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()

	if sessionID == "" {
		return ErrConflict
	}

	entry, _, err := s.client.Session().Renew(sessionID, (&api.WriteOptions{}).WithContext(ctx))
	if err != nil {
		if errors.Is(err, api.ErrSessionExpired) {
			return ErrConflict
		}

		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if entry == nil {
		return ErrConflict
	}

	pair, _, err := s.client.KV().Get(s.key, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if pair == nil || pair.Session != sessionID {
		return ErrConflict
	}

	return nil
}

// Release gives up the key and destroys the session.
func (s *ConsulStore) Release(ctx context.Context, identity string, term uint64) (err error) {
	defer func(start time.Time) { observe("consul", "release", start, err) }(time.Now())

	s.mu.Lock()
	sessionID := s.sessionID
	s.sessionID = ""
	s.mu.Unlock()

	if sessionID == "" {
		return ErrConflict
	}

	released, _, err := s.client.KV().Release(&api.KVPair{
		Key:     s.key,
		Session: sessionID,
	}, (&api.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.destroySession(ctx, sessionID)

	if _, err := s.client.KV().Delete(s.key, (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		s.log.WithError(err).Warn("Failed to delete released lease key")
	}

	if !released {
		return ErrConflict
	}

	s.log.WithField("holder", identity).Debug("Released lease")

	return nil
}

// Leader returns the current lease record. Consul does not expose the
// remaining session lifetime, so Expiry is left zero.
func (s *ConsulStore) Leader(ctx context.Context) (lease *Lease, err error) {
	defer func(start time.Time) { observe("consul", "leader", start, err) }(time.Now())

	pair, _, err := s.client.KV().Get(s.key, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if pair == nil || pair.Session == "" {
		return nil, ErrNoLeader
	}

	var record leaseRecord
	if err := json.Unmarshal(pair.Value, &record); err != nil {
		return nil, fmt.Errorf("malformed lease record: %w", err)
	}

	return &Lease{Holder: record.Holder, Term: record.Term}, nil
}

// Close destroys any session still held.
func (s *ConsulStore) Close() error {
	s.mu.Lock()
	sessionID := s.sessionID
	s.sessionID = ""
	s.mu.Unlock()

	if sessionID != "" {
		s.destroySession(context.Background(), sessionID)
	}

	return nil
}

// nextTerm bumps the term counter with a check-and-set on its ModifyIndex.
// A lost race surfaces as ErrConflict; the caller simply retries the next
// acquisition cycle.
func (s *ConsulStore) nextTerm(ctx context.Context) (uint64, error) {
	pair, _, err := s.client.KV().Get(s.termKey, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var (
		current     uint64
		modifyIndex uint64
	)

	if pair != nil {
		modifyIndex = pair.ModifyIndex

		if current, err = strconv.ParseUint(string(pair.Value), 10, 64); err != nil {
			return 0, fmt.Errorf("malformed term counter %q: %w", pair.Value, err)
		}
	}

	next := current + 1

	ok, _, err := s.client.KV().CAS(&api.KVPair{
		Key:         s.termKey,
		Value:       []byte(strconv.FormatUint(next, 10)),
		ModifyIndex: modifyIndex,
	}, (&api.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !ok {
		return 0, ErrConflict
	}

	return next, nil
}

func (s *ConsulStore) destroySession(ctx context.Context, sessionID string) {
	if _, err := s.client.Session().Destroy(sessionID, (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		s.log.WithError(err).WithField("session", sessionID).Warn("Failed to destroy session")
	}
}
