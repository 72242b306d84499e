package leasestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdStore implements Store on etcd. The lease record is a key bound to an
// etcd lease, created transactionally only when no record exists, so the
// record disappears when the lease lapses. The term counter is a sibling
// key bumped with a ModRevision-guarded transaction.
type EtcdStore struct {
	client  *clientv3.Client
	log     logrus.FieldLogger
	key     string
	termKey string

	mu      sync.Mutex
	leaseID clientv3.LeaseID
}

// NewEtcdStore creates a lease store for the given election key.
func NewEtcdStore(client *clientv3.Client, log logrus.FieldLogger, key string) *EtcdStore {
	return &EtcdStore{
		client:  client,
		log:     log.WithField("component", "leasestore/etcd").WithField("key", key),
		key:     key,
		termKey: key + "/term",
	}
}

// TryAcquire grants a lease and claims the election key under it.
func (s *EtcdStore) TryAcquire(ctx context.Context, identity string, ttl time.Duration) (term uint64, err error) {
	defer func(start time.Time) { observe("etcd", "acquire", start, err) }(time.Now())

	// Cheap pre-check so follower ticks do not burn terms; the transaction
	// below still guards the actual claim.
	existing, err := s.client.Get(ctx, s.key, clientv3.WithCountOnly())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if existing.Count > 0 {
		return 0, ErrConflict
	}

	term, err = s.nextTerm(ctx)
	if err != nil {
		return 0, err
	}

	ttlSeconds := int64(ttl / time.Second)
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	grant, err := s.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	value, err := json.Marshal(leaseRecord{Holder: identity, Term: term})
	if err != nil {
		return 0, fmt.Errorf("failed to encode lease record: %w", err)
	}

	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(s.key), "=", 0)).
		Then(clientv3.OpPut(s.key, string(value), clientv3.WithLease(grant.ID))).
		Commit()
	if err != nil {
		s.revoke(ctx, grant.ID)

		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !resp.Succeeded {
		s.revoke(ctx, grant.ID)

		return 0, ErrConflict
	}

	s.mu.Lock()
	s.leaseID = grant.ID
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"holder": identity,
		"term":   term,
		"lease":  grant.ID,
	}).Debug("Acquired lease")

	return term, nil
}

// Renew keeps the granted lease alive. The ttl argument is fixed at grant
// time and ignored here.
func (s *EtcdStore) Renew(ctx context.Context, identity string, term uint64, _ time.Duration) (err error) {
	defer func(start time.Time) { observe("etcd", "renew", start, err) }(time.Now())

	s.mu.Lock()
	leaseID := s.leaseID
	s.mu.Unlock()

	if leaseID == clientv3.NoLease {
		return ErrConflict
	}

	if _, err := s.client.KeepAliveOnce(ctx, leaseID); err != nil {
		if errors.Is(err, rpctypes.ErrLeaseNotFound) {
			return ErrConflict
		}

		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Release revokes the lease, which deletes the bound election key.
func (s *EtcdStore) Release(ctx context.Context, identity string, term uint64) (err error) {
	defer func(start time.Time) { observe("etcd", "release", start, err) }(time.Now())

	s.mu.Lock()
	leaseID := s.leaseID
	s.leaseID = clientv3.NoLease
	s.mu.Unlock()

	if leaseID == clientv3.NoLease {
		return ErrConflict
	}

	current, err := s.Leader(ctx)
	if err != nil {
		if errors.Is(err, ErrNoLeader) {
			return ErrConflict
		}

		return err
	}

	if current.Holder != identity || current.Term != term {
		return ErrConflict
	}

	if _, err := s.client.Revoke(ctx, leaseID); err != nil {
		if errors.Is(err, rpctypes.ErrLeaseNotFound) {
			return ErrConflict
		}

		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.log.WithField("holder", identity).Debug("Released lease")

	return nil
}

// Leader returns the current lease record with its expiry derived from the
// bound lease's remaining TTL.
func (s *EtcdStore) Leader(ctx context.Context) (lease *Lease, err error) {
	defer func(start time.Time) { observe("etcd", "leader", start, err) }(time.Now())

	resp, err := s.client.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if len(resp.Kvs) == 0 {
		return nil, ErrNoLeader
	}

	kv := resp.Kvs[0]

	var record leaseRecord
	if err := json.Unmarshal(kv.Value, &record); err != nil {
		return nil, fmt.Errorf("malformed lease record: %w", err)
	}

	lease = &Lease{Holder: record.Holder, Term: record.Term}

	if kv.Lease != 0 {
		if ttlResp, err := s.client.TimeToLive(ctx, clientv3.LeaseID(kv.Lease)); err == nil && ttlResp.TTL > 0 {
			lease.Expiry = time.Now().Add(time.Duration(ttlResp.TTL) * time.Second)
		}
	}

	return lease, nil
}

// Close is a no-op; the etcd client is owned by the caller.
func (s *EtcdStore) Close() error {
	return nil
}

// nextTerm bumps the term counter with a ModRevision-guarded transaction.
// A lost race surfaces as ErrConflict; the caller retries next cycle.
func (s *EtcdStore) nextTerm(ctx context.Context) (uint64, error) {
	resp, err := s.client.Get(ctx, s.termKey)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var (
		current     uint64
		modRevision int64
	)

	if len(resp.Kvs) > 0 {
		kv := resp.Kvs[0]
		modRevision = kv.ModRevision

		if current, err = strconv.ParseUint(string(kv.Value), 10, 64); err != nil {
			return 0, fmt.Errorf("malformed term counter %q: %w", kv.Value, err)
		}
	}

	next := current + 1

	guard := clientv3.Compare(clientv3.CreateRevision(s.termKey), "=", 0)
	if modRevision > 0 {
		guard = clientv3.Compare(clientv3.ModRevision(s.termKey), "=", modRevision)
	}

	txnResp, err := s.client.Txn(ctx).
		If(guard).
		Then(clientv3.OpPut(s.termKey, strconv.FormatUint(next, 10))).
		Commit()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !txnResp.Succeeded {
		return 0, ErrConflict
	}

	return next, nil
}

func (s *EtcdStore) revoke(ctx context.Context, leaseID clientv3.LeaseID) {
	if _, err := s.client.Revoke(ctx, leaseID); err != nil {
		s.log.WithError(err).WithField("lease", leaseID).Warn("Failed to revoke lease")
	}
}
