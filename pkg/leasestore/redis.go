package leasestore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Lua scripts keep holder checks and TTL updates atomic. The lease lives in
// a hash (holder + term) so the term survives renewals; the term counter is
// a separate key that only ever increments.
const (
	redisAcquireScript = `
		if redis.call("exists", KEYS[1]) == 1 then
			return {0, 0}
		end
		local term = redis.call("incr", KEYS[2])
		redis.call("hset", KEYS[1], "holder", ARGV[1], "term", term)
		redis.call("pexpire", KEYS[1], ARGV[2])
		return {1, term}
	`

	redisRenewScript = `
		if redis.call("hget", KEYS[1], "holder") == ARGV[1] and redis.call("hget", KEYS[1], "term") == ARGV[2] then
			return redis.call("pexpire", KEYS[1], ARGV[3])
		end
		return 0
	`

	redisReleaseScript = `
		if redis.call("hget", KEYS[1], "holder") == ARGV[1] and redis.call("hget", KEYS[1], "term") == ARGV[2] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`
)

// RedisStore implements Store on a Redis instance.
type RedisStore struct {
	client  *redis.Client
	log     logrus.FieldLogger
	key     string
	termKey string
}

// NewRedisStore creates a lease store for the given election key.
func NewRedisStore(client *redis.Client, log logrus.FieldLogger, key string) *RedisStore {
	return &RedisStore{
		client:  client,
		log:     log.WithField("component", "leasestore/redis").WithField("key", key),
		key:     key,
		termKey: key + ":term",
	}
}

// TryAcquire claims the lease via an atomic exists/incr/hset/pexpire script.
func (s *RedisStore) TryAcquire(ctx context.Context, identity string, ttl time.Duration) (term uint64, err error) {
	defer func(start time.Time) { observe("redis", "acquire", start, err) }(time.Now())

	result, err := s.client.Eval(ctx, redisAcquireScript,
		[]string{s.key, s.termKey},
		identity, ttl.Milliseconds(),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return 0, fmt.Errorf("%w: unexpected acquire reply %v", ErrUnavailable, result)
	}

	acquired, _ := values[0].(int64)
	if acquired != 1 {
		return 0, ErrConflict
	}

	newTerm, _ := values[1].(int64)

	s.log.WithFields(logrus.Fields{
		"holder": identity,
		"term":   newTerm,
	}).Debug("Acquired lease")

	return uint64(newTerm), nil
}

// Renew extends the TTL while holder and term still match.
func (s *RedisStore) Renew(ctx context.Context, identity string, term uint64, ttl time.Duration) (err error) {
	defer func(start time.Time) { observe("redis", "renew", start, err) }(time.Now())

	result, err := s.client.Eval(ctx, redisRenewScript,
		[]string{s.key},
		identity, strconv.FormatUint(term, 10), ttl.Milliseconds(),
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if val, ok := result.(int64); !ok || val != 1 {
		return ErrConflict
	}

	return nil
}

// Release deletes the lease while holder and term still match.
func (s *RedisStore) Release(ctx context.Context, identity string, term uint64) (err error) {
	defer func(start time.Time) { observe("redis", "release", start, err) }(time.Now())

	result, err := s.client.Eval(ctx, redisReleaseScript,
		[]string{s.key},
		identity, strconv.FormatUint(term, 10),
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if val, ok := result.(int64); !ok || val != 1 {
		return ErrConflict
	}

	s.log.WithField("holder", identity).Debug("Released lease")

	return nil
}

// Leader returns the current lease record.
func (s *RedisStore) Leader(ctx context.Context) (lease *Lease, err error) {
	defer func(start time.Time) { observe("redis", "leader", start, err) }(time.Now())

	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	holder := fields["holder"]
	if holder == "" {
		return nil, ErrNoLeader
	}

	term, err := strconv.ParseUint(fields["term"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed lease term %q: %w", fields["term"], err)
	}

	lease = &Lease{Holder: holder, Term: term}

	if pttl, err := s.client.PTTL(ctx, s.key).Result(); err == nil && pttl > 0 {
		lease.Expiry = time.Now().Add(pttl)
	}

	return lease, nil
}

// Close is a no-op; the redis client is owned by the caller.
func (s *RedisStore) Close() error {
	return nil
}
