package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"lang_gateway/internal/ledger"
)

const (
	fieldCharacters = "characters"
	fieldRequests   = "requests"

	// DefaultLedgerPrefix namespaces usage buckets in a shared Redis database
	DefaultLedgerPrefix = "usage:"
)

// getAndClearScript reads both counters of a bucket and deletes it in one step
var getAndClearScript = redis.NewScript(`
	local values = redis.call('HMGET', KEYS[1], ARGV[1], ARGV[2])
	redis.call('DEL', KEYS[1])
	return values
`)

// LedgerStore keeps each usage bucket as a Redis hash with a characters and a requests field
type LedgerStore struct {
	redis  *redis.Client
	prefix string
}

// NewLedgerStore creates a ledger store. An empty prefix selects DefaultLedgerPrefix.
func NewLedgerStore(client *redis.Client, prefix string) *LedgerStore {
	if prefix == "" {
		prefix = DefaultLedgerPrefix
	}
	return &LedgerStore{redis: client, prefix: prefix}
}

func (s *LedgerStore) key(bucket string) string {
	return s.prefix + bucket
}

// Increment adds to both counters atomically and returns the post-increment totals.
// A positive ttl (re)arms the bucket's expiry.
func (s *LedgerStore) Increment(ctx context.Context, bucket string, characters, requests uint64, ttl time.Duration) (ledger.Value, error) {
	if characters > ledger.MaxCounter || requests > ledger.MaxCounter {
		return ledger.Value{}, fmt.Errorf("%w: increment %s by %d characters", ledger.ErrCounterOverflow, bucket, characters)
	}
	key := s.key(bucket)

	var chars, reqs *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		chars = pipe.HIncrBy(ctx, key, fieldCharacters, int64(characters))
		reqs = pipe.HIncrBy(ctx, key, fieldRequests, int64(requests))
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		if strings.Contains(err.Error(), "would overflow") {
			return ledger.Value{}, fmt.Errorf("%w: increment %s: %w", ledger.ErrCounterOverflow, bucket, err)
		}
		return ledger.Value{}, fmt.Errorf("%w: increment %s: %w", ErrStoreUnavailable, bucket, err)
	}

	return ledger.Value{
		Characters: uint64(chars.Val()),
		Requests:   uint64(reqs.Val()),
	}, nil
}

// Read returns the counters of a bucket; a missing bucket reads as zero
func (s *LedgerStore) Read(ctx context.Context, bucket string) (ledger.Value, error) {
	values, err := s.redis.HMGet(ctx, s.key(bucket), fieldCharacters, fieldRequests).Result()
	if err != nil {
		return ledger.Value{}, fmt.Errorf("%w: read %s: %w", ErrStoreUnavailable, bucket, err)
	}
	return parseValue(values)
}

// Reset zeroes a bucket
func (s *LedgerStore) Reset(ctx context.Context, bucket string) error {
	if err := s.redis.Del(ctx, s.key(bucket)).Err(); err != nil {
		return fmt.Errorf("%w: reset %s: %w", ErrStoreUnavailable, bucket, err)
	}
	return nil
}

// GetAndClear returns the counters of a bucket and zeroes it atomically
func (s *LedgerStore) GetAndClear(ctx context.Context, bucket string) (ledger.Value, error) {
	res, err := getAndClearScript.Run(ctx, s.redis, []string{s.key(bucket)}, fieldCharacters, fieldRequests).Slice()
	if err != nil {
		return ledger.Value{}, fmt.Errorf("%w: get and clear %s: %w", ErrStoreUnavailable, bucket, err)
	}
	return parseValue(res)
}

func parseValue(values []interface{}) (ledger.Value, error) {
	var v ledger.Value
	if len(values) != 2 {
		return v, fmt.Errorf("unexpected bucket reply of %d fields", len(values))
	}

	var err error
	if v.Characters, err = parseCounter(values[0]); err != nil {
		return ledger.Value{}, err
	}
	if v.Requests, err = parseCounter(values[1]); err != nil {
		return ledger.Value{}, err
	}
	return v, nil
}

func parseCounter(raw interface{}) (uint64, error) {
	switch val := raw.(type) {
	case nil:
		return 0, nil
	case string:
		n, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid counter value %q: %w", val, err)
		}
		return n, nil
	case int64:
		return uint64(val), nil
	}
	return 0, fmt.Errorf("unexpected counter type %T", raw)
}

var _ ledger.Store = (*LedgerStore)(nil)
