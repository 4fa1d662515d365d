package ledger

import (
	"context"
	"errors"
	"math"
	"time"
)

// MaxCounter is the largest value a bucket counter can hold; Redis hash counters are
// signed 64-bit integers.
const MaxCounter uint64 = math.MaxInt64

// ErrCounterOverflow is returned when an increment would take a counter past
// MaxCounter. The bucket is left unchanged.
var ErrCounterOverflow = errors.New("bucket counter overflow")

// Value is the content of a bucket.
type Value struct {
	Characters uint64 `json:"characters"`
	Requests   uint64 `json:"requests"`
}

// Store is the counter capability the tracker and the reconciler are given.
//
// Increment is atomic and returns the post-increment totals. GetAndClear atomically
// returns the current totals and zeroes the bucket, so usage accrued concurrently is
// never lost between a read and a reset. Counters never decrease except through Reset
// and GetAndClear; an increment that would overflow fails with ErrCounterOverflow. No
// other cross-bucket guarantee is made.
type Store interface {
	Increment(ctx context.Context, key string, characters, requests uint64, ttl time.Duration) (Value, error)
	Read(ctx context.Context, key string) (Value, error)
	Reset(ctx context.Context, key string) error
	GetAndClear(ctx context.Context, key string) (Value, error)
}
