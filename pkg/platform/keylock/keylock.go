// Package keylock serializes work per key using a fixed set of sharded locks.
//
// Two keys may share a shard, which only costs parallelism, never
// correctness. Distinct projects or donors therefore proceed in parallel
// in the common case while writes to the same key are strictly ordered.
package keylock

import (
	"context"
	"hash/fnv"
	"time"

	dErrors "fundly/pkg/domain-errors"
)

const (
	defaultShards  = 128
	defaultTimeout = 5 * time.Second
)

// Locker runs callbacks while holding the shard lock of a key. Each shard is
// a one-slot channel so waiting for it can be abandoned with the context.
type Locker struct {
	shards  []chan struct{}
	timeout time.Duration
}

type Option func(*Locker)

// WithTimeout bounds how long a caller may wait for and hold a lock when its
// context carries no deadline.
func WithTimeout(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithShards overrides the shard count.
func WithShards(n int) Option {
	return func(l *Locker) {
		if n > 0 {
			l.shards = newShards(n)
		}
	}
}

func New(opts ...Option) *Locker {
	l := &Locker{
		shards:  newShards(defaultShards),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func newShards(n int) []chan struct{} {
	shards := make([]chan struct{}, n)
	for i := range shards {
		shards[i] = make(chan struct{}, 1)
	}
	return shards
}

// Do runs fn while holding the lock for key. Waiting for the lock stops as
// soon as the context is done.
func (l *Locker) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return aborted(err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	shard := l.shards[l.shard(key)]
	select {
	case shard <- struct{}{}:
	case <-ctx.Done():
		return aborted(ctx.Err())
	}
	defer func() { <-shard }()

	if err := ctx.Err(); err != nil {
		return aborted(err)
	}
	return fn(ctx)
}

func aborted(err error) error {
	return dErrors.Wrap(err, dErrors.CodeTimeout, "lock aborted: context cancelled")
}

func (l *Locker) shard(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(l.shards)))
}
