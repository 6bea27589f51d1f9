package verification

import (
	"context"
	"time"

	dErrors "consentry/pkg/domain-errors"
)

// shardedTx provides the transactional boundary for in-memory deployments
// using sharded mutexes. Operations are distributed across shards by a hash
// of the contact ID, so concurrent verifications for different contacts do
// not contend on a single lock.
const numShards = 128

// defaultTxTimeout bounds how long a verify transaction may hold its shard.
const defaultTxTimeout = 5 * time.Second

type shardedTx struct {
	shards  [numShards]chan struct{}
	store   Store
	timeout time.Duration
}

// NewInMemoryTx builds the in-memory transactional boundary over store.
func NewInMemoryTx(store Store) Tx {
	t := &shardedTx{store: store, timeout: defaultTxTimeout}
	for i := range t.shards {
		t.shards[i] = make(chan struct{}, 1)
	}
	return t
}

func (t *shardedTx) RunInTx(ctx context.Context, contactID string, fn func(store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := t.shards[hashString(contactID)%numShards]
	select {
	case shard <- struct{}{}:
		defer func() { <-shard }()
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted: shard lock timeout")
	}

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(t.store)
}

// hashString uses FNV-1a for even shard distribution.
func hashString(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
