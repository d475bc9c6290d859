// Package txn provides the transactional boundary every state transition
// runs inside: the state check, the state write, and the audit append commit
// or abort together.
//
// Two runners implement the same contract. The SQL runner opens a database
// transaction and threads it through context for the stores. The sharded
// runner serializes by aggregate key with per-shard mutexes, which is what
// the in-memory stores need to make check-then-write atomic.
package txn

import (
	"context"
	"database/sql"
	"sync"
	"time"

	dErrors "registra/pkg/domain-errors"
	txcontext "registra/pkg/platform/tx"
)

// Runner executes fn atomically with respect to other transitions on the
// same aggregate key. The key is the owning LegalEntity ID unless the
// transition has no owner (retention sweeps pass "").
type Runner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

const defaultTimeout = 5 * time.Second

// numShards trades lock granularity against footprint; 128 keeps contention
// negligible at this write volume.
const numShards = 128

// Sharded serializes transitions per aggregate using hashed mutex shards.
type Sharded struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

func NewSharded() *Sharded {
	return &Sharded{timeout: defaultTimeout}
}

func (t *Sharded) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := fnv32(key) % numShards
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

func fnv32(s string) uint32 {
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

// SQL runs fn inside a database transaction carried by context. The partial
// unique indexes in the schema arbitrate races, so no advisory lock is
// taken; a constraint loser surfaces as sentinel.ErrConflict from its store.
type SQL struct {
	db      *sql.DB
	timeout time.Duration
}

func NewSQL(db *sql.DB) *SQL {
	return &SQL{db: db, timeout: defaultTimeout}
}

func (t *SQL) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "commit transaction")
	}
	return nil
}
