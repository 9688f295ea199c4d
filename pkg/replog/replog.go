// Package replog is a reference implementation of the replication log the
// Raft core's SafeToCommit delegates to: per-transaction bookkeeping of
// "replicating at index N" versus "applied up to index M". The real
// replication log is an external collaborator per spec.md §1; this package
// gives it a concrete, in-memory home, grounded on spec.md §4.6's
// safe_to_commit contract and the original's ReplicationLog/
// GarbageCollectReplicationLog.
package replog

import (
	"sync"

	"github.com/amirimatin/graphraft/pkg/raft"
)

// Log tracks, per transaction id, the log index its entries were appended
// at, and the highest index applied to the state machine so far. A
// transaction is safe to commit once the applied watermark reaches its
// index.
type Log struct {
	mu      sync.Mutex
	pending map[uint64]uint64 // txID -> index
	applied uint64
}

// New returns an empty Log.
func New() *Log {
	return &Log{pending: make(map[uint64]uint64)}
}

// MarkReplicating records that txID's entries now live at log index and are
// awaiting commit.
func (l *Log) MarkReplicating(txID uint64, index uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[txID] = index
}

// MarkApplied records that the entry at index has been applied, unblocking
// SafeToCommit for any transaction at or before that index. Indices arrive
// in strict ascending order (the applier loop's own invariant), so a plain
// high-watermark is sufficient bookkeeping.
func (l *Log) MarkApplied(index uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index > l.applied {
		l.applied = index
	}
}

// SafeToCommit reports whether txID's entries are known committed: it must
// have been marked replicating, and the applied watermark must have reached
// its index.
func (l *Log) SafeToCommit(txID uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	index, ok := l.pending[txID]
	if !ok {
		return false
	}
	return l.applied >= index
}

// Forget discards bookkeeping for txID. Safe to call once the caller no
// longer needs SafeToCommit(txID) to be meaningful; GraphRaft's Server Core
// exposes GarbageCollectReplicationLog to drive this periodically.
func (l *Log) Forget(txID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, txID)
}

// Pending returns the number of transactions still awaiting SafeToCommit,
// for tests and observability.
func (l *Log) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

var _ raft.ReplicationLog = (*Log)(nil)
