package raft

import "context"

// Applier is the host-provided state-machine applier. The Server Core hands
// it committed deltas in strict ascending log-index order, one at a time.
// Applier implementations are out of scope for this module (the graph
// database itself); pkg/graphstate provides a reference implementation.
type Applier interface {
	Apply(ctx context.Context, delta StateDelta) error
}

// ReplicationLog tracks, per transaction, whether its log entries have been
// committed — the thing SafeToCommit ultimately answers. It is an external
// collaborator per the Raft core's contract; pkg/replog provides a reference
// implementation.
type ReplicationLog interface {
	// MarkReplicating records that txID's entries now live at log index idx
	// and are awaiting commit.
	MarkReplicating(txID uint64, index uint64)
	// MarkApplied records that the entry at index has been applied to the
	// state machine, unblocking SafeToCommit for any transaction at or
	// before that index.
	MarkApplied(index uint64)
	// SafeToCommit reports whether txID's entries are known committed.
	SafeToCommit(txID uint64) bool
	// Forget discards bookkeeping for txID once the caller no longer needs
	// SafeToCommit(txID) to be meaningful.
	Forget(txID uint64)
}
