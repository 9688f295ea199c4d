// Package graphstate is a reference implementation of the state-delta
// applier the Raft core hands committed StateDeltas to. The real graph
// database is out of scope for this module (spec.md §1); this package is a
// stand-in in-memory key/value projection used by demos and tests, grounded
// on the teacher's pkg/state/membership/state.go (mutex-guarded map +
// Snapshot), repurposed from cluster-membership entries to graph-mutation
// entries.
package graphstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/amirimatin/graphraft/pkg/raft"
)

// Node is the applied projection of a NodeSet delta: an opaque key/value
// pair the store keeps until a matching NodeDelete arrives.
type Node struct {
	Key     string `json:"key"`
	Payload []byte `json:"payload"`
}

// Edge is the applied projection of an EdgeSet delta.
type Edge struct {
	Key     string `json:"key"`
	Payload []byte `json:"payload"`
}

// Store is an in-memory graph projection. It implements raft.Applier: the
// Server Core's applier loop calls Apply once per committed delta, in
// strict ascending log-index order.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]Node
	edges map[string]Edge

	// applied counts every delta Apply has processed, including control
	// kinds, for observability/tests.
	applied uint64
}

// New returns an empty Store.
func New() *Store {
	return &Store{nodes: make(map[string]Node), edges: make(map[string]Edge)}
}

// Apply interprets one committed StateDelta. The three control kinds
// (TRANSACTION_BEGIN/COMMIT/ABORT) and NO_OP carry no graph mutation and are
// accepted as no-ops here — by the time Raft hands a delta to the applier
// it has already done everything it needs to with the control kinds.
func (s *Store) Apply(ctx context.Context, delta raft.StateDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied++

	switch delta.Kind {
	case raft.TransactionBegin, raft.TransactionCommit, raft.TransactionAbort, raft.NoOp:
		return nil
	case raft.NodeSet:
		if delta.Key == "" {
			return fmt.Errorf("graphstate: NodeSet with empty key (tx %d)", delta.TxID)
		}
		s.nodes[delta.Key] = Node{Key: delta.Key, Payload: append([]byte(nil), delta.Payload...)}
		return nil
	case raft.NodeDelete:
		delete(s.nodes, delta.Key)
		return nil
	case raft.EdgeSet:
		if delta.Key == "" {
			return fmt.Errorf("graphstate: EdgeSet with empty key (tx %d)", delta.TxID)
		}
		s.edges[delta.Key] = Edge{Key: delta.Key, Payload: append([]byte(nil), delta.Payload...)}
		return nil
	case raft.EdgeDelete:
		delete(s.edges, delta.Key)
		return nil
	default:
		return fmt.Errorf("graphstate: unknown delta kind %v (tx %d)", delta.Kind, delta.TxID)
	}
}

// Applied returns the number of deltas Apply has processed so far.
func (s *Store) Applied() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied
}

// Node returns the current value for key, if present.
func (s *Store) Node(key string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[key]
	return n, ok
}

// Edge returns the current value for key, if present.
func (s *Store) Edge(key string) (Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[key]
	return e, ok
}

// snapshot is the stable JSON form produced by Snapshot.
type snapshot struct {
	Version int    `json:"version"`
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
}

// Snapshot encodes the current projection as stable JSON, sorted by key for
// deterministic diffs. It exists for debugging/demo inspection, not as a
// Raft snapshot (log compaction is an explicit Non-goal).
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Key < nodes[j].Key })
	edges := make([]Edge, 0, len(s.edges))
	for _, e := range s.edges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Key < edges[j].Key })
	return json.Marshal(snapshot{Version: 1, Nodes: nodes, Edges: edges})
}

var _ raft.Applier = (*Store)(nil)
