package graphstate

import (
	"context"
	"strings"
	"testing"

	"github.com/amirimatin/graphraft/pkg/raft"
)

func TestStore_ApplyNodeLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Apply(ctx, raft.StateDelta{Kind: raft.NodeSet, TxID: 1, Key: "n1", Payload: []byte("v1")}); err != nil {
		t.Fatalf("apply NodeSet: %v", err)
	}
	n, ok := s.Node("n1")
	if !ok || string(n.Payload) != "v1" {
		t.Fatalf("expected node n1=v1, got %+v ok=%v", n, ok)
	}

	if err := s.Apply(ctx, raft.StateDelta{Kind: raft.NodeDelete, TxID: 2, Key: "n1"}); err != nil {
		t.Fatalf("apply NodeDelete: %v", err)
	}
	if _, ok := s.Node("n1"); ok {
		t.Fatalf("expected n1 to be gone after delete")
	}
}

func TestStore_ApplyEdgeLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Apply(ctx, raft.StateDelta{Kind: raft.EdgeSet, TxID: 1, Key: "e1", Payload: []byte("v1")}); err != nil {
		t.Fatalf("apply EdgeSet: %v", err)
	}
	e, ok := s.Edge("e1")
	if !ok || string(e.Payload) != "v1" {
		t.Fatalf("expected edge e1=v1, got %+v ok=%v", e, ok)
	}
	if err := s.Apply(ctx, raft.StateDelta{Kind: raft.EdgeDelete, TxID: 2, Key: "e1"}); err != nil {
		t.Fatalf("apply EdgeDelete: %v", err)
	}
	if _, ok := s.Edge("e1"); ok {
		t.Fatalf("expected e1 to be gone after delete")
	}
}

func TestStore_ControlKindsAreNoOps(t *testing.T) {
	s := New()
	ctx := context.Background()
	kinds := []raft.Kind{raft.TransactionBegin, raft.TransactionCommit, raft.TransactionAbort, raft.NoOp}
	for _, k := range kinds {
		if err := s.Apply(ctx, raft.StateDelta{Kind: k, TxID: 1}); err != nil {
			t.Fatalf("apply %v: %v", k, err)
		}
	}
	if got := s.Applied(); got != uint64(len(kinds)) {
		t.Fatalf("Applied() = %d, want %d", got, len(kinds))
	}
}

func TestStore_RejectsEmptyKeyMutations(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Apply(ctx, raft.StateDelta{Kind: raft.NodeSet, TxID: 1}); err == nil {
		t.Fatalf("expected error for NodeSet with empty key")
	}
	if err := s.Apply(ctx, raft.StateDelta{Kind: raft.EdgeSet, TxID: 1}); err == nil {
		t.Fatalf("expected error for EdgeSet with empty key")
	}
}

func TestStore_Snapshot_SortedAndDeterministic(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Apply(ctx, raft.StateDelta{Kind: raft.NodeSet, TxID: 1, Key: "b", Payload: []byte("2")})
	_ = s.Apply(ctx, raft.StateDelta{Kind: raft.NodeSet, TxID: 2, Key: "a", Payload: []byte("1")})

	snap1, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	snap2, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot2: %v", err)
	}
	if string(snap1) != string(snap2) {
		t.Fatalf("snapshot is not deterministic:\n%s\n%s", snap1, snap2)
	}
	ia, ib := strings.Index(string(snap1), `"key":"a"`), strings.Index(string(snap1), `"key":"b"`)
	if ia < 0 || ib < 0 || ia > ib {
		t.Fatalf("snapshot nodes not sorted by key: %s", snap1)
	}
}
