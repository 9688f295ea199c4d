package loopback

import (
	"context"
	"testing"

	"github.com/amirimatin/graphraft/pkg/raft"
)

type stubHandler struct {
	voteRes   raft.RequestVoteRes
	appendRes raft.AppendEntriesRes
}

func (h *stubHandler) RequestVote(ctx context.Context, req raft.RequestVoteReq) (raft.RequestVoteRes, error) {
	return h.voteRes, nil
}

func (h *stubHandler) AppendEntries(ctx context.Context, req raft.AppendEntriesReq) (raft.AppendEntriesRes, error) {
	return h.appendRes, nil
}

func TestTransport_DispatchesToRegisteredPeer(t *testing.T) {
	net := NewNetwork()
	net.Register(2, &stubHandler{voteRes: raft.RequestVoteRes{Term: 3, VoteGranted: true}})
	tr := NewTransport(net)

	res, err := tr.RequestVote(context.Background(), 2, raft.RequestVoteReq{Term: 3})
	if err != nil {
		t.Fatalf("RequestVote: %v", err)
	}
	if !res.VoteGranted || res.Term != 3 {
		t.Fatalf("unexpected response: %+v", res)
	}
}

func TestTransport_UnregisteredPeerErrors(t *testing.T) {
	net := NewNetwork()
	tr := NewTransport(net)
	if _, err := tr.RequestVote(context.Background(), 9, raft.RequestVoteReq{}); err == nil {
		t.Fatalf("expected error for unregistered peer")
	}
}

func TestTransport_PartitionAndHeal(t *testing.T) {
	net := NewNetwork()
	net.Register(2, &stubHandler{appendRes: raft.AppendEntriesRes{Success: true}})
	tr := NewTransport(net)

	tr.Partition(2)
	if _, err := tr.AppendEntries(context.Background(), 2, raft.AppendEntriesReq{}); err == nil {
		t.Fatalf("expected error while partitioned")
	}

	tr.Heal(2)
	res, err := tr.AppendEntries(context.Background(), 2, raft.AppendEntriesReq{})
	if err != nil {
		t.Fatalf("AppendEntries after heal: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success after heal, got %+v", res)
	}
}

func TestNetwork_Unregister(t *testing.T) {
	net := NewNetwork()
	net.Register(5, &stubHandler{})
	net.Unregister(5)
	tr := NewTransport(net)
	if _, err := tr.RequestVote(context.Background(), 5, raft.RequestVoteReq{}); err == nil {
		t.Fatalf("expected error after unregister")
	}
}
