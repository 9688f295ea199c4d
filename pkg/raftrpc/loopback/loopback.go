// Package loopback provides an in-process raft.Coordination transport: peers
// are registered directly against each other's raft.Server, with no socket in
// between. It exists for deterministic multi-node tests, grounded on the
// teacher's in-memory loopback wiring in raft_multi_test.go (there built
// around hashicorp/raft's transport, here around this module's own
// raft.Coordination contract).
package loopback

import (
	"context"
	"fmt"
	"sync"

	"github.com/amirimatin/graphraft/pkg/raft"
)

// handler is the subset of *raft.Server a registered peer must expose.
type handler interface {
	RequestVote(ctx context.Context, req raft.RequestVoteReq) (raft.RequestVoteRes, error)
	AppendEntries(ctx context.Context, req raft.AppendEntriesReq) (raft.AppendEntriesRes, error)
}

// Network is a shared registry of peer id -> handler. Each Transport reads
// the same Network, so any registered peer can reach any other.
type Network struct {
	mu    sync.RWMutex
	peers map[uint16]handler
}

// NewNetwork returns an empty, ready-to-use Network.
func NewNetwork() *Network {
	return &Network{peers: make(map[uint16]handler)}
}

// Register makes srv reachable as peerID on this network. It must be called
// once per peer before any Transport.RequestVote/AppendEntries call targets
// it.
func (n *Network) Register(peerID uint16, srv handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers[peerID] = srv
}

// Unregister removes peerID, simulating a permanently departed node. Not
// needed for the static-cluster spec but convenient for partition tests that
// want a hard failure instead of a dropped packet.
func (n *Network) Unregister(peerID uint16) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.peers, peerID)
}

func (n *Network) get(peerID uint16) (handler, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	h, ok := n.peers[peerID]
	return h, ok
}

// Transport implements raft.Coordination by dispatching directly into the
// target peer's handler on the same Network, optionally dropping calls to
// peers it has been told to partition away from.
type Transport struct {
	net *Network

	mu    sync.RWMutex
	cut   map[uint16]bool
}

// NewTransport returns a Coordination bound to net. Every raft.Server in a
// test shares one Network and gets its own Transport (so partitions can be
// simulated per-direction).
func NewTransport(net *Network) *Transport {
	return &Transport{net: net, cut: make(map[uint16]bool)}
}

// Partition makes subsequent calls to peerID fail with an RPC error, as if
// the link were down. Heal with Heal.
func (t *Transport) Partition(peerID uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cut[peerID] = true
}

// Heal reverses a prior Partition.
func (t *Transport) Heal(peerID uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cut, peerID)
}

func (t *Transport) isCut(peerID uint16) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cut[peerID]
}

// RequestVote dispatches to peerID's handler directly, without serialization.
func (t *Transport) RequestVote(ctx context.Context, peerID uint16, req raft.RequestVoteReq) (raft.RequestVoteRes, error) {
	if t.isCut(peerID) {
		return raft.RequestVoteRes{}, fmt.Errorf("loopback: peer %d partitioned", peerID)
	}
	h, ok := t.net.get(peerID)
	if !ok {
		return raft.RequestVoteRes{}, fmt.Errorf("loopback: peer %d not registered", peerID)
	}
	return h.RequestVote(ctx, req)
}

// AppendEntries dispatches to peerID's handler directly, without
// serialization.
func (t *Transport) AppendEntries(ctx context.Context, peerID uint16, req raft.AppendEntriesReq) (raft.AppendEntriesRes, error) {
	if t.isCut(peerID) {
		return raft.AppendEntriesRes{}, fmt.Errorf("loopback: peer %d partitioned", peerID)
	}
	h, ok := t.net.get(peerID)
	if !ok {
		return raft.AppendEntriesRes{}, fmt.Errorf("loopback: peer %d not registered", peerID)
	}
	return h.AppendEntries(ctx, req)
}

var _ raft.Coordination = (*Transport)(nil)
