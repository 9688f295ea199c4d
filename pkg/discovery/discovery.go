// Package discovery abstracts how a server learns the network addresses of
// other cluster members. Raft's peer set is static (spec.md §1: "a static
// set of 1..N peers ... known at startup"), so only the static backend
// survives in this module; the Discovery interface is kept for demo/seed
// use, and PeerBook is the peer-id-addressed lookup the Coordination
// transport needs.
package discovery

// Discovery abstracts how seed addresses are provided to a node at startup.
type Discovery interface {
	Seeds() []string
}

// PeerBook resolves a Raft peer id to its dial address ("host:port").
type PeerBook interface {
	Addr(peerID uint16) (string, bool)
}
