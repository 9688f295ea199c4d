// Package static is the static peer address book required by spec.md §1: a
// cluster whose peers are a fixed set of 1..N, known at startup. Kept from
// the teacher's CSV seed-list parser and extended with ParsePeers/NewPeerBook
// for the "peer_id=host:port" form the Coordination transport needs to
// resolve peer ids to dial addresses.
package static

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/amirimatin/graphraft/pkg/discovery"
)

type staticSeeds struct {
	seeds []string
}

func (s *staticSeeds) Seeds() []string { return append([]string(nil), s.seeds...) }

// New returns a Discovery that always returns the given seeds.
func New(seeds ...string) discovery.Discovery {
	cleaned := make([]string, 0, len(seeds))
	for _, v := range seeds {
		v = strings.TrimSpace(v)
		if v != "" {
			cleaned = append(cleaned, v)
		}
	}
	return &staticSeeds{seeds: cleaned}
}

// Parse converts a comma-separated list into []string seeds.
func Parse(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// peerBook is a fixed peer id -> address map, built once at startup.
type peerBook struct {
	addrs map[uint16]string
}

// Addr resolves peerID to its dial address.
func (b *peerBook) Addr(peerID uint16) (string, bool) {
	a, ok := b.addrs[peerID]
	return a, ok
}

// NewPeerBook builds a discovery.PeerBook from an explicit id->addr map.
func NewPeerBook(addrs map[uint16]string) discovery.PeerBook {
	cp := make(map[uint16]string, len(addrs))
	for k, v := range addrs {
		cp[k] = v
	}
	return &peerBook{addrs: cp}
}

// ParsePeers parses a comma-separated "peer_id=host:port" list, as produced
// by the --peers flag, into a discovery.PeerBook. A malformed entry (missing
// "=", non-numeric id) is a configuration error, returned immediately.
func ParsePeers(csv string) (discovery.PeerBook, error) {
	addrs := make(map[uint16]string)
	for _, raw := range strings.Split(csv, ",") {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		idStr, addr, found := strings.Cut(entry, "=")
		if !found {
			return nil, fmt.Errorf("static: malformed peer entry %q, want id=host:port", entry)
		}
		id, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("static: invalid peer id in %q: %w", entry, err)
		}
		addrs[uint16(id)] = strings.TrimSpace(addr)
	}
	return NewPeerBook(addrs), nil
}
