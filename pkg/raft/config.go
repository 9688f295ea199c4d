package raft

import (
	"errors"
	"time"
)

// Config carries the tunables named in the Raft core's external interface
// contract: election jitter window, heartbeat cadence, RPC timeouts, and the
// static cluster shape. A zero Config is invalid; call Validate before use.
type Config struct {
	// ServerID is this server's id in [1, ClusterSize].
	ServerID uint16
	// ClusterSize is the total number of peers, numbered 1..ClusterSize.
	ClusterSize uint16

	// ElectionTimeoutMin/Max bound the randomized election deadline: the
	// actual deadline is uniform in [Min, Max).
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration

	// HeartbeatInterval is the leader's heartbeat period to idle peers.
	HeartbeatInterval time.Duration

	// RPCTimeout bounds a single outbound RequestVote/AppendEntries call.
	RPCTimeout time.Duration
	// RPCBackoff is the wait applied to a peer after an RPC failure/timeout.
	RPCBackoff time.Duration

	// DurabilityDir is where the persistent store lives. Only meaningful to
	// on-disk kvstore implementations; in-memory stores ignore it.
	DurabilityDir string
}

// DefaultConfig returns a Config with conservative, human-scale timeouts
// suitable for local demos and tests.
func DefaultConfig() Config {
	return Config{
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  50 * time.Millisecond,
		RPCTimeout:         100 * time.Millisecond,
		RPCBackoff:         200 * time.Millisecond,
	}
}

// Validate performs fail-fast structural checks. It does not touch disk or
// the network.
func (c Config) Validate() error {
	if c.ServerID == 0 {
		return errors.New("raft: ServerID must be >= 1")
	}
	if c.ClusterSize == 0 || c.ServerID > c.ClusterSize {
		return errors.New("raft: ServerID must be within [1, ClusterSize]")
	}
	if c.ElectionTimeoutMin <= 0 || c.ElectionTimeoutMax <= c.ElectionTimeoutMin {
		return errors.New("raft: ElectionTimeoutMax must be > ElectionTimeoutMin > 0")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("raft: HeartbeatInterval must be > 0")
	}
	if c.RPCTimeout <= 0 {
		return errors.New("raft: RPCTimeout must be > 0")
	}
	if c.RPCBackoff <= 0 {
		return errors.New("raft: RPCBackoff must be > 0")
	}
	return nil
}

// Majority returns the number of votes/acks required for a majority of the
// configured cluster.
func (c Config) Majority() int {
	return int(c.ClusterSize)/2 + 1
}
