// Package bootstrap assembles a runnable Raft server from a flat Config,
// grounded on the teacher's pkg/bootstrap/bootstrap.go ("Config struct with
// sensible defaults, Build/Run functions" shape). It wires pkg/raft's Server
// Core to a kvstore-backed persistent store, the grpcwire Coordination
// transport, a graphstate.Store applier, and a replog.Log — concrete
// collaborators standing in for the spec's external persistence store,
// transport, state-delta applier, and replication log.
package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/amirimatin/graphraft/pkg/discovery/static"
	"github.com/amirimatin/graphraft/pkg/graphstate"
	"github.com/amirimatin/graphraft/pkg/observability/metrics"
	"github.com/amirimatin/graphraft/pkg/raft"
	"github.com/amirimatin/graphraft/pkg/raft/kvstore"
	"github.com/amirimatin/graphraft/pkg/raft/kvstore/boltstore"
	"github.com/amirimatin/graphraft/pkg/raft/kvstore/memstore"
	"github.com/amirimatin/graphraft/pkg/raftrpc/grpcwire"
	"github.com/amirimatin/graphraft/pkg/replog"
	"github.com/amirimatin/graphraft/pkg/security/tlsconfig"
)

// Config defines the high-level inputs needed to assemble a Raft server
// node with sensible defaults. Applications embed this module by filling in
// Config and calling Build or Run.
type Config struct {
	// ServerID is this node's id, in [1, ClusterSize].
	ServerID uint16
	// BindAddr is this node's own Coordination RPC listen address.
	BindAddr string
	// PeersCSV is the static peer address book, "id=host:port,id=host:port"
	// (see pkg/discovery/static.ParsePeers). It need not include ServerID's
	// own entry.
	PeersCSV string
	// ClusterSize is the total number of peers, 1..ClusterSize. If zero, it
	// is inferred from PeersCSV's entries plus this node.
	ClusterSize uint16

	// DurabilityDir is where the persistent store lives. Empty selects an
	// in-memory store (no durability across restarts — tests/demos only).
	DurabilityDir string

	// ControlAddr, if set, serves local /status, /propose, /healthz, and
	// /metrics endpoints — a demo/operations surface distinct from the
	// Coordination RPC contract (spec.md §6), which never talks to peers.
	ControlAddr string

	// Election/heartbeat/RPC tuning; zero fields fall back to
	// raft.DefaultConfig's values.
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
	RPCTimeout         time.Duration
	RPCBackoff         time.Duration

	// TLS (optional), mutual auth for the Coordination transport.
	TLSEnable     bool
	TLSCA         string
	TLSCert       string
	TLSKey        string
	TLSServerName string
	TLSSkipVerify bool

	// Logger (optional). If nil, log.Default() is used.
	Logger *log.Logger
}

// Node is an assembled, startable Raft server plus the transport and
// collaborators wired around it.
type Node struct {
	Server    *raft.Server
	Applier   *graphstate.Store
	ReplLog   *replog.Log
	Store     kvstore.Store
	RPCServer *grpcwire.Server
	RPCClient *grpcwire.Client

	control *controlServer
}

// Build assembles a Node from cfg without starting it.
func Build(cfg Config) (*Node, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.BindAddr == "" {
		return nil, fmt.Errorf("bootstrap: BindAddr is required")
	}

	peers, err := static.ParsePeers(cfg.PeersCSV)
	if err != nil {
		return nil, err
	}

	clusterSize := cfg.ClusterSize
	if clusterSize == 0 {
		clusterSize = inferClusterSize(cfg.ServerID, cfg.PeersCSV)
	}

	rcfg := raft.DefaultConfig()
	rcfg.ServerID = cfg.ServerID
	rcfg.ClusterSize = clusterSize
	rcfg.DurabilityDir = cfg.DurabilityDir
	if cfg.ElectionTimeoutMin > 0 {
		rcfg.ElectionTimeoutMin = cfg.ElectionTimeoutMin
	}
	if cfg.ElectionTimeoutMax > 0 {
		rcfg.ElectionTimeoutMax = cfg.ElectionTimeoutMax
	}
	if cfg.HeartbeatInterval > 0 {
		rcfg.HeartbeatInterval = cfg.HeartbeatInterval
	}
	if cfg.RPCTimeout > 0 {
		rcfg.RPCTimeout = cfg.RPCTimeout
	}
	if cfg.RPCBackoff > 0 {
		rcfg.RPCBackoff = cfg.RPCBackoff
	}
	if err := rcfg.Validate(); err != nil {
		return nil, err
	}

	var kv kvstore.Store
	if cfg.DurabilityDir == "" {
		kv = memstore.New()
	} else {
		kv, err = boltstore.Open(cfg.DurabilityDir + "/raft.db")
		if err != nil {
			return nil, fmt.Errorf("bootstrap: open durable store: %w", err)
		}
	}
	store := raft.NewPersistentStore(kv)

	applier := graphstate.New()
	rl := replog.New()

	var srvTLS, cliTLS *tls.Config
	if cfg.TLSEnable {
		topts := tlsconfig.Options{
			Enable:             true,
			CAFile:             cfg.TLSCA,
			CertFile:           cfg.TLSCert,
			KeyFile:            cfg.TLSKey,
			InsecureSkipVerify: cfg.TLSSkipVerify,
			ServerName:         cfg.TLSServerName,
		}
		if srvTLS, err = topts.ServerHotReload(); err != nil {
			return nil, fmt.Errorf("bootstrap: server tls: %w", err)
		}
		if cliTLS, err = topts.ClientHotReload(); err != nil {
			return nil, fmt.Errorf("bootstrap: client tls: %w", err)
		}
	}

	client := grpcwire.NewClient(peers, rcfg.RPCTimeout)
	if cliTLS != nil {
		client.UseTLS(cliTLS)
	}

	resetCallback := func() {
		// Leader->Follower demotion: the graph database would drop
		// in-flight work tied to this server's former leadership here.
		// graphstate has no in-flight leader-only state to drop.
	}

	// no_op_create is host-supplied per spec: the Server Core only knows
	// when to call it, not what a no-op transaction looks like. This host
	// posts the same BEGIN/NO_OP/COMMIT sequence graphstate's StateDelta
	// model uses for any other transaction, under a transaction id carved
	// out of the client id space so it can never collide with one.
	var server *raft.Server
	var noOpSeq uint64
	noOpCreate := func() {
		noOpSeq++
		txID := (uint64(rcfg.ServerID) << 48) | (1 << 47) | noOpSeq
		server.Emplace(raft.StateDelta{Kind: raft.TransactionBegin, TxID: txID})
		server.Emplace(raft.StateDelta{Kind: raft.NoOp, TxID: txID})
		server.Emplace(raft.StateDelta{Kind: raft.TransactionCommit, TxID: txID})
	}

	server = raft.NewServer(rcfg, store, applier, rl, client, resetCallback, noOpCreate, cfg.Logger)

	rpcServer := grpcwire.NewServer(cfg.BindAddr, server)
	if srvTLS != nil {
		rpcServer.UseTLS(srvTLS)
	}

	metrics.Register()

	node := &Node{
		Server:    server,
		Applier:   applier,
		ReplLog:   rl,
		Store:     kv,
		RPCServer: rpcServer,
		RPCClient: client,
	}
	if cfg.ControlAddr != "" {
		node.control = newControlServer(cfg.ControlAddr, node)
	}
	return node, nil
}

// Run builds and starts a Node: the Coordination gRPC server first (so peers
// can reach this node as soon as it is known to be up), then the Raft
// server itself.
func Run(ctx context.Context, cfg Config) (*Node, error) {
	n, err := Build(cfg)
	if err != nil {
		return nil, err
	}
	if err := n.RPCServer.Start(); err != nil {
		return nil, fmt.Errorf("bootstrap: start coordination server: %w", err)
	}
	if err := n.Server.Start(); err != nil {
		n.RPCServer.Stop()
		return nil, fmt.Errorf("bootstrap: start raft server: %w", err)
	}
	if n.control != nil {
		if err := n.control.start(); err != nil {
			n.Server.Shutdown()
			n.RPCServer.Stop()
			return nil, fmt.Errorf("bootstrap: start control server: %w", err)
		}
	}
	go func() {
		<-ctx.Done()
		n.Close()
	}()
	return n, nil
}

// Close shuts the control server, the Raft server, the Coordination
// transport, and the persistent store down, in that order.
func (n *Node) Close() {
	if n.control != nil {
		_ = n.control.stop(context.Background())
	}
	n.Server.Shutdown()
	n.RPCServer.Stop()
	n.RPCClient.Close()
	_ = n.Store.Close()
}

// inferClusterSize falls back to "highest peer id seen, or this node's own
// id, whichever is larger" when ClusterSize is left unset. Explicit
// ClusterSize is preferred in production: a partitioned peer list must never
// silently shrink the majority threshold.
func inferClusterSize(serverID uint16, peersCSV string) uint16 {
	max := serverID
	for _, entry := range static.Parse(peersCSV) {
		idStr, _, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 16)
		if err == nil && uint16(id) > max {
			max = uint16(id)
		}
	}
	return max
}
