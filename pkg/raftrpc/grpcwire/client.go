package grpcwire

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/amirimatin/graphraft/pkg/observability/metrics"
	"github.com/amirimatin/graphraft/pkg/raft"
)

// PeerBook resolves a peer id to its dial address ("host:port").
type PeerBook interface {
	Addr(peerID uint16) (string, bool)
}

// Client implements raft.Coordination by dialing each peer's grpcwire
// Server, reusing connections through a small idle-evicting cache. Grounded
// on the teacher's pkg/transport/grpc/{client,connmgr}.go.
type Client struct {
	peers   PeerBook
	timeout time.Duration
	tlsCfg  *tls.Config
	cm      *connManager
}

// NewClient returns a Client dialing peers resolved through peers, with
// timeout applied per outbound dial/call in addition to whatever deadline
// the caller's context already carries.
func NewClient(peers PeerBook, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{peers: peers, timeout: timeout}
}

// UseTLS enables mutual TLS for outbound dials using cfg.
func (c *Client) UseTLS(cfg *tls.Config) *Client {
	c.tlsCfg = cfg
	return c
}

// Close releases all cached connections.
func (c *Client) Close() {
	if c.cm != nil {
		c.cm.close()
	}
}

func (c *Client) dialCtx(ctx context.Context, target string) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
		grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 500 * time.Millisecond}),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: 20 * time.Second, Timeout: 5 * time.Second, PermitWithoutStream: true}),
		grpc.WithBlock(),
	}
	if c.tlsCfg != nil {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.tlsCfg)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	return grpc.DialContext(ctx, target, opts...)
}

func (c *Client) getConn(ctx context.Context, addr string) (*grpc.ClientConn, func(), error) {
	if c.cm == nil {
		c.cm = newConnManager(30*time.Second, c.dialCtx)
	}
	return c.cm.get(ctx, addr)
}

// RequestVote dials peerID (or reuses a cached connection) and invokes the
// Coordination RequestVote RPC.
func (c *Client) RequestVote(ctx context.Context, peerID uint16, req raft.RequestVoteReq) (raft.RequestVoteRes, error) {
	var res raft.RequestVoteRes
	addr, ok := c.peers.Addr(peerID)
	if !ok {
		return res, errUnknownPeer(peerID)
	}
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	cc, release, err := c.getConn(cctx, addr)
	if err != nil {
		return res, err
	}
	defer release()
	err = cc.Invoke(cctx, "/graphraft.v1.Coordination/RequestVote", &req, &res)
	return res, err
}

// AppendEntries dials peerID (or reuses a cached connection) and invokes the
// Coordination AppendEntries RPC.
func (c *Client) AppendEntries(ctx context.Context, peerID uint16, req raft.AppendEntriesReq) (raft.AppendEntriesRes, error) {
	var res raft.AppendEntriesRes
	addr, ok := c.peers.Addr(peerID)
	if !ok {
		return res, errUnknownPeer(peerID)
	}
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	cc, release, err := c.getConn(cctx, addr)
	if err != nil {
		return res, err
	}
	defer release()
	err = cc.Invoke(cctx, "/graphraft.v1.Coordination/AppendEntries", &req, &res)
	return res, err
}

var _ raft.Coordination = (*Client)(nil)

type unknownPeerError uint16

func (e unknownPeerError) Error() string {
	return "grpcwire: no address known for peer"
}

func errUnknownPeer(peerID uint16) error { return unknownPeerError(peerID) }

// connManager caches gRPC client connections per address with idle
// eviction, grounded on the teacher's pkg/transport/grpc/connmgr.go.
type connManager struct {
	mu      sync.Mutex
	conns   map[string]*managedConn
	ttl     time.Duration
	dialer  func(ctx context.Context, target string) (*grpc.ClientConn, error)
	closing chan struct{}
}

type managedConn struct {
	cc       *grpc.ClientConn
	lastUsed time.Time
	ref      int
}

func newConnManager(ttl time.Duration, dialer func(ctx context.Context, target string) (*grpc.ClientConn, error)) *connManager {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	m := &connManager{ttl: ttl, dialer: dialer, conns: make(map[string]*managedConn), closing: make(chan struct{})}
	go m.janitor()
	return m
}

func (m *connManager) get(ctx context.Context, target string) (*grpc.ClientConn, func(), error) {
	m.mu.Lock()
	if mc, ok := m.conns[target]; ok && mc.cc != nil {
		mc.ref++
		mc.lastUsed = time.Now()
		cc := mc.cc
		m.mu.Unlock()
		metrics.GRPCConnReuse.Inc()
		return cc, func() { m.release(target) }, nil
	}
	m.mu.Unlock()

	cc, err := m.dialer(ctx, target)
	if err != nil {
		return nil, func() {}, err
	}

	m.mu.Lock()
	if existing, ok := m.conns[target]; ok && existing.cc != nil {
		_ = cc.Close()
		existing.ref++
		existing.lastUsed = time.Now()
		out := existing.cc
		m.mu.Unlock()
		metrics.GRPCConnReuse.Inc()
		return out, func() { m.release(target) }, nil
	}
	m.conns[target] = &managedConn{cc: cc, lastUsed: time.Now(), ref: 1}
	metrics.GRPCConnDials.Inc()
	metrics.GRPCConnActive.Inc()
	m.mu.Unlock()
	return cc, func() { m.release(target) }, nil
}

func (m *connManager) release(target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mc, ok := m.conns[target]; ok {
		if mc.ref > 0 {
			mc.ref--
		}
		mc.lastUsed = time.Now()
	}
}

func (m *connManager) close() {
	close(m.closing)
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, mc := range m.conns {
		if mc.cc != nil {
			_ = mc.cc.Close()
		}
		delete(m.conns, k)
	}
}

func (m *connManager) janitor() {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-m.closing:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-m.ttl)
			m.mu.Lock()
			for addr, mc := range m.conns {
				if mc.ref == 0 && mc.lastUsed.Before(cutoff) {
					if mc.cc != nil {
						_ = mc.cc.Close()
					}
					metrics.GRPCConnEvictions.Inc()
					metrics.GRPCConnActive.Dec()
					delete(m.conns, addr)
				}
			}
			m.mu.Unlock()
		}
	}
}
