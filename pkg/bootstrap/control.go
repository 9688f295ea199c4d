package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amirimatin/graphraft/pkg/observability/tracing"
	"github.com/amirimatin/graphraft/pkg/raft"
)

// controlServer is a minimal HTTP surface for local status/propose/metrics
// queries against this process's own Node — it is not part of the
// Coordination RPC contract (spec.md §6) and never talks to peers.
// Grounded on the teacher's pkg/transport/httpjson/server.go (mux + /status,
// /healthz, /metrics handlers), narrowed to this module's own status shape
// and the demo propose endpoint.
type controlServer struct {
	bind string
	node *Node
	srv  *http.Server
}

type statusResponse struct {
	IsLeader    bool   `json:"isLeader"`
	CurrentTerm uint64 `json:"currentTerm"`
	CommitIndex uint64 `json:"commitIndex"`
	LastApplied uint64 `json:"lastApplied"`
	Applied     uint64 `json:"appliedDeltas"`
}

type proposeRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type proposeResponse struct {
	TxID  uint64 `json:"txId"`
	Error string `json:"error,omitempty"`
}

// newControlServer binds a control HTTP server at bind, serving status and
// propose endpoints for node.
func newControlServer(bind string, node *Node) *controlServer {
	return &controlServer{bind: bind, node: node}
}

func (c *controlServer) start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", c.handleStatus)
	mux.HandleFunc("/propose", c.handlePropose)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	c.srv = &http.Server{Addr: c.bind, Handler: mux}
	ln, err := net.Listen("tcp", c.bind)
	if err != nil {
		return err
	}
	go func() { _ = c.srv.Serve(ln) }()
	return nil
}

func (c *controlServer) stop(ctx context.Context) error {
	if c.srv == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.srv.Shutdown(cctx)
}

func (c *controlServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, end := tracing.StartSpan(r.Context(), "control.status")
	defer end()

	snap := c.node.Server.Snapshot()
	resp := statusResponse{
		IsLeader:    snap.Mode == raft.Leader,
		CurrentTerm: snap.CurrentTerm,
		CommitIndex: snap.CommitIndex,
		LastApplied: snap.LastApplied,
		Applied:     c.node.Applier.Applied(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (c *controlServer) handlePropose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, end := tracing.StartSpan(r.Context(), "control.propose")
	defer end()

	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
		return
	}
	if !c.node.Server.IsLeader() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(proposeResponse{Error: "not leader"})
		return
	}

	txID := uint64(time.Now().UnixNano())
	c.node.Server.Emplace(raft.StateDelta{Kind: raft.TransactionBegin, TxID: txID})
	c.node.Server.Emplace(raft.StateDelta{Kind: raft.NodeSet, TxID: txID, Key: req.Key, Payload: []byte(req.Value)})
	c.node.Server.Emplace(raft.StateDelta{Kind: raft.TransactionCommit, TxID: txID})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(proposeResponse{TxID: txID})
}
