package raft

import "context"

// RequestVoteReq is the RequestVote RPC request.
type RequestVoteReq struct {
	Term         uint64 `json:"term"`
	CandidateID  uint16 `json:"candidateId"`
	LastLogIndex uint64 `json:"lastLogIndex"`
	LastLogTerm  uint64 `json:"lastLogTerm"`
}

// RequestVoteRes is the RequestVote RPC response.
type RequestVoteRes struct {
	Term        uint64 `json:"term"`
	VoteGranted bool   `json:"voteGranted"`
}

// AppendEntriesReq is the AppendEntries RPC request.
type AppendEntriesReq struct {
	Term         uint64     `json:"term"`
	LeaderID     uint16     `json:"leaderId"`
	PrevLogIndex uint64     `json:"prevLogIndex"`
	PrevLogTerm  uint64     `json:"prevLogTerm"`
	Entries      []LogEntry `json:"entries,omitempty"`
	LeaderCommit uint64     `json:"leaderCommit"`
}

// AppendEntriesRes is the AppendEntries RPC response.
type AppendEntriesRes struct {
	Term    uint64 `json:"term"`
	Success bool   `json:"success"`
}

// Coordination is the transport abstraction the Raft core requires: a
// peer-id-addressed request/response channel. Concrete wire implementations
// (pkg/raftrpc/grpcwire, pkg/raftrpc/loopback) live outside this package —
// Coordination itself is an external collaborator per the core's contract.
type Coordination interface {
	RequestVote(ctx context.Context, peerID uint16, req RequestVoteReq) (RequestVoteRes, error)
	AppendEntries(ctx context.Context, peerID uint16, req AppendEntriesReq) (AppendEntriesRes, error)
}
