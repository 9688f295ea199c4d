// Package raft implements the consensus core driving a replicated graph
// database's state machine: leader election, log replication, commit
// advancement, and crash-safe recovery across a fixed-size cluster.
package raft

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/amirimatin/graphraft/pkg/internal/logutil"
	"github.com/amirimatin/graphraft/pkg/observability/metrics"
)

// peerState is the leader-only bookkeeping for one remote peer. Apart from
// the resets transitionLocked makes on entering Candidate or Leader, writes
// to a given peer's state are made only by that peer's own replicator
// goroutine. All writes happen under the Server's lock.
type peerState struct {
	nextIndex     uint64
	matchIndex    uint64
	nextHeartbeat time.Time
	backoffUntil  time.Time
	voteRequested bool
}

// Server is the Server Core: it owns mode, term, log, and commit/apply
// indices, and orchestrates the Election Timer, Peer Replicators, No-op
// Issuer, and applier loop around them. All volatile state is guarded by mu;
// callers never see it unlocked.
type Server struct {
	cfg       Config
	store     *PersistentStore
	applier   Applier
	replog    ReplicationLog
	transport Coordination
	logger    *log.Logger

	// resetCallback runs on leader->follower, telling the host to drop any
	// in-flight work tied to this server's (former) leadership.
	resetCallback func()

	// noOpCreate runs on follower/candidate->leader; the host is responsible
	// for posting whatever no-op transaction its state-delta model requires.
	// The Server Core only knows when to call it, never what it does.
	noOpCreate func()

	buffer        *LogEntryBuffer
	electionTimer *ElectionTimer
	stateChanged  *broadcaster
	leaderChanged *broadcaster

	mu          sync.Mutex
	mode        Mode
	currentTerm uint64
	votedFor    uint16
	haveVoted   bool
	log         []LogEntry // log[i] is Raft index i+1; index 0 is the sentinel
	commitIndex uint64
	lastApplied uint64

	grantedVotes uint16
	peers        map[uint16]*peerState

	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// NewServer constructs a Server. Call Start to begin operation; Start
// performs recovery, so a freshly constructed Server has no durable state
// loaded yet.
func NewServer(cfg Config, store *PersistentStore, applier Applier, replog ReplicationLog, transport Coordination, resetCallback func(), noOpCreate func(), logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		cfg:           cfg,
		store:         store,
		applier:       applier,
		replog:        replog,
		transport:     transport,
		resetCallback: resetCallback,
		noOpCreate:    noOpCreate,
		logger:        logger,
		stateChanged:  newBroadcaster(),
		leaderChanged: newBroadcaster(),
		peers:         make(map[uint16]*peerState),
		stopCh:        make(chan struct{}),
	}
	s.buffer = NewLogEntryBuffer(s.onBufferCommit)
	for id := uint16(1); id <= cfg.ClusterSize; id++ {
		if id == cfg.ServerID {
			continue
		}
		s.peers[id] = &peerState{}
	}
	return s
}

// Start recovers persistent state, then spawns the election timer, one
// replicator goroutine per peer, the no-op issuer, and the applier loop.
func (s *Server) Start() error {
	if err := s.recover(); err != nil {
		return err
	}
	s.electionTimer = NewElectionTimer(s.cfg.ElectionTimeoutMin, s.cfg.ElectionTimeoutMax, s.onElectionTimeout)
	s.electionTimer.Start()

	for id := range s.peers {
		peerID := id
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.peerLoop(peerID)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.noOpIssuerLoop()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.applierLoop()
	}()

	return nil
}

// Shutdown signals exit to every goroutine and waits for them to finish.
// Calls after the first return immediately.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	if s.electionTimer != nil {
		s.electionTimer.Stop()
	}
	s.stateChanged.broadcast()
	s.leaderChanged.broadcast()
	s.wg.Wait()
}

// recover loads term/vote/log from the persistent store. A fresh install
// (all three slots absent) is not an error; a partially-missing install is.
func (s *Server) recover() error {
	term, err := s.store.LoadTerm()
	if err != nil {
		return fmt.Errorf("raft: recover term: %w", err)
	}
	vote, haveVote, err := s.store.LoadVote()
	if err != nil {
		return fmt.Errorf("raft: recover vote: %w", err)
	}
	entries, err := s.store.LoadLog()
	if err != nil {
		return fmt.Errorf("raft: recover log: %w", err)
	}
	// Every persisted term is >= 1, so term 0 next to a vote or a log means
	// the term slot is missing from an install that is not fresh.
	if term == 0 && (haveVote || len(entries) > 0) {
		return fmt.Errorf("raft: recover term: %w", ErrMissingPersistentData)
	}

	s.mu.Lock()
	s.currentTerm = term
	s.votedFor = vote
	s.haveVoted = haveVote
	s.log = entries
	s.mode = Follower
	s.mu.Unlock()

	metrics.CurrentTerm.Set(float64(term))
	return nil
}

// Emplace routes delta to the log buffer. A TRANSACTION_COMMIT delta makes
// the buffer call AppendToLog synchronously (with the buffer's lock
// released), so the append and its persistence finish before Emplace
// returns.
func (s *Server) Emplace(delta StateDelta) {
	s.buffer.Emplace(delta)
}

// onBufferCommit is the LogEntryBuffer's onCommit callback: a completed
// transaction's full batch, handed back once the buffer lock is released.
func (s *Server) onBufferCommit(txID uint64, batch []StateDelta) {
	if err := s.AppendToLog(txID, batch); err != nil {
		logutil.Warnf(s.logger, "raft: append_to_log for tx %d failed: %v", txID, err)
	}
}

// IsLeader reports whether this server currently believes itself to be the
// cluster leader.
func (s *Server) IsLeader() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode == Leader
}

// Snapshot is a point-in-time, lock-consistent read of the volatile state a
// host typically wants for status reporting. It is not a Raft snapshot (log
// compaction is an explicit Non-goal) — just a convenience accessor.
type Snapshot struct {
	Mode        Mode
	CurrentTerm uint64
	CommitIndex uint64
	LastApplied uint64
	LogLength   uint64
}

// Snapshot returns the current mode/term/commit/apply/log-length under the
// lock.
func (s *Server) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Mode:        s.mode,
		CurrentTerm: s.currentTerm,
		CommitIndex: s.commitIndex,
		LastApplied: s.lastApplied,
		LogLength:   s.logLenLocked(),
	}
}

// SafeToCommit delegates to the replication log: true iff txID's entries are
// known committed.
func (s *Server) SafeToCommit(txID uint64) bool {
	return s.replog.SafeToCommit(txID)
}

// AppendToLog appends one LogEntry{term: currentTerm, deltas: batch} to the
// log, persists it, marks txID as replicating, and wakes the replicators.
// Leader-only; returns ErrNotLeader otherwise, and ErrStopped after Shutdown.
func (s *Server) AppendToLog(txID uint64, batch []StateDelta) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.mode != Leader {
		s.mu.Unlock()
		return ErrNotLeader
	}
	entry := LogEntry{Term: s.currentTerm, Deltas: batch}
	s.log = append(s.log, entry)
	index := uint64(len(s.log))
	if err := s.store.StoreLog(s.log); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("raft: persist log: %w", err)
	}
	s.mu.Unlock()

	s.replog.MarkReplicating(txID, index)
	s.stateChanged.broadcast()
	return nil
}

// logLenLocked returns the current log length (== highest valid index).
// Caller must hold mu.
func (s *Server) logLenLocked() uint64 {
	return uint64(len(s.log))
}

// logTermAtLocked returns the term of the entry at the given 1-based index,
// or 0 for index 0 (the sentinel). Caller must hold mu; index must be
// <= logLenLocked().
func (s *Server) logTermAtLocked(index uint64) uint64 {
	if index == 0 {
		return 0
	}
	return s.log[index-1].Term
}

// lastEntryDataLocked returns (lastIndex, lastTerm) for this server's log.
// Caller must hold mu.
func (s *Server) lastEntryDataLocked() (uint64, uint64) {
	n := s.logLenLocked()
	return n, s.logTermAtLocked(n)
}

// atLeastUpToDate reports whether (lastIndexA, lastTermA) is at least as
// up-to-date as (lastIndexB, lastTermB) per §4.7.
func atLeastUpToDate(lastIndexA, lastTermA, lastIndexB, lastTermB uint64) bool {
	if lastTermA != lastTermB {
		return lastTermA > lastTermB
	}
	return lastIndexA >= lastIndexB
}

// updateTermLocked persists a new, higher current_term and clears the vote.
// Caller must hold mu; caller is responsible for the accompanying
// Transition(Follower).
func (s *Server) updateTermLocked(term uint64) error {
	if term <= s.currentTerm {
		return nil
	}
	s.currentTerm = term
	if err := s.store.StoreTerm(term); err != nil {
		return fmt.Errorf("raft: persist term: %w", err)
	}
	s.votedFor = 0
	s.haveVoted = false
	if err := s.store.ClearVote(); err != nil {
		return fmt.Errorf("raft: persist vote clear: %w", err)
	}
	metrics.CurrentTerm.Set(float64(term))
	return nil
}

// transitionLocked moves the server to mode next, enforcing the allowed
// edges from §4.6. A transition to the current mode is also accepted (the
// RPC handlers demote to Follower even when already Follower) and reruns
// that mode's entry actions. Caller must hold mu.
func (s *Server) transitionLocked(next Mode) error {
	allowed := false
	switch {
	case s.mode == Follower && next == Candidate:
		allowed = true
	case s.mode == Candidate && next == Candidate:
		allowed = true
	case s.mode == Candidate && next == Leader:
		allowed = true
	case s.mode == Candidate && next == Follower:
		allowed = true
	case s.mode == Leader && next == Follower:
		allowed = true
	case s.mode == next:
		allowed = true
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.mode, next)
	}

	prev := s.mode
	s.mode = next

	switch next {
	case Candidate:
		s.currentTerm++
		if err := s.store.StoreTerm(s.currentTerm); err != nil {
			return fmt.Errorf("raft: persist term: %w", err)
		}
		s.votedFor = s.cfg.ServerID
		s.haveVoted = true
		if err := s.store.StoreVote(s.cfg.ServerID); err != nil {
			return fmt.Errorf("raft: persist vote: %w", err)
		}
		s.grantedVotes = 1
		for _, p := range s.peers {
			p.voteRequested = false
		}
		metrics.CurrentTerm.Set(float64(s.currentTerm))
		metrics.ElectionsStarted.Inc()
		if s.electionTimer != nil {
			s.electionTimer.Reset()
		}
	case Leader:
		now := time.Now()
		nextIdx := s.logLenLocked() + 1
		for _, p := range s.peers {
			p.nextIndex = nextIdx
			p.matchIndex = 0
			p.nextHeartbeat = now
			p.backoffUntil = now
		}
		s.buffer.Enable()
		metrics.IsLeader.Set(1)
		metrics.LeaderChanges.Inc()
	case Follower:
		s.buffer.Disable()
		if prev == Leader {
			metrics.IsLeader.Set(0)
			if s.resetCallback != nil {
				s.resetCallback()
			}
		}
		if s.electionTimer != nil {
			s.electionTimer.Reset()
		}
	}

	s.stateChanged.broadcast()
	if next == Leader || (prev == Leader && next == Follower) {
		s.leaderChanged.broadcast()
	}
	return nil
}

// onElectionTimeout is the ElectionTimer's callback, run on the timer's own
// goroutine. It is the only spontaneous requester of a Candidate transition.
func (s *Server) onElectionTimeout() {
	select {
	case <-s.stopCh:
		return
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == Follower || s.mode == Candidate {
		_ = s.transitionLocked(Candidate)
	}
}

// RequestVote serves the RequestVote RPC per §4.5.1.
func (s *Server) RequestVote(ctx context.Context, req RequestVoteReq) (RequestVoteRes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Term < s.currentTerm {
		return RequestVoteRes{Term: s.currentTerm, VoteGranted: false}, nil
	}
	if req.Term > s.currentTerm {
		if err := s.updateTermLocked(req.Term); err != nil {
			return RequestVoteRes{}, err
		}
		if err := s.transitionLocked(Follower); err != nil {
			return RequestVoteRes{}, err
		}
	}

	canVote := !s.haveVoted || s.votedFor == req.CandidateID
	lastIndex, lastTerm := s.lastEntryDataLocked()
	upToDate := atLeastUpToDate(req.LastLogIndex, req.LastLogTerm, lastIndex, lastTerm)

	if canVote && upToDate {
		s.votedFor = req.CandidateID
		s.haveVoted = true
		if err := s.store.StoreVote(req.CandidateID); err != nil {
			return RequestVoteRes{}, fmt.Errorf("raft: persist vote: %w", err)
		}
		if s.electionTimer != nil {
			s.electionTimer.Reset()
		}
		metrics.VotesGranted.Inc()
		return RequestVoteRes{Term: s.currentTerm, VoteGranted: true}, nil
	}
	return RequestVoteRes{Term: s.currentTerm, VoteGranted: false}, nil
}

// AppendEntries serves the AppendEntries RPC per §4.5.2.
func (s *Server) AppendEntries(ctx context.Context, req AppendEntriesReq) (AppendEntriesRes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Term < s.currentTerm {
		return AppendEntriesRes{Term: s.currentTerm, Success: false}, nil
	}
	if req.Term >= s.currentTerm {
		if err := s.updateTermLocked(req.Term); err != nil {
			return AppendEntriesRes{}, err
		}
		if err := s.transitionLocked(Follower); err != nil {
			return AppendEntriesRes{}, err
		}
		if s.electionTimer != nil {
			s.electionTimer.Reset()
		}
	}

	if req.PrevLogIndex > 0 {
		if s.logLenLocked() < req.PrevLogIndex || s.logTermAtLocked(req.PrevLogIndex) != req.PrevLogTerm {
			return AppendEntriesRes{Term: s.currentTerm, Success: false}, nil
		}
	}

	for j, newEntry := range req.Entries {
		k := req.PrevLogIndex + uint64(j) + 1
		switch {
		case s.logLenLocked() >= k && s.logTermAtLocked(k) != newEntry.Term:
			s.log = s.log[:k-1]
			s.log = append(s.log, newEntry)
		case s.logLenLocked() < k:
			s.log = append(s.log, newEntry)
		default:
			// already present with matching term; skip
		}
	}
	if err := s.store.StoreLog(s.log); err != nil {
		return AppendEntriesRes{}, fmt.Errorf("raft: persist log: %w", err)
	}

	if req.LeaderCommit > s.commitIndex {
		n := req.LeaderCommit
		if l := s.logLenLocked(); l < n {
			n = l
		}
		s.commitIndex = n
		metrics.CommitIndex.Set(float64(s.commitIndex))
		s.stateChanged.broadcast()
	}

	return AppendEntriesRes{Term: s.currentTerm, Success: true}, nil
}

// advanceCommitIndexLocked implements §4.6: leader-only advancement of
// commit_index to the highest index of the current term acknowledged by a
// majority. Caller must hold mu.
func (s *Server) advanceCommitIndexLocked() {
	if s.mode != Leader {
		return
	}
	majority := s.cfg.Majority()
	for n := s.logLenLocked(); n > s.commitIndex; n-- {
		if s.logTermAtLocked(n) != s.currentTerm {
			continue
		}
		count := 1 // self
		for _, p := range s.peers {
			if p.matchIndex >= n {
				count++
			}
		}
		if count >= majority {
			s.commitIndex = n
			metrics.CommitIndex.Set(float64(s.commitIndex))
			s.stateChanged.broadcast()
			return
		}
	}
}

// applierLoop is the sole consumer of last_applied: strictly single
// threaded, strictly ascending index order.
func (s *Server) applierLoop() {
	for {
		s.mu.Lock()
		for s.lastApplied >= s.commitIndex {
			if s.stopped {
				s.mu.Unlock()
				return
			}
			ch := s.stateChanged.wait()
			s.mu.Unlock()
			select {
			case <-ch:
			case <-s.stopCh:
				return
			}
			s.mu.Lock()
		}
		index := s.lastApplied + 1
		delta := s.log[index-1].Deltas
		s.mu.Unlock()

		for _, d := range delta {
			if err := s.applier.Apply(context.Background(), d); err != nil {
				logutil.Errorf(s.logger, "raft: apply index %d failed: %v", index, err)
			}
		}

		s.mu.Lock()
		s.lastApplied = index
		metrics.LastApplied.Set(float64(index))
		s.replog.MarkApplied(index)
		s.mu.Unlock()
	}
}

// noOpIssuerLoop implements §4.8: on every leader transition it invokes the
// host-supplied no_op_create callback, which carries the new leader's term
// into a committed entry per Raft §5.4.2. The Server Core stays unaware of
// how that entry is built or what transaction id it uses; that is the
// host's state-delta model, not the consensus core's.
func (s *Server) noOpIssuerLoop() {
	for {
		ch := s.leaderChanged.wait()
		select {
		case <-ch:
		case <-s.stopCh:
			return
		}
		s.mu.Lock()
		isLeader := s.mode == Leader
		s.mu.Unlock()
		if !isLeader || s.noOpCreate == nil {
			continue
		}
		s.noOpCreate()
	}
}

// GarbageCollectReplicationLog forgets replication-log bookkeeping for any
// transaction whose entries have already been applied, bounding the
// replication log's memory to in-flight transactions. It is safe to call
// periodically from the host; the Server Core does not schedule it itself.
func (s *Server) GarbageCollectReplicationLog(txIDs []uint64) {
	for _, id := range txIDs {
		if s.replog.SafeToCommit(id) {
			s.replog.Forget(id)
		}
	}
}
