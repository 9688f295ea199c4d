package raft

import (
	"context"
	"strconv"
	"time"

	"github.com/amirimatin/graphraft/pkg/internal/logutil"
	"github.com/amirimatin/graphraft/pkg/observability/metrics"
)

// peerIDLabel renders a peer id as a Prometheus label value.
func peerIDLabel(peerID uint16) string {
	return strconv.FormatUint(uint64(peerID), 10)
}

// peerLoop is the Peer Replicator for one remote peer: a dedicated goroutine
// that inspects server state and sends the appropriate RPC, per §4.4. It
// exits when Shutdown closes s.stopCh.
func (s *Server) peerLoop(peerID uint16) {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		action, wait := s.nextPeerAction(peerID)
		switch action {
		case peerActionExit:
			return
		case peerActionWait:
			if !s.waitOrDeadline(wait) {
				return
			}
		case peerActionAppendEntries:
			s.sendAppendEntries(peerID)
		case peerActionRequestVote:
			s.sendRequestVote(peerID)
		case peerActionIdle:
			if !s.waitStateChanged() {
				return
			}
		}
	}
}

type peerAction int

const (
	peerActionWait peerAction = iota
	peerActionAppendEntries
	peerActionRequestVote
	peerActionIdle
	peerActionExit
)

// nextPeerAction decides, under the lock, what peerLoop should do next for
// peerID. When the action is peerActionWait, wait is the deadline to wait
// until (interruptibly).
func (s *Server) nextPeerAction(peerID uint16) (peerAction, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.peers[peerID]
	if !ok {
		return peerActionExit, time.Time{}
	}

	switch s.mode {
	case Leader:
		now := time.Now()
		if p.backoffUntil.After(now) {
			return peerActionWait, p.backoffUntil
		}
		if s.logLenLocked() >= p.nextIndex {
			return peerActionAppendEntries, time.Time{}
		}
		if !now.Before(p.nextHeartbeat) {
			return peerActionAppendEntries, time.Time{}
		}
		return peerActionWait, p.nextHeartbeat
	case Candidate:
		if !p.voteRequested {
			return peerActionRequestVote, time.Time{}
		}
		return peerActionIdle, time.Time{}
	default: // Follower
		return peerActionIdle, time.Time{}
	}
}

// waitOrDeadline blocks until deadline, a state change, or shutdown,
// whichever comes first. It returns false only on shutdown.
func (s *Server) waitOrDeadline(deadline time.Time) bool {
	ch := s.stateChanged.wait()
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return true
	case <-s.stopCh:
		return false
	}
}

// waitStateChanged blocks until the next state change or shutdown. It
// returns false only on shutdown.
func (s *Server) waitStateChanged() bool {
	ch := s.stateChanged.wait()
	select {
	case <-ch:
		return true
	case <-s.stopCh:
		return false
	}
}

// sendAppendEntries builds and sends one AppendEntries RPC to peerID,
// applying its reply under the lock per §4.4.
func (s *Server) sendAppendEntries(peerID uint16) {
	s.mu.Lock()
	if s.mode != Leader {
		s.mu.Unlock()
		return
	}
	p, ok := s.peers[peerID]
	if !ok {
		s.mu.Unlock()
		return
	}
	prevIndex := p.nextIndex - 1
	prevTerm := s.logTermAtLocked(prevIndex)
	var entries []LogEntry
	if s.logLenLocked() >= p.nextIndex {
		entries = append(entries, s.log[p.nextIndex-1:]...)
	}
	req := AppendEntriesReq{
		Term:         s.currentTerm,
		LeaderID:     s.cfg.ServerID,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: s.commitIndex,
	}
	timeout := s.cfg.RPCTimeout
	backoff := s.cfg.RPCBackoff
	heartbeat := s.cfg.HeartbeatInterval
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	res, err := s.transport.AppendEntries(ctx, peerID, req)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok = s.peers[peerID]
	if !ok || s.mode != Leader {
		return
	}
	if err != nil {
		metrics.RPCFailures.WithLabelValues("append_entries").Inc()
		p.backoffUntil = time.Now().Add(backoff)
		return
	}
	if res.Term > s.currentTerm {
		if uerr := s.updateTermLocked(res.Term); uerr != nil {
			logutil.Errorf(s.logger, "raft: demote on stale term: %v", uerr)
			return
		}
		if terr := s.transitionLocked(Follower); terr != nil {
			logutil.Errorf(s.logger, "raft: demote transition: %v", terr)
		}
		return
	}
	if res.Success {
		p.matchIndex = prevIndex + uint64(len(entries))
		p.nextIndex = p.matchIndex + 1
		p.nextHeartbeat = time.Now().Add(heartbeat)
		s.advanceCommitIndexLocked()
		lag := float64(0)
		if s.commitIndex > p.matchIndex {
			lag = float64(s.commitIndex - p.matchIndex)
		}
		metrics.ReplicationLagPerPeer.WithLabelValues(peerIDLabel(peerID)).Set(lag)
		return
	}
	if p.nextIndex > 1 {
		p.nextIndex--
	}
}

// sendRequestVote sends one RequestVote RPC to peerID, applying its reply
// under the lock per §4.4.
func (s *Server) sendRequestVote(peerID uint16) {
	s.mu.Lock()
	if s.mode != Candidate {
		s.mu.Unlock()
		return
	}
	p, ok := s.peers[peerID]
	if !ok {
		s.mu.Unlock()
		return
	}
	lastIndex, lastTerm := s.lastEntryDataLocked()
	req := RequestVoteReq{
		Term:         s.currentTerm,
		CandidateID:  s.cfg.ServerID,
		LastLogIndex: lastIndex,
		LastLogTerm:  lastTerm,
	}
	requestTerm := s.currentTerm
	timeout := s.cfg.RPCTimeout
	backoff := s.cfg.RPCBackoff
	p.voteRequested = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	res, err := s.transport.RequestVote(ctx, peerID, req)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok = s.peers[peerID]
	if !ok || s.mode != Candidate || s.currentTerm != requestTerm {
		return
	}
	if err != nil {
		metrics.RPCFailures.WithLabelValues("request_vote").Inc()
		p.backoffUntil = time.Now().Add(backoff)
		return
	}
	if res.Term > s.currentTerm {
		if uerr := s.updateTermLocked(res.Term); uerr != nil {
			logutil.Errorf(s.logger, "raft: demote on stale term: %v", uerr)
			return
		}
		if terr := s.transitionLocked(Follower); terr != nil {
			logutil.Errorf(s.logger, "raft: demote transition: %v", terr)
		}
		return
	}
	if res.VoteGranted {
		s.grantedVotes++
		if int(s.grantedVotes) >= s.cfg.Majority() {
			if terr := s.transitionLocked(Leader); terr != nil {
				logutil.Errorf(s.logger, "raft: leader transition: %v", terr)
			}
		}
	}
}
