package raft

import (
	"encoding/binary"
	"fmt"

	"github.com/amirimatin/graphraft/pkg/raft/kvstore"
)

const (
	keyCurrentTerm = "current_term"
	keyVotedFor    = "voted_for"
	keyRaftLog     = "raft_log"
)

// PersistentStore is the Persistent Store Adapter: durable read/write of
// term, vote, and log against a backing kvstore.Store. Every store call
// returns only once the write is durable.
type PersistentStore struct {
	kv kvstore.Store
}

// NewPersistentStore wraps kv as a PersistentStore.
func NewPersistentStore(kv kvstore.Store) *PersistentStore {
	return &PersistentStore{kv: kv}
}

// LoadTerm returns 0 on a fresh install (key absent), or
// ErrMissingPersistentData if the key is present-but-unreadable.
func (s *PersistentStore) LoadTerm() (uint64, error) {
	v, ok, err := s.kv.Get([]byte(keyCurrentTerm))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("%w: current_term: want 8 bytes, got %d", ErrMissingPersistentData, len(v))
	}
	return binary.LittleEndian.Uint64(v), nil
}

// StoreTerm durably persists the current term.
func (s *PersistentStore) StoreTerm(term uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], term)
	return s.kv.Put([]byte(keyCurrentTerm), buf[:])
}

// LoadVote returns the peer id voted for in the current term, or
// ok=false if no vote is on record (fresh install or after ClearVote).
func (s *PersistentStore) LoadVote() (peerID uint16, ok bool, err error) {
	v, present, err := s.kv.Get([]byte(keyVotedFor))
	if err != nil {
		return 0, false, err
	}
	if !present {
		return 0, false, nil
	}
	if len(v) != 10 {
		return 0, false, fmt.Errorf("%w: voted_for: want 10 bytes, got %d", ErrMissingPersistentData, len(v))
	}
	flag := binary.LittleEndian.Uint64(v[0:8])
	if flag == 0 {
		return 0, false, nil
	}
	return binary.LittleEndian.Uint16(v[8:10]), true, nil
}

// StoreVote durably persists the candidate this server voted for.
func (s *PersistentStore) StoreVote(peerID uint16) error {
	var buf [10]byte
	binary.LittleEndian.PutUint64(buf[0:8], 1)
	binary.LittleEndian.PutUint16(buf[8:10], peerID)
	return s.kv.Put([]byte(keyVotedFor), buf[:])
}

// ClearVote durably records that no vote has been cast.
func (s *PersistentStore) ClearVote() error {
	var buf [10]byte
	binary.LittleEndian.PutUint64(buf[0:8], 0)
	return s.kv.Put([]byte(keyVotedFor), buf[:])
}

// LoadLog returns an empty slice when no log has ever been stored.
func (s *PersistentStore) LoadLog() ([]LogEntry, error) {
	v, ok, err := s.kv.Get([]byte(keyRaftLog))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return DecodeLog(v)
}

// StoreLog durably persists the full log, overwriting any prior value.
func (s *PersistentStore) StoreLog(log []LogEntry) error {
	return s.kv.Put([]byte(keyRaftLog), EncodeLog(log))
}
