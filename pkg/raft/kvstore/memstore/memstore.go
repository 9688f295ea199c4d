// Package memstore is an in-memory kvstore.Store used by unit tests and
// ephemeral single-process demos. It is never durable across process
// restarts and must not back a production durability_dir.
package memstore

import (
	"sync"

	"github.com/amirimatin/graphraft/pkg/raft/kvstore"
)

type store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New returns an empty in-memory Store.
func New() kvstore.Store {
	return &store{data: make(map[string][]byte)}
}

func (s *store) Get(key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *store) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[string(key)] = cp
	return nil
}

func (s *store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, string(key))
	return nil
}

func (s *store) Close() error { return nil }
