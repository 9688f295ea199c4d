package raft

import (
	"bytes"
	"fmt"
)

// LogEntry is one record of the replicated log: a term and the ordered
// sequence of deltas appended in that term. The log is 1-indexed; index 0 is
// a reserved sentinel and never stored.
type LogEntry struct {
	Term   uint64
	Deltas []StateDelta
}

func (e LogEntry) encode(buf *bytes.Buffer) {
	writeU64(buf, e.Term)
	writeU64(buf, uint64(len(e.Deltas)))
	for _, d := range e.Deltas {
		d.encode(buf)
	}
}

func decodeLogEntry(r *bytes.Reader) (LogEntry, error) {
	term, err := readU64(r)
	if err != nil {
		return LogEntry{}, fmt.Errorf("%w: term: %v", ErrLogDecode, err)
	}
	count, err := readU64(r)
	if err != nil {
		return LogEntry{}, fmt.Errorf("%w: delta_count: %v", ErrLogDecode, err)
	}
	deltas := make([]StateDelta, 0, count)
	for i := uint64(0); i < count; i++ {
		d, err := decodeStateDelta(r)
		if err != nil {
			return LogEntry{}, err
		}
		deltas = append(deltas, d)
	}
	return LogEntry{Term: term, Deltas: deltas}, nil
}

// EncodeLog serializes a full log (sentinel-excluded, 1-indexed conceptually
// but stored as a plain 0-indexed slice) as
// u64 entry_count ‖ entry_count × LogEntry, per the persistent log layout.
func EncodeLog(log []LogEntry) []byte {
	var buf bytes.Buffer
	writeU64(&buf, uint64(len(log)))
	for _, e := range log {
		e.encode(&buf)
	}
	return buf.Bytes()
}

// DecodeLog deserializes the bytes written by EncodeLog. It returns
// ErrLogDecode wrapped with context on any malformed input, never a partial
// result.
func DecodeLog(data []byte) ([]LogEntry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	r := bytes.NewReader(data)
	count, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("%w: entry_count: %v", ErrLogDecode, err)
	}
	log := make([]LogEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		e, err := decodeLogEntry(r)
		if err != nil {
			return nil, err
		}
		log = append(log, e)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrLogDecode, r.Len())
	}
	return log, nil
}
