package raft

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Kind discriminates a StateDelta. Only the three control kinds are ever
// inspected by the Raft core; every other kind is opaque graph-mutation
// payload that Raft carries but never interprets.
type Kind uint8

const (
	TransactionBegin Kind = iota
	TransactionCommit
	TransactionAbort
	NoOp
	NodeSet
	NodeDelete
	EdgeSet
	EdgeDelete
)

func (k Kind) String() string {
	switch k {
	case TransactionBegin:
		return "TRANSACTION_BEGIN"
	case TransactionCommit:
		return "TRANSACTION_COMMIT"
	case TransactionAbort:
		return "TRANSACTION_ABORT"
	case NoOp:
		return "NO_OP"
	case NodeSet:
		return "NODE_SET"
	case NodeDelete:
		return "NODE_DELETE"
	case EdgeSet:
		return "EDGE_SET"
	case EdgeDelete:
		return "EDGE_DELETE"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// StateDelta is a single opaque unit of state-machine change, tagged with a
// Kind. Raft never dispatches on anything but Kind; Key/Payload are carried
// verbatim for the state-delta applier to interpret.
type StateDelta struct {
	Kind    Kind
	TxID    uint64
	Key     string
	Payload []byte
}

// encode appends the deterministic, length-prefixed wire form of d to buf.
func (d StateDelta) encode(buf *bytes.Buffer) {
	buf.WriteByte(byte(d.Kind))
	writeU64(buf, d.TxID)
	writeString(buf, d.Key)
	writeBytes(buf, d.Payload)
}

// decodeStateDelta reads one StateDelta from r, returning ErrLogDecode on any
// malformed input.
func decodeStateDelta(r *bytes.Reader) (StateDelta, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return StateDelta{}, fmt.Errorf("%w: kind: %v", ErrLogDecode, err)
	}
	txID, err := readU64(r)
	if err != nil {
		return StateDelta{}, fmt.Errorf("%w: tx_id: %v", ErrLogDecode, err)
	}
	key, err := readString(r)
	if err != nil {
		return StateDelta{}, fmt.Errorf("%w: key: %v", ErrLogDecode, err)
	}
	payload, err := readBytes(r)
	if err != nil {
		return StateDelta{}, fmt.Errorf("%w: payload: %v", ErrLogDecode, err)
	}
	return StateDelta{Kind: Kind(kindByte), TxID: txID, Key: key, Payload: payload}, nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func readU64(r *bytes.Reader) (uint64, error) {
	var tmp [8]byte
	if _, err := readFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(tmp[:]), nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeU64(buf, uint64(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readU64(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	if _, err := readFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func readFull(r *bytes.Reader, out []byte) (int, error) {
	n := 0
	for n < len(out) {
		m, err := r.Read(out[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
