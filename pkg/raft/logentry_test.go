package raft

import "testing"

func TestEncodeDecodeLog_RoundTrip(t *testing.T) {
	log := []LogEntry{
		{Term: 1, Deltas: []StateDelta{
			{Kind: TransactionBegin, TxID: 1},
			{Kind: NodeSet, TxID: 1, Key: "n1", Payload: []byte("hello")},
			{Kind: TransactionCommit, TxID: 1},
		}},
		{Term: 2, Deltas: []StateDelta{
			{Kind: NoOp, TxID: 2},
		}},
	}

	encoded := EncodeLog(log)
	decoded, err := DecodeLog(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(log) {
		t.Fatalf("len mismatch: got %d want %d", len(decoded), len(log))
	}
	for i := range log {
		if decoded[i].Term != log[i].Term {
			t.Fatalf("entry %d term: got %d want %d", i, decoded[i].Term, log[i].Term)
		}
		if len(decoded[i].Deltas) != len(log[i].Deltas) {
			t.Fatalf("entry %d delta count: got %d want %d", i, len(decoded[i].Deltas), len(log[i].Deltas))
		}
		for j := range log[i].Deltas {
			got, want := decoded[i].Deltas[j], log[i].Deltas[j]
			if got.Kind != want.Kind || got.TxID != want.TxID || got.Key != want.Key || string(got.Payload) != string(want.Payload) {
				t.Fatalf("entry %d delta %d: got %+v want %+v", i, j, got, want)
			}
		}
	}
}

func TestDecodeLog_Empty(t *testing.T) {
	decoded, err := DecodeLog(nil)
	if err != nil {
		t.Fatalf("decode nil: %v", err)
	}
	if len(decoded) != 0 {
		t.Fatalf("expected empty log, got %v", decoded)
	}
}

func TestDecodeLog_TrailingBytes(t *testing.T) {
	encoded := EncodeLog([]LogEntry{{Term: 1}})
	_, err := DecodeLog(append(encoded, 0xff))
	if err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestDecodeLog_Truncated(t *testing.T) {
	encoded := EncodeLog([]LogEntry{{Term: 1, Deltas: []StateDelta{{Kind: NoOp, TxID: 1}}}})
	_, err := DecodeLog(encoded[:len(encoded)-2])
	if err == nil {
		t.Fatalf("expected error on truncated input")
	}
}
