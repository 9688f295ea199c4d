package static

import "testing"

func TestParse(t *testing.T) {
    cases := []struct{
        in   string
        want []string
    }{
        {"", nil},
        {"a:1", []string{"a:1"}},
        {" a:1 , b:2 ", []string{"a:1","b:2"}},
        {",,a:1, ,b:2,", []string{"a:1","b:2"}},
    }
    for _, c := range cases {
        got := Parse(c.in)
        if len(got) != len(c.want) {
            t.Fatalf("len mismatch for %q: got %d want %d", c.in, len(got), len(c.want))
        }
        for i := range got {
            if got[i] != c.want[i] {
                t.Fatalf("[%q] item %d: got %q want %q", c.in, i, got[i], c.want[i])
            }
        }
    }
}

func TestParsePeers(t *testing.T) {
	book, err := ParsePeers(" 1=host1:9001, 2=host2:9002 ,,")
	if err != nil {
		t.Fatalf("ParsePeers: %v", err)
	}
	if addr, ok := book.Addr(1); !ok || addr != "host1:9001" {
		t.Fatalf("peer 1: got %q ok=%v", addr, ok)
	}
	if addr, ok := book.Addr(2); !ok || addr != "host2:9002" {
		t.Fatalf("peer 2: got %q ok=%v", addr, ok)
	}
	if _, ok := book.Addr(3); ok {
		t.Fatalf("unregistered peer 3 must not resolve")
	}
}

func TestParsePeers_Malformed(t *testing.T) {
	if _, err := ParsePeers("not-a-valid-entry"); err == nil {
		t.Fatalf("expected error for entry missing '='")
	}
	if _, err := ParsePeers("abc=host:1"); err == nil {
		t.Fatalf("expected error for non-numeric peer id")
	}
}

func TestNew(t *testing.T) {
    d := New(" a:1 ", "", "b:2")
    got := d.Seeds()
    if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
        t.Fatalf("unexpected seeds: %#v", got)
    }
    // Ensure returned slice is a copy
    got[0] = "x"
    got2 := d.Seeds()
    if got2[0] != "a:1" {
        t.Fatalf("expected defensive copy, got %#v", got2)
    }
}

