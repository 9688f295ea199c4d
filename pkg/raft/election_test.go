package raft

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestElectionTimer_FiresOnce(t *testing.T) {
	var fired int32
	timer := NewElectionTimer(20*time.Millisecond, 30*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})
	timer.Start()
	defer timer.Stop()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&fired) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if atomic.LoadInt32(&fired) == 0 {
		t.Fatalf("election timer never fired")
	}
}

func TestElectionTimer_ResetDelaysTimeout(t *testing.T) {
	var fired int32
	timer := NewElectionTimer(50*time.Millisecond, 60*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})
	timer.Start()
	defer timer.Stop()

	// Keep resetting for longer than the base deadline; it must not fire.
	resetUntil := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(resetUntil) {
		timer.Reset()
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatalf("timer fired despite continuous resets")
	}
}

func TestElectionTimer_StopIsIdempotent(t *testing.T) {
	timer := NewElectionTimer(10*time.Millisecond, 20*time.Millisecond, func() {})
	timer.Start()
	timer.Stop()
	timer.Stop()
}
