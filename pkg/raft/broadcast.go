package raft

import "sync"

// broadcaster is a channel-based stand-in for a condition variable that
// supports a timed, interruptible wait — something sync.Cond cannot express
// without an extra goroutine per waiter. wait() returns a channel that
// closes on the next broadcast() call; callers select on it alongside a
// timer or a stop signal.
type broadcaster struct {
	mu sync.Mutex
	ch chan struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{ch: make(chan struct{})}
}

func (b *broadcaster) wait() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ch
}

func (b *broadcaster) broadcast() {
	b.mu.Lock()
	defer b.mu.Unlock()
	close(b.ch)
	b.ch = make(chan struct{})
}
