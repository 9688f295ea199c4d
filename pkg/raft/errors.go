package raft

import "errors"

var (
	// ErrMissingPersistentData is raised when a required persistent key is
	// absent mid-operation. Fatal during Recover; should be impossible after.
	ErrMissingPersistentData = errors.New("raft: missing persistent data")

	// ErrInvalidTransition is raised when a disallowed mode edge is
	// requested. Always a programming error.
	ErrInvalidTransition = errors.New("raft: invalid mode transition")

	// ErrLogDecode is raised when the persisted log is malformed on startup.
	ErrLogDecode = errors.New("raft: log decode error")

	// ErrNotLeader is returned by leader-only operations invoked on a
	// non-leader server.
	ErrNotLeader = errors.New("raft: not leader")

	// ErrStopped is returned by operations invoked after Shutdown.
	ErrStopped = errors.New("raft: server stopped")
)
