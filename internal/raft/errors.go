package raft

import "errors"

// Error kinds recognized by the core (spec.md §7). The controller itself
// never returns these — every outcome is representable as a Message
// field (Success, Term) or the absence of an expected response, which
// the election timer and periodic heartbeats handle on their own. They
// exist as sentinels for callers one layer up (internal/clientapi, in
// particular) that need to tell these outcomes apart in Go's idiomatic
// error-returning style instead of inspecting Message fields by hand.
var (
	// ErrLogMismatch corresponds to a rejected AppendEntries consistency
	// check: the anchor (prev_idx, prev_term) didn't line up with the
	// receiver's log.
	ErrLogMismatch = errors.New("raft: append entries anchor mismatch")

	// ErrStaleTerm corresponds to a message arriving with term <
	// current_term.
	ErrStaleTerm = errors.New("raft: stale term")

	// ErrStaleLeader corresponds to a leader observing a higher term in
	// a response and stepping down.
	ErrStaleLeader = errors.New("raft: stale leader, stepped down")

	// ErrNotLeader corresponds to a NewCommand submitted to a node that
	// is not the current leader.
	ErrNotLeader = errors.New("raft: not the leader")
)
