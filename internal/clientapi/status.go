package clientapi

import (
	"sync/atomic"

	"github.com/btmorr/raftkv/internal/raft"
)

// Status is a point-in-time snapshot of a node's consensus state, safe
// to read from any goroutine. The controller itself is single-threaded
// (spec §2), so rather than add locking around it, the node's event
// loop stores a fresh Status after every Step call and the HTTP API
// only ever reads the snapshot.
type Status struct {
	Self        raft.NodeId
	Role        raft.Role
	Term        uint64
	CommitIndex uint64
	LastIndex   uint64
}

// StatusHolder is an atomic.Value restricted to Status, so callers
// can't accidentally Store a mismatched type and panic on Load.
type StatusHolder struct {
	v atomic.Value
}

func (h *StatusHolder) Store(s Status) { h.v.Store(s) }

func (h *StatusHolder) Load() Status {
	v := h.v.Load()
	if v == nil {
		return Status{}
	}
	return v.(Status)
}
