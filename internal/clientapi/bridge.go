package clientapi

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/btmorr/raftkv/internal/raft"
)

// clientIdBase puts every client-submitted command's correlation id well
// above the handful of real NodeIds in the static cluster, so the
// event loop in cmd/raftd can tell "reply to a client" apart
// from "reply to a peer" by comparing against this cutoff, without the
// two identifier spaces ever needing to be the same type by accident.
const clientIdBase = uint64(1) << 32

// Bridge turns the controller's async Step/Queue interface into the
// synchronous request/response shape a client HTTP API wants. A
// client command becomes a KindNewCommand message pushed onto the
// node's own inbound queue (the same path a ClockTick or peer RPC
// would use), and the Bridge blocks until the matching ack comes back
// out of Step and is handed to Deliver; client acks never enter the
// node's outbound queue.
type Bridge struct {
	inbound *raft.Queue
	counter uint64

	mu      sync.Mutex
	pending map[raft.NodeId]chan raft.Message
}

// NewBridge wires a Bridge to the node's inbound queue. Deliver must be
// called by the node's event loop for every Step output whose
// To falls in the client id space.
func NewBridge(inbound *raft.Queue) *Bridge {
	return &Bridge{
		inbound: inbound,
		pending: make(map[raft.NodeId]chan raft.Message),
	}
}

// IsClientReply reports whether id belongs to the Bridge's correlation
// space rather than a real peer.
func IsClientReply(id raft.NodeId) bool {
	return uint64(id) >= clientIdBase
}

// Submit pushes command onto the controller's inbound queue as a new
// command from a synthetic client id, and waits for the controller's
// ack (success/failure, and the index it was appended at if accepted).
func (b *Bridge) Submit(ctx context.Context, command []byte) (raft.Message, error) {
	reqId := raft.NodeId(clientIdBase + atomic.AddUint64(&b.counter, 1))

	ch := make(chan raft.Message, 1)
	b.mu.Lock()
	b.pending[reqId] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, reqId)
		b.mu.Unlock()
	}()

	b.inbound.Push(raft.Message{Kind: raft.KindNewCommand, From: reqId, Command: command})

	select {
	case reply := <-ch:
		if !reply.Success {
			return reply, raft.ErrNotLeader
		}
		return reply, nil
	case <-ctx.Done():
		return raft.Message{}, fmt.Errorf("clientapi: %w", ctx.Err())
	}
}

// Deliver routes an outbound message addressed to a client correlation
// id to the waiting Submit call, if any is still waiting.
func (b *Bridge) Deliver(msg raft.Message) bool {
	b.mu.Lock()
	ch, ok := b.pending[msg.To]
	b.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- msg:
	default:
	}
	return true
}
