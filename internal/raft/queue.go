package raft

// Queue is a thread-safe multi-producer/single-consumer hand-off between
// I/O goroutines and the single controller goroutine (spec §5). Many
// goroutines may Push; each queue has one consumer (the controller's run
// loop for the inbound queue, cmd/raftd's routing loop for the outbound
// one).
// It is backed by a buffered channel rather than a hand-rolled
// mutex+slice: channels are Go's native thread-safe queue and every
// corpus example that hands work between goroutines (clock tick
// producers, gRPC stream readers) uses one, so there is no library gap
// to fill here.
type Queue struct {
	ch chan Message
}

// NewQueue creates a Queue with the given buffer capacity. A capacity of
// 0 makes Push block until a consumer is ready, which is fine for tests
// but undersized for a live node; cmd/raftd sizes it generously so a
// burst of peer traffic or ticks never blocks an I/O goroutine for long
// (spec §5 "Back-pressure" allows bounding and dropping, but dropping is
// only safe for the outbound queue's heartbeats, not inbound messages).
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan Message, capacity)}
}

// Push enqueues a message. It blocks if the queue is full.
func (q *Queue) Push(m Message) {
	q.ch <- m
}

// TryPush enqueues a message without blocking, reporting whether it was
// accepted. Used by the outbound path for heartbeats: when the queue is
// full the new heartbeat is dropped and the queued messages are kept,
// since the next tick will simply heartbeat again.
func (q *Queue) TryPush(m Message) bool {
	select {
	case q.ch <- m:
		return true
	default:
		return false
	}
}

// Pop blocks until a message is available and returns it.
func (q *Queue) Pop() Message {
	return <-q.ch
}

// Chan exposes the underlying channel for use in a select statement
// (e.g. alongside a shutdown signal).
func (q *Queue) Chan() <-chan Message {
	return q.ch
}
