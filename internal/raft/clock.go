package raft

import (
	"context"
	"time"
)

// TickInterval is the cadence at which the clock driver injects
// ClockTick messages. It must be well under the minimum election
// timeout (spec §4.11: "strictly less than the minimum election
// timeout") so a leader's heartbeats and a follower's deadline
// decrements both get fine-grained enough samples.
const TickInterval = 25 * time.Millisecond

// RunClock pushes a ClockTick message carrying the elapsed wall-clock
// time onto inbound on every tick, until ctx is cancelled. It is meant
// to run in its own goroutine; the controller treats ticks as just
// another inbound message (spec §2, §4.9).
func RunClock(ctx context.Context, inbound *Queue, self NodeId) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			inbound.Push(Message{
				Kind:      KindClockTick,
				From:      self,
				ElapsedMs: float64(elapsed) / float64(time.Millisecond),
			})
		}
	}
}
