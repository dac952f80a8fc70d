package raft

import (
	"testing"
)

func newTestController(self NodeId, peers []NodeId) *Controller {
	return NewController(Config{Self: self, Peers: peers}, NopPersister{}, nopApplier{})
}

type nopApplier struct{}

func (nopApplier) Apply(uint64, LogEntry) {}

// --- §8 scenario 1: single-leader replication ---

func TestScenarioSingleLeaderReplication(t *testing.T) {
	c := newTestController(1, []NodeId{2, 3, 4, 5})
	c.role = Leader

	out := c.Step(Message{Kind: KindNewCommand, Command: []byte("set x 1")})

	assertLog(t, c.log, entries(0, "", 0, "set x 1"))

	var broadcasts int
	for _, m := range out {
		if m.Kind != KindAppendEntriesRequest {
			continue
		}
		broadcasts++
		if m.PrevLogIdx != 0 || m.PrevLogTerm != 0 || m.Term != 0 {
			t.Fatalf("unexpected anchor/term on broadcast: %+v", m)
		}
		if len(m.Entries) != 1 || string(m.Entries[0].Command) != "set x 1" {
			t.Fatalf("unexpected entries on broadcast: %+v", m)
		}
	}
	if broadcasts != len(c.cfg.Peers) {
		t.Fatalf("expected one AppendEntriesRequest per peer, got %d", broadcasts)
	}
}

func TestNewCommandRejectedWhenNotLeader(t *testing.T) {
	c := newTestController(1, []NodeId{2, 3, 4, 5})
	out := c.Step(Message{Kind: KindNewCommand, From: 99, Command: []byte("set x 1")})
	if len(out) != 1 || out[0].Kind != KindNewCommand || out[0].Success {
		t.Fatalf("expected a single not-leader ack, got %+v", out)
	}
	if out[0].To != 99 {
		t.Fatalf("ack should be addressed back to the submitter")
	}
	assertLog(t, c.log, entries(0, ""))
}

// --- §8 scenario 2: idempotent follower append ---

func TestScenarioIdempotentFollowerAppend(t *testing.T) {
	c := newTestController(1, []NodeId{2, 3, 4, 5})
	req := Message{
		Kind:        KindAppendEntriesRequest,
		From:        2,
		Term:        0,
		PrevLogIdx:  0,
		PrevLogTerm: 0,
		Entries:     entries(0, "set x 1"),
	}

	for i := 0; i < 2; i++ {
		out := c.Step(req)
		if len(out) != 1 || out[0].Kind != KindAppendEntriesResponse {
			t.Fatalf("round %d: expected one response, got %+v", i, out)
		}
		resp := out[0]
		if !resp.Success || resp.LastAppliedIndex != 1 {
			t.Fatalf("round %d: unexpected response %+v", i, resp)
		}
	}
	assertLog(t, c.log, entries(0, "", 0, "set x 1"))
}

// --- §8 scenario 3: conflict truncation ---

func TestScenarioConflictTruncation(t *testing.T) {
	c := newTestController(1, []NodeId{2, 3, 4, 5})
	c.log = &Log{entries: entries(0, "", 0, "set x 1", 0, "set y 2")}

	out := c.Step(Message{
		Kind:        KindAppendEntriesRequest,
		From:        2,
		Term:        0,
		PrevLogIdx:  0,
		PrevLogTerm: 0,
		Entries:     entries(0, "set x 3"),
	})
	if len(out) != 1 {
		t.Fatalf("expected one response, got %+v", out)
	}
	resp := out[0]
	if !resp.Success || resp.LastAppliedIndex != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	assertLog(t, c.log, entries(0, "", 0, "set x 3"))
}

// --- §8 scenario 5: commit advance on majority ---

func TestScenarioCommitAdvanceOnMajority(t *testing.T) {
	c := newTestController(1, []NodeId{2, 3, 4, 5})
	c.role = Leader
	c.log = &Log{entries: entries(0, "", 0, "a", 0, "b", 0, "c")}

	c.Step(Message{Kind: KindAppendEntriesResponse, NodeId: 2, Term: 0, Success: true, LastAppliedIndex: 2})
	c.Step(Message{Kind: KindAppendEntriesResponse, NodeId: 3, Term: 0, Success: true, LastAppliedIndex: 2})
	if c.commitIndex != 2 {
		t.Fatalf("commit_index = %d, want 2", c.commitIndex)
	}

	c.Step(Message{Kind: KindAppendEntriesResponse, NodeId: 4, Term: 0, Success: true, LastAppliedIndex: 3})
	c.Step(Message{Kind: KindAppendEntriesResponse, NodeId: 5, Term: 0, Success: true, LastAppliedIndex: 3})
	if c.commitIndex != 3 {
		t.Fatalf("commit_index = %d, want 3", c.commitIndex)
	}
}

// --- §8 scenario 6: higher-term step-down ---

func TestScenarioHigherTermStepDown(t *testing.T) {
	c := newTestController(1, []NodeId{2, 3, 4, 5})
	c.role = Leader
	c.currentTerm = 1
	self := NodeId(1)
	c.votedFor = &self

	c.Step(Message{Kind: KindAppendEntriesResponse, NodeId: 2, Term: 2, Success: false, LastAppliedIndex: 0})

	if c.role != Follower {
		t.Fatalf("role = %v, want Follower", c.role)
	}
	if c.currentTerm != 2 {
		t.Fatalf("term = %d, want 2", c.currentTerm)
	}
	if c.votedFor != nil {
		t.Fatalf("voted_for should be cleared on term bump")
	}
}

// --- election / voting ---

func TestRequestVoteGrantedOnUpToDateLog(t *testing.T) {
	c := newTestController(1, []NodeId{2, 3, 4, 5})
	out := c.Step(Message{
		Kind:         KindRequestVoteRequest,
		From:         2,
		Term:         1,
		CandidateId:  2,
		LastLogIndex: 0,
		LastLogTerm:  0,
	})
	if len(out) != 1 || !out[0].VoteGranted {
		t.Fatalf("expected vote granted, got %+v", out)
	}
	if c.votedFor == nil || *c.votedFor != 2 {
		t.Fatalf("voted_for should record the candidate")
	}
}

func TestRequestVoteDeniedWhenAlreadyVoted(t *testing.T) {
	c := newTestController(1, []NodeId{2, 3, 4, 5})
	c.Step(Message{Kind: KindRequestVoteRequest, From: 2, Term: 1, CandidateId: 2})

	out := c.Step(Message{Kind: KindRequestVoteRequest, From: 3, Term: 1, CandidateId: 3})
	if len(out) != 1 || out[0].VoteGranted {
		t.Fatalf("a second candidate in the same term must be denied, got %+v", out)
	}
}

func TestCandidateBecomesLeaderOnMajority(t *testing.T) {
	c := newTestController(1, []NodeId{2, 3, 4, 5})
	c.role = Candidate
	c.currentTerm = 1
	self := NodeId(1)
	c.votedFor = &self
	granted := true
	c.votes[1] = &granted

	c.Step(Message{Kind: KindRequestVoteResponse, NodeId: 2, Term: 1, VoteGranted: true})
	if c.role != Candidate {
		t.Fatalf("one more vote should not yet be a majority of 5")
	}
	out := c.Step(Message{Kind: KindRequestVoteResponse, NodeId: 3, Term: 1, VoteGranted: true})
	if c.role != Leader {
		t.Fatalf("role = %v, want Leader after 3/5 votes", c.role)
	}
	if len(out) != len(c.cfg.Peers) {
		t.Fatalf("expected one heartbeat per peer on election, got %d", len(out))
	}
	for _, m := range out {
		if m.Kind != KindAppendEntriesRequest || len(m.Entries) != 0 {
			t.Fatalf("election heartbeat must be an empty AppendEntriesRequest, got %+v", m)
		}
	}
}

// --- clock / election timeout ---

func TestClockTickLeaderEmitsHeartbeatWithoutDecrementingDeadline(t *testing.T) {
	c := newTestController(1, []NodeId{2, 3, 4, 5})
	c.role = Leader
	before := c.electionDeadlineMs

	out := c.Step(Message{Kind: KindClockTick, ElapsedMs: 10_000})

	if c.electionDeadlineMs != before {
		t.Fatalf("leader's election deadline must not move on tick")
	}
	if len(out) != len(c.cfg.Peers) {
		t.Fatalf("expected one heartbeat per peer, got %d", len(out))
	}
}

func TestClockTickFollowerTimesOutAndBecomesCandidate(t *testing.T) {
	c := newTestController(1, []NodeId{2, 3, 4, 5})
	c.electionDeadlineMs = 5

	out := c.Step(Message{Kind: KindClockTick, ElapsedMs: 10})

	if c.role != Candidate {
		t.Fatalf("role = %v, want Candidate after timeout", c.role)
	}
	if c.currentTerm != 1 {
		t.Fatalf("term = %d, want 1 after a fresh election", c.currentTerm)
	}
	if c.votedFor == nil || *c.votedFor != 1 {
		t.Fatalf("candidate must vote for itself")
	}
	for _, m := range out {
		if m.Kind != KindRequestVoteRequest {
			t.Fatalf("expected RequestVoteRequest broadcast, got %+v", m)
		}
	}
}

// --- invariants (property-style, across a short random-ish sequence) ---

func TestInvariantTermNonDecreasing(t *testing.T) {
	c := newTestController(1, []NodeId{2, 3, 4, 5})
	terms := []uint64{0, 1, 0, 3, 2, 5}
	last := c.currentTerm
	for _, term := range terms {
		c.Step(Message{Kind: KindAppendEntriesRequest, From: 2, Term: term, PrevLogIdx: c.log.LastIndex(), PrevLogTerm: c.log.LastTerm()})
		if c.currentTerm < last {
			t.Fatalf("current_term decreased: %d -> %d", last, c.currentTerm)
		}
		last = c.currentTerm
	}
}

func TestInvariantSentinelNeverRemoved(t *testing.T) {
	c := newTestController(1, []NodeId{2, 3, 4, 5})
	c.Step(Message{Kind: KindAppendEntriesRequest, From: 2, Term: 0, PrevLogIdx: 0, PrevLogTerm: 0, Entries: entries(0, "a")})
	c.Step(Message{Kind: KindAppendEntriesRequest, From: 2, Term: 0, PrevLogIdx: 0, PrevLogTerm: 0, Entries: entries(1, "b")})
	sentinel := c.log.At(0)
	if sentinel.Term != 0 || len(sentinel.Command) != 0 {
		t.Fatalf("sentinel mutated: %+v", sentinel)
	}
}
