package raft

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Applier is the "on-disk key-value applier that consumes committed
// commands" spec.md §1 names but leaves undesigned. The controller calls
// Apply once, in order, for every log entry whose index becomes <=
// commit_index. Implementations (internal/store) must not block for long:
// this call happens on the controller's single goroutine.
type Applier interface {
	Apply(index uint64, entry LogEntry)
}

// Config is the static, closed cluster membership a Controller is built
// with (spec §3 "Node identity", §6 "Cluster configuration"). Peers must
// not include Self. The reference cluster is five nodes, but nothing
// here hardcodes that: Majority is computed from len(Peers)+1.
type Config struct {
	Self  NodeId
	Peers []NodeId
}

func (c Config) clusterSize() int {
	return len(c.Peers) + 1
}

func (c Config) majority() int {
	return Majority(c.clusterSize())
}

// Controller is the per-node consensus state machine (spec §2, §4). All
// mutation happens inside Step, called from a single goroutine draining
// one inbound Queue; Step never suspends, and apart from the synchronous
// Persister write-through and Applier calls it makes, it is pure
// computation plus a slice of outbound messages to enqueue (spec §5).
type Controller struct {
	cfg Config

	role        Role
	currentTerm uint64
	votedFor    *NodeId
	log         *Log
	commitIndex uint64
	applied     uint64

	electionDeadlineMs float64

	matchIndex map[NodeId]uint64
	votes      map[NodeId]*bool

	persist Persister
	applier Applier
	rng     *rand.Rand
}

// NewController builds a fresh Controller, restoring term/vote/log from
// persist if a prior run left a record (spec §9's required persistence),
// otherwise starting as a brand-new Follower (spec §3 "Lifecycle").
func NewController(cfg Config, persist Persister, applier Applier) *Controller {
	c := &Controller{
		cfg:        cfg,
		role:       Follower,
		log:        NewLog(),
		persist:    persist,
		applier:    applier,
		matchIndex: make(map[NodeId]uint64),
		votes:      make(map[NodeId]*bool),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano() + int64(cfg.Self))),
	}
	if term, votedFor, entries, ok, err := persist.LoadState(); err != nil {
		log.Error().Err(err).Uint64("node_id", uint64(cfg.Self)).Msg("failed to load persisted raft state, starting fresh")
	} else if ok {
		c.currentTerm = term
		c.votedFor = votedFor
		if len(entries) > 0 {
			c.log = &Log{entries: entries}
		}
	}
	c.resetElectionDeadline()
	return c
}

// State accessors used by the client API and operator console.

func (c *Controller) Role() Role          { return c.role }
func (c *Controller) Term() uint64        { return c.currentTerm }
func (c *Controller) CommitIndex() uint64 { return c.commitIndex }
func (c *Controller) LastIndex() uint64   { return c.log.LastIndex() }
func (c *Controller) Self() NodeId        { return c.cfg.Self }

func (c *Controller) resetElectionDeadline() {
	c.electionDeadlineMs = 500 + c.rng.Float64()*1000
}

func (c *Controller) persistState() {
	if err := c.persist.SaveState(c.currentTerm, c.votedFor, c.log.Entries()); err != nil {
		log.Error().Err(err).Uint64("node_id", uint64(c.cfg.Self)).Msg("failed to persist raft state")
	}
}

// applyCommitted invokes the Applier for every entry between the last
// applied index and the current commit index, in order (spec §4.4, §4.5
// both advance commit_index; this is the shared catch-up step).
func (c *Controller) applyCommitted() {
	for c.applied < c.commitIndex {
		c.applied++
		c.applier.Apply(c.applied, c.log.At(c.applied))
	}
}

// broadcast returns one outbound copy of m addressed to every peer.
func (c *Controller) broadcast(m Message) []Message {
	out := make([]Message, 0, len(c.cfg.Peers))
	for _, p := range c.cfg.Peers {
		msg := m
		msg.From = c.cfg.Self
		msg.To = p
		out = append(out, msg)
	}
	return out
}

func (c *Controller) unicast(to NodeId, m Message) Message {
	m.From = c.cfg.Self
	m.To = to
	return m
}

// stepDownIfHigherTerm implements the common rule of spec §4.3: any
// message carrying a higher term than currentTerm bumps currentTerm,
// clears the vote, forces Follower, and resets the election deadline.
// It returns whether the bump happened.
func (c *Controller) stepDownIfHigherTerm(term uint64) bool {
	if term <= c.currentTerm {
		return false
	}
	c.currentTerm = term
	c.votedFor = nil
	c.role = Follower
	c.resetElectionDeadline()
	c.persistState()
	return true
}

// Step consumes one inbound message, mutates controller state, and
// returns the outbound messages it produced (spec §2, §4). It is the
// entire message-processing surface of the core.
func (c *Controller) Step(msg Message) []Message {
	switch msg.Kind {
	case KindAppendEntriesRequest:
		return c.handleAppendEntriesRequest(msg)
	case KindAppendEntriesResponse:
		return c.handleAppendEntriesResponse(msg)
	case KindRequestVoteRequest:
		return c.handleRequestVoteRequest(msg)
	case KindRequestVoteResponse:
		return c.handleRequestVoteResponse(msg)
	case KindNewCommand:
		return c.handleNewCommand(msg)
	case KindClockTick:
		return c.handleClockTick(msg)
	default:
		return nil
	}
}

// handleAppendEntriesRequest is the follower-side rule set of spec §4.4.
func (c *Controller) handleAppendEntriesRequest(msg Message) []Message {
	staleAtArrival := msg.Term < c.currentTerm
	c.stepDownIfHigherTerm(msg.Term)

	if c.role == Candidate && msg.Term == c.currentTerm {
		// A same-term leader is legitimate contact: a Candidate concedes
		// the election without otherwise touching term or vote (spec §4.10).
		c.role = Follower
	}

	if staleAtArrival {
		return []Message{c.unicast(msg.From, Message{
			Kind:    KindAppendEntriesResponse,
			Term:    c.currentTerm,
			Success: false,
			NodeId:  c.cfg.Self,
		})}
	}

	c.resetElectionDeadline()

	success := c.log.Append(msg.PrevLogIdx, msg.PrevLogTerm, msg.Entries)
	if success {
		c.persistState()
		if msg.LeaderCommit < c.log.LastIndex() {
			c.commitIndex = msg.LeaderCommit
		} else {
			c.commitIndex = c.log.LastIndex()
		}
		c.applyCommitted()
	}

	log.Debug().
		Uint64("node_id", uint64(c.cfg.Self)).
		Uint64("term", c.currentTerm).
		Bool("success", success).
		Int("entries", len(msg.Entries)).
		Msg("handled append entries request")

	return []Message{c.unicast(msg.From, Message{
		Kind:             KindAppendEntriesResponse,
		Term:             c.currentTerm,
		Success:          success,
		LastAppliedIndex: c.log.LastIndex(),
		NodeId:           c.cfg.Self,
	})}
}

// handleAppendEntriesResponse is the leader-side rule set of spec §4.5.
func (c *Controller) handleAppendEntriesResponse(msg Message) []Message {
	if c.role != Leader {
		return nil
	}
	if c.stepDownIfHigherTerm(msg.Term) {
		return nil
	}
	if msg.Term < c.currentTerm {
		return nil
	}

	c.matchIndex[msg.NodeId] = msg.LastAppliedIndex

	var out []Message
	if msg.Success {
		if msg.LastAppliedIndex < c.log.LastIndex() {
			prevIdx := msg.LastAppliedIndex
			out = append(out, c.unicast(msg.NodeId, Message{
				Kind:         KindAppendEntriesRequest,
				Term:         c.currentTerm,
				PrevLogIdx:   prevIdx,
				PrevLogTerm:  c.log.At(prevIdx).Term,
				Entries:      append([]LogEntry(nil), c.log.Entries()[prevIdx+1:]...),
				LeaderCommit: c.commitIndex,
			}))
		}
	} else if msg.LastAppliedIndex < c.log.LastIndex() {
		var prevIdx uint64
		if msg.LastAppliedIndex > 0 {
			prevIdx = msg.LastAppliedIndex - 1
		}
		out = append(out, c.unicast(msg.NodeId, Message{
			Kind:         KindAppendEntriesRequest,
			Term:         c.currentTerm,
			PrevLogIdx:   prevIdx,
			PrevLogTerm:  c.log.At(prevIdx).Term,
			Entries:      append([]LogEntry(nil), c.log.Entries()[prevIdx+1:]...),
			LeaderCommit: c.commitIndex,
		}))
	}

	c.advanceCommitIndex()
	return out
}

// advanceCommitIndex implements spec §4.5's Figure-8-safe commit rule:
// the largest N replicated on a majority (leader included) whose entry
// belongs to the current term.
func (c *Controller) advanceCommitIndex() {
	last := c.log.LastIndex()
	for n := last; n > c.commitIndex; n-- {
		if c.log.At(n).Term != c.currentTerm {
			continue
		}
		count := 1 // the leader itself
		for _, idx := range c.matchIndex {
			if idx >= n {
				count++
			}
		}
		if count >= c.cfg.majority() {
			c.commitIndex = n
			break
		}
	}
	c.applyCommitted()
}

// handleRequestVoteRequest is spec §4.6.
func (c *Controller) handleRequestVoteRequest(msg Message) []Message {
	c.stepDownIfHigherTerm(msg.Term)

	grant := msg.Term >= c.currentTerm &&
		(c.votedFor == nil || *c.votedFor == msg.CandidateId) &&
		c.candidateLogUpToDate(msg.LastLogIndex, msg.LastLogTerm)

	if grant {
		cid := msg.CandidateId
		c.votedFor = &cid
		c.role = Follower
		c.resetElectionDeadline()
		c.persistState()
	}

	log.Info().
		Uint64("node_id", uint64(c.cfg.Self)).
		Uint64("term", c.currentTerm).
		Uint64("candidate", uint64(msg.CandidateId)).
		Bool("granted", grant).
		Msg("handled vote request")

	return []Message{c.unicast(msg.From, Message{
		Kind:        KindRequestVoteResponse,
		Term:        c.currentTerm,
		VoteGranted: grant,
		NodeId:      c.cfg.Self,
	})}
}

func (c *Controller) candidateLogUpToDate(lastLogIndex, lastLogTerm uint64) bool {
	myTerm := c.log.LastTerm()
	if lastLogTerm != myTerm {
		return lastLogTerm > myTerm
	}
	return lastLogIndex >= c.log.LastIndex()
}

// handleRequestVoteResponse is spec §4.7.
func (c *Controller) handleRequestVoteResponse(msg Message) []Message {
	if c.stepDownIfHigherTerm(msg.Term) {
		return nil
	}
	if c.role != Candidate || msg.Term != c.currentTerm {
		return nil
	}
	if msg.VoteGranted {
		granted := true
		c.votes[msg.NodeId] = &granted
	}

	count := 0
	for _, v := range c.votes {
		if v != nil && *v {
			count++
		}
	}
	if count < c.cfg.majority() {
		return nil
	}

	c.role = Leader
	for _, p := range c.cfg.Peers {
		c.matchIndex[p] = 0
	}

	log.Info().
		Uint64("node_id", uint64(c.cfg.Self)).
		Uint64("term", c.currentTerm).
		Msg("elected leader")

	return c.broadcast(Message{
		Kind:         KindAppendEntriesRequest,
		Term:         c.currentTerm,
		PrevLogIdx:   c.log.LastIndex(),
		PrevLogTerm:  c.log.LastTerm(),
		LeaderCommit: c.commitIndex,
	})
}

// handleNewCommand is spec §4.8. The returned message (To == msg.From)
// is a client-facing acknowledgement, not a peer RPC: internal/clientapi
// is the only consumer of the NewCommand reply path on this node's own
// outbound queue.
func (c *Controller) handleNewCommand(msg Message) []Message {
	if c.role != Leader {
		return []Message{{
			Kind:    KindNewCommand,
			From:    c.cfg.Self,
			To:      msg.From,
			Success: false,
		}}
	}

	entry := LogEntry{Term: c.currentTerm, Command: msg.Command}
	prevIdx := c.log.LastIndex()
	prevTerm := c.log.LastTerm()
	c.log.entries = append(c.log.entries, entry)
	c.persistState()

	ack := Message{Kind: KindNewCommand, From: c.cfg.Self, To: msg.From, Success: true, LastAppliedIndex: c.log.LastIndex()}

	out := c.broadcast(Message{
		Kind:         KindAppendEntriesRequest,
		Term:         c.currentTerm,
		PrevLogIdx:   prevIdx,
		PrevLogTerm:  prevTerm,
		Entries:      []LogEntry{entry},
		LeaderCommit: c.commitIndex,
	})
	return append(out, ack)
}

// handleClockTick is spec §4.9 / §4.11.
func (c *Controller) handleClockTick(msg Message) []Message {
	if c.role == Leader {
		return c.broadcast(Message{
			Kind:         KindAppendEntriesRequest,
			Term:         c.currentTerm,
			PrevLogIdx:   c.log.LastIndex(),
			PrevLogTerm:  c.log.LastTerm(),
			LeaderCommit: c.commitIndex,
		})
	}

	c.electionDeadlineMs -= msg.ElapsedMs
	if c.electionDeadlineMs >= 0 {
		return nil
	}

	c.role = Candidate
	c.currentTerm++
	self := c.cfg.Self
	c.votedFor = &self
	c.votes = make(map[NodeId]*bool, len(c.cfg.Peers)+1)
	granted := true
	c.votes[c.cfg.Self] = &granted
	c.resetElectionDeadline()
	c.persistState()

	log.Info().
		Uint64("node_id", uint64(c.cfg.Self)).
		Uint64("term", c.currentTerm).
		Msg("election timeout, starting election")

	return c.broadcast(Message{
		Kind:         KindRequestVoteRequest,
		Term:         c.currentTerm,
		CandidateId:  c.cfg.Self,
		LastLogIndex: c.log.LastIndex(),
		LastLogTerm:  c.log.LastTerm(),
	})
}
