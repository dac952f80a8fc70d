package raft

// Log is an ordered, 0-indexed sequence of LogEntry values. Index 0 is a
// permanent sentinel entry (term 0, empty command) that anchors
// prev-log-index/term checks so AppendEntries never needs a special case
// for "no previous entry." The sentinel is never removed or modified.
type Log struct {
	entries []LogEntry
}

// NewLog returns a Log containing only the sentinel entry.
func NewLog() *Log {
	return &Log{entries: []LogEntry{{Term: 0, Command: []byte{}}}}
}

// Entries returns the full backing slice. Callers must not mutate it.
func (l *Log) Entries() []LogEntry {
	return l.entries
}

// Len returns the number of entries, including the sentinel.
func (l *Log) Len() int {
	return len(l.entries)
}

// At returns the entry at idx. idx must be < Len().
func (l *Log) At(idx uint64) LogEntry {
	return l.entries[idx]
}

// LastIndex returns the index of the final entry.
func (l *Log) LastIndex() uint64 {
	return uint64(len(l.entries) - 1)
}

// LastTerm returns the term of the final entry.
func (l *Log) LastTerm() uint64 {
	return l.entries[l.LastIndex()].Term
}

func sameEntry(a, b LogEntry) bool {
	if a.Term != b.Term || len(a.Command) != len(b.Command) {
		return false
	}
	for i := range a.Command {
		if a.Command[i] != b.Command[i] {
			return false
		}
	}
	return true
}

// Append implements Raft's AppendEntries consistency check and conflict
// resolution (spec §4.1).
//
// It returns false without modifying the log if prevIdx names an entry
// the log doesn't have, or if the term at prevIdx doesn't match prevTerm.
// Otherwise it walks entries against the existing tail starting at
// prevIdx+1: a matching entry (same term and command) is left in place
// (idempotence, and the common case of a repeated heartbeat or a retried
// append). At the first position that doesn't match, it checks whether
// any entry still sitting beyond that position in the current log has a
// term higher than the highest term among the incoming entries — if so,
// those entries were written by a leader no less legitimate than this
// append's source, and the whole call is rejected rather than discarding
// them (spec §4.1's "stale leader attempting to overwrite newer history").
// Otherwise the log is truncated at the mismatch and the incoming
// entries (from that position on) are appended.
func (l *Log) Append(prevIdx, prevTerm uint64, entries []LogEntry) bool {
	if prevIdx >= uint64(len(l.entries)) {
		return false
	}
	if l.entries[prevIdx].Term != prevTerm {
		return false
	}
	if len(entries) == 0 {
		return true
	}

	for i, incoming := range entries {
		pos := prevIdx + 1 + uint64(i)
		if pos >= uint64(len(l.entries)) {
			l.entries = append(l.entries, entries[i:]...)
			return true
		}
		if sameEntry(l.entries[pos], incoming) {
			continue
		}

		var maxIncomingTerm uint64
		for _, e := range entries {
			if e.Term > maxIncomingTerm {
				maxIncomingTerm = e.Term
			}
		}
		for _, doomed := range l.entries[pos:] {
			if doomed.Term > maxIncomingTerm {
				return false
			}
		}
		l.entries = l.entries[:pos]
		l.entries = append(l.entries, entries[i:]...)
		return true
	}
	return true
}

// Truncate drops every entry at or beyond idx. idx must be >= 1; the
// sentinel can never be removed this way.
func (l *Log) Truncate(idx uint64) {
	if idx == 0 {
		idx = 1
	}
	if idx < uint64(len(l.entries)) {
		l.entries = l.entries[:idx]
	}
}
