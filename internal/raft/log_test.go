package raft

import (
	"reflect"
	"testing"
)

func entries(pairs ...interface{}) []LogEntry {
	out := make([]LogEntry, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, LogEntry{Term: uint64(pairs[i].(int)), Command: []byte(pairs[i+1].(string))})
	}
	return out
}

func assertLog(t *testing.T, l *Log, want []LogEntry) {
	t.Helper()
	if !reflect.DeepEqual(l.Entries(), want) {
		t.Fatalf("log = %+v, want %+v", l.Entries(), want)
	}
}

func TestLogSentinel(t *testing.T) {
	l := NewLog()
	assertLog(t, l, entries(0, ""))
	if l.LastIndex() != 0 || l.LastTerm() != 0 {
		t.Fatalf("fresh log should anchor at index 0, term 0")
	}
}

func TestLogAppendMissingPrefix(t *testing.T) {
	l := NewLog()
	if l.Append(1, 1, nil) {
		t.Fatal("append with prev_idx beyond log length must fail")
	}
}

func TestLogAppendTermMismatch(t *testing.T) {
	l := NewLog()
	if l.Append(0, 1, nil) {
		t.Fatal("append with mismatched prev_log_term must fail")
	}
}

func TestLogAppendIdempotentFollower(t *testing.T) {
	l := NewLog()
	req := entries(0, "set x 1")
	if !l.Append(0, 0, req) {
		t.Fatal("first append should succeed")
	}
	assertLog(t, l, entries(0, "", 0, "set x 1"))

	if !l.Append(0, 0, req) {
		t.Fatal("repeated append of the same entries should succeed")
	}
	assertLog(t, l, entries(0, "", 0, "set x 1"))
}

func TestLogAppendConflictTruncation(t *testing.T) {
	l := &Log{entries: entries(0, "", 0, "set x 1", 0, "set y 2")}
	ok := l.Append(0, 0, entries(0, "set x 3"))
	if !ok {
		t.Fatal("conflicting append should still succeed once it truncates")
	}
	assertLog(t, l, entries(0, "", 0, "set x 3"))
}

func TestLogAppendEmptyIsHeartbeat(t *testing.T) {
	l := &Log{entries: entries(0, "", 0, "a", 0, "b")}
	ok := l.Append(2, 0, nil)
	if !ok {
		t.Fatal("empty-entries append with a valid anchor is a successful heartbeat")
	}
	assertLog(t, l, entries(0, "", 0, "a", 0, "b"))
}

// TestLogAppendStaleOverwriteRejected pins the behavior spec.md §9 calls
// out as ambiguous in the source and §8 scenario 4 resolves explicitly:
// an append that would discard an existing entry whose term is higher
// than every incoming entry is rejected outright, even though the
// immediate conflicting position has a lower term than the incoming
// entry. A second call whose incoming term exceeds everything it would
// discard succeeds and truncates.
func TestLogAppendStaleOverwriteRejected(t *testing.T) {
	l := &Log{entries: entries(
		0, "",
		1, "",
		2, "",
		2, "a",
		3, "b",
		4, "m1",
		4, "m2",
	)}

	if l.Append(1, 1, entries(3, "woah")) {
		t.Fatal("append must reject when it would discard a higher-term entry further down the log")
	}
	assertLog(t, l, entries(0, "", 1, "", 2, "", 2, "a", 3, "b", 4, "m1", 4, "m2"))

	if !l.Append(1, 1, entries(5, "ahem")) {
		t.Fatal("append with a term higher than everything it discards must succeed")
	}
	assertLog(t, l, entries(0, "", 1, "", 5, "ahem"))
}

func TestLogAppendMultiEntryExtendsCleanly(t *testing.T) {
	l := &Log{entries: entries(0, "", 1, "", 3, "noconflict", 3, "another message")}
	if !l.Append(3, 3, entries(4, "multi1", 4, "multi2")) {
		t.Fatal("appending past the end of the log should succeed")
	}
	assertLog(t, l, entries(0, "", 1, "", 3, "noconflict", 3, "another message", 4, "multi1", 4, "multi2"))
}

func TestLogAppendIsIdempotentGeneral(t *testing.T) {
	l := &Log{entries: entries(0, "", 1, "", 2, "a")}
	want := entries(0, "", 1, "", 2, "a", 2, "b")
	ok1 := l.Append(2, 2, entries(2, "b"))
	got1 := append([]LogEntry(nil), l.Entries()...)
	ok2 := l.Append(2, 2, entries(2, "b"))
	got2 := append([]LogEntry(nil), l.Entries()...)

	if ok1 != ok2 || !reflect.DeepEqual(got1, got2) {
		t.Fatalf("append must be idempotent: (%v,%v) vs (%v,%v)", ok1, got1, ok2, got2)
	}
	assertLog(t, l, want)
}
