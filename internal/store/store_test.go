package store

import (
	"testing"

	"github.com/btmorr/raftkv/internal/raft"
)

func TestSetGetDelete(t *testing.T) {
	s := New()
	if _, ok := s.Get("x"); ok {
		t.Fatal("empty store should not contain x")
	}
	s.Set("x", "1")
	if v, ok := s.Get("x"); !ok || v != "1" {
		t.Fatalf("got (%q,%v), want (1,true)", v, ok)
	}
	s.Delete("x")
	if _, ok := s.Get("x"); ok {
		t.Fatal("x should be gone after delete")
	}
}

func TestSetWithMultiWordValue(t *testing.T) {
	s := New()
	s.Apply(1, []byte("set greeting hello there world"))
	v, ok := s.Get("greeting")
	if !ok || v != "hello there world" {
		t.Fatalf("got (%q,%v), want (\"hello there world\",true)", v, ok)
	}
}

func TestApplyUnrecognizedCommandIsIgnored(t *testing.T) {
	s := New()
	s.Apply(1, []byte("frobnicate x"))
	if s.Len() != 0 {
		t.Fatalf("unrecognized command should not mutate the store")
	}
}

func TestApplierAdapterDispatchesLogEntry(t *testing.T) {
	s := New()
	a := Applier{Store: s}
	a.Apply(1, raft.LogEntry{Term: 1, Command: []byte("set x 1")})
	if v, ok := s.Get("x"); !ok || v != "1" {
		t.Fatalf("got (%q,%v), want (1,true)", v, ok)
	}
}
