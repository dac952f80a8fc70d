// Package store implements the on-disk (in this build, in-memory)
// key-value applier spec.md §1 names and leaves undesigned: a Store
// consumes committed log entries, one at a time and in order, and
// applies them to a persistent key space.
package store

import (
	"strings"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/rs/zerolog/log"

	"github.com/btmorr/raftkv/internal/raft"
)

// Store is a committed-command applier backed by a persistent radix
// tree. Swapping the tree on every write (rather than mutating in
// place) gives consistent point-in-time reads for free, the same
// property blastbao-leifdb's db.Database gets from its own backing
// store — here traded for an immutable structure instead of a mutex
// around a mutable map.
type Store struct {
	mu   sync.RWMutex
	tree *iradix.Tree
}

// New returns an empty Store.
func New() *Store {
	return &Store{tree: iradix.New()}
}

// Get returns the current value for key, if any.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.tree.Get([]byte(key))
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Set installs key=value, replacing any existing value.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree, _, _ = s.tree.Insert([]byte(key), value)
}

// Delete removes key, if present.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree, _, _ = s.tree.Delete([]byte(key))
}

// Len returns the number of keys currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

// Apply decodes a committed log entry's command and applies it. The
// command grammar is "set key value..." or "delete|del key" (verbs are
// case-insensitive). Neither the console nor the client API checks a
// command against this grammar before submitting it, so a committed
// entry may not parse: unrecognized or malformed commands are logged and
// otherwise ignored. Every correct node has agreed byte-for-byte on a
// committed entry, so every node skips the same entries.
func (s *Store) Apply(index uint64, command []byte) {
	fields := strings.Fields(string(command))
	if len(fields) == 0 {
		return
	}
	switch strings.ToLower(fields[0]) {
	case "set":
		if len(fields) < 3 {
			log.Warn().Uint64("index", index).Str("command", string(command)).Msg("malformed set command")
			return
		}
		s.Set(fields[1], strings.Join(fields[2:], " "))
	case "delete", "del":
		if len(fields) < 2 {
			log.Warn().Uint64("index", index).Str("command", string(command)).Msg("malformed delete command")
			return
		}
		s.Delete(fields[1])
	default:
		log.Warn().Uint64("index", index).Str("command", string(command)).Msg("unrecognized command")
	}
}

// Applier adapts a Store to internal/raft's Applier interface, so the
// controller can call it directly from applyCommitted without knowing
// anything about commands or keys.
type Applier struct {
	Store *Store
}

func (a Applier) Apply(index uint64, entry raft.LogEntry) {
	a.Store.Apply(index, entry.Command)
}
