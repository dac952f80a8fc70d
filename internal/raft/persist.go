package raft

import (
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"os"
)

// Persister write-throughs current_term, voted_for, and the log on every
// mutation of those three fields, and reloads them at startup. spec §9
// ("Persistence gap") marks this as required even though the reference
// implementation that spec.md was distilled from omits it: strict Raft
// needs all three durable before replying to any RPC, to preserve
// Election Safety and Leader Completeness across a restart.
//
// Implementations use an explicit, versioned, length-prefixed encoding
// of their own (see FilePersister) rather than a generic object-graph
// serializer, per spec §9 ("Serialization") — a sibling format to
// wire.go's, not a shared one: wire.go frames one Message for one
// network call, while a Persister frames the whole durable state
// snapshot at once.
type Persister interface {
	SaveState(term uint64, votedFor *NodeId, entries []LogEntry) error
	LoadState() (term uint64, votedFor *NodeId, entries []LogEntry, ok bool, err error)
}

// NopPersister discards state. Useful for tests that exercise Step
// directly and don't care about restart durability.
type NopPersister struct{}

func (NopPersister) SaveState(uint64, *NodeId, []LogEntry) error { return nil }

func (NopPersister) LoadState() (uint64, *NodeId, []LogEntry, bool, error) {
	return 0, nil, nil, false, nil
}

// persistMagic tags a state file so a mismatched build fails loudly
// rather than misparsing bytes written by a different wire version,
// the same concern WireVersion addresses for peer traffic.
const persistMagic = "raftstate1"

// FilePersister writes current_term, voted_for, and the log to a single
// file on every SaveState call, using its own magic-prefixed,
// length-prefixed encoding instead of blastbao-leifdb's protobuf
// TermRecord/LogStore (see DESIGN.md for why protobuf was dropped).
// Grounded on node.go's WriteTerm/ReadTerm/
// WriteLogs/ReadLogs: a single combined file replaces the teacher's two
// separate term/log files, since both need to be durable before any RPC
// reply (spec §9 "Persistence gap").
type FilePersister struct {
	path string
}

// NewFilePersister returns a FilePersister backed by path. The file
// need not exist yet; LoadState treats a missing file as "no prior
// state."
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

func (p *FilePersister) SaveState(term uint64, votedFor *NodeId, entries []LogEntry) error {
	buf := make([]byte, 0, 64+len(entries)*32)
	buf = append(buf, []byte(persistMagic)...)
	buf = appendU64(buf, term)
	if votedFor != nil {
		buf = append(buf, 1)
		buf = appendU64(buf, uint64(*votedFor))
	} else {
		buf = append(buf, 0)
	}
	buf = appendU64(buf, uint64(len(entries)))
	for _, e := range entries {
		buf = appendU64(buf, e.Term)
		buf = appendU64(buf, uint64(len(e.Command)))
		buf = append(buf, e.Command...)
	}

	tmp := p.path + ".tmp"
	if err := ioutil.WriteFile(tmp, buf, 0644); err != nil {
		return fmt.Errorf("raft: persist state: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("raft: persist state: %w", err)
	}
	return nil
}

func (p *FilePersister) LoadState() (uint64, *NodeId, []LogEntry, bool, error) {
	data, err := ioutil.ReadFile(p.path)
	if os.IsNotExist(err) {
		return 0, nil, nil, false, nil
	}
	if err != nil {
		return 0, nil, nil, false, fmt.Errorf("raft: load state: %w", err)
	}

	if len(data) < len(persistMagic) || string(data[:len(persistMagic)]) != persistMagic {
		return 0, nil, nil, false, fmt.Errorf("raft: load state: bad magic in %s", p.path)
	}
	data = data[len(persistMagic):]

	term, data, err := readU64(data)
	if err != nil {
		return 0, nil, nil, false, err
	}
	if len(data) < 1 {
		return 0, nil, nil, false, fmt.Errorf("raft: load state: truncated voted_for flag")
	}
	hasVote := data[0] == 1
	data = data[1:]

	var votedFor *NodeId
	if hasVote {
		var v uint64
		v, data, err = readU64(data)
		if err != nil {
			return 0, nil, nil, false, err
		}
		id := NodeId(v)
		votedFor = &id
	}

	count, data, err := readU64(data)
	if err != nil {
		return 0, nil, nil, false, err
	}
	entries := make([]LogEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		var entryTerm, cmdLen uint64
		entryTerm, data, err = readU64(data)
		if err != nil {
			return 0, nil, nil, false, err
		}
		cmdLen, data, err = readU64(data)
		if err != nil {
			return 0, nil, nil, false, err
		}
		if uint64(len(data)) < cmdLen {
			return 0, nil, nil, false, fmt.Errorf("raft: load state: truncated command")
		}
		cmd := make([]byte, cmdLen)
		copy(cmd, data[:cmdLen])
		data = data[cmdLen:]
		entries = append(entries, LogEntry{Term: entryTerm, Command: cmd})
	}

	return term, votedFor, entries, true, nil
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readU64(data []byte) (uint64, []byte, error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("raft: load state: truncated uint64")
	}
	return binary.BigEndian.Uint64(data[:8]), data[8:], nil
}
