package raft

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// WireVersion is bumped whenever the on-wire layout of Message or
// LogEntry changes, so a peer running a different build can at least
// fail loudly instead of misparsing bytes. Persisted state files are
// tagged with persistMagic instead (see persist.go).
const WireVersion = 1

// EncodeMessage renders m as an explicit, versioned, length-prefixed
// frame: a version byte, a kind byte, then the kind's fields in a fixed
// order, each variable-length field prefixed by a uint32 length. This
// replaces the source's unsafe object-graph serializer (spec §9).
func EncodeMessage(m Message) []byte {
	var buf bytes.Buffer
	buf.WriteByte(WireVersion)
	buf.WriteByte(byte(m.Kind))
	putU64(&buf, uint64(m.From))
	putU64(&buf, uint64(m.To))
	putU64(&buf, m.Term)

	switch m.Kind {
	case KindAppendEntriesRequest:
		putU64(&buf, m.PrevLogIdx)
		putU64(&buf, m.PrevLogTerm)
		putU64(&buf, m.LeaderCommit)
		putEntries(&buf, m.Entries)
	case KindAppendEntriesResponse:
		putBool(&buf, m.Success)
		putU64(&buf, m.LastAppliedIndex)
		putU64(&buf, uint64(m.NodeId))
	case KindRequestVoteRequest:
		putU64(&buf, uint64(m.CandidateId))
		putU64(&buf, m.LastLogIndex)
		putU64(&buf, m.LastLogTerm)
	case KindRequestVoteResponse:
		putBool(&buf, m.VoteGranted)
		putU64(&buf, uint64(m.NodeId))
	case KindNewCommand:
		putBytes(&buf, m.Command)
		putBool(&buf, m.Success)
	case KindClockTick:
		putFloat64(&buf, m.ElapsedMs)
	}
	return buf.Bytes()
}

// DecodeMessage parses a frame produced by EncodeMessage.
func DecodeMessage(data []byte) (Message, error) {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil {
		return Message{}, fmt.Errorf("raft: decode message: %w", err)
	}
	if version != WireVersion {
		return Message{}, fmt.Errorf("raft: decode message: unsupported wire version %d", version)
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return Message{}, fmt.Errorf("raft: decode message: %w", err)
	}
	m := Message{Kind: Kind(kindByte)}

	from, err := getU64(r)
	if err != nil {
		return Message{}, err
	}
	m.From = NodeId(from)
	to, err := getU64(r)
	if err != nil {
		return Message{}, err
	}
	m.To = NodeId(to)
	if m.Term, err = getU64(r); err != nil {
		return Message{}, err
	}

	switch m.Kind {
	case KindAppendEntriesRequest:
		if m.PrevLogIdx, err = getU64(r); err != nil {
			return Message{}, err
		}
		if m.PrevLogTerm, err = getU64(r); err != nil {
			return Message{}, err
		}
		if m.LeaderCommit, err = getU64(r); err != nil {
			return Message{}, err
		}
		if m.Entries, err = getEntries(r); err != nil {
			return Message{}, err
		}
	case KindAppendEntriesResponse:
		if m.Success, err = getBool(r); err != nil {
			return Message{}, err
		}
		if m.LastAppliedIndex, err = getU64(r); err != nil {
			return Message{}, err
		}
		nid, err := getU64(r)
		if err != nil {
			return Message{}, err
		}
		m.NodeId = NodeId(nid)
	case KindRequestVoteRequest:
		cid, err := getU64(r)
		if err != nil {
			return Message{}, err
		}
		m.CandidateId = NodeId(cid)
		if m.LastLogIndex, err = getU64(r); err != nil {
			return Message{}, err
		}
		if m.LastLogTerm, err = getU64(r); err != nil {
			return Message{}, err
		}
	case KindRequestVoteResponse:
		if m.VoteGranted, err = getBool(r); err != nil {
			return Message{}, err
		}
		nid, err := getU64(r)
		if err != nil {
			return Message{}, err
		}
		m.NodeId = NodeId(nid)
	case KindNewCommand:
		if m.Command, err = getBytes(r); err != nil {
			return Message{}, err
		}
		if m.Success, err = getBool(r); err != nil {
			return Message{}, err
		}
	case KindClockTick:
		if m.ElapsedMs, err = getFloat64(r); err != nil {
			return Message{}, err
		}
	default:
		return Message{}, fmt.Errorf("raft: decode message: unknown kind %d", kindByte)
	}
	return m, nil
}

func putU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func getU64(r *bytes.Reader) (uint64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, fmt.Errorf("raft: decode uint64: %w", err)
	}
	return binary.BigEndian.Uint64(tmp[:]), nil
}

func putFloat64(buf *bytes.Buffer, v float64) {
	putU64(buf, math.Float64bits(v))
}

func getFloat64(r *bytes.Reader) (float64, error) {
	bits, err := getU64(r)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

func putBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func getBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, fmt.Errorf("raft: decode bool: %w", err)
	}
	return b != 0, nil
}

func putBytes(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func getBytes(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("raft: decode bytes length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	out := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, fmt.Errorf("raft: decode bytes: %w", err)
		}
	}
	return out, nil
}

func putEntries(buf *bytes.Buffer, entries []LogEntry) {
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(entries)))
	buf.Write(countBuf[:])
	for _, e := range entries {
		putU64(buf, e.Term)
		putBytes(buf, e.Command)
	}
}

func getEntries(r *bytes.Reader) ([]LogEntry, error) {
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, fmt.Errorf("raft: decode entries count: %w", err)
	}
	n := binary.BigEndian.Uint32(countBuf[:])
	entries := make([]LogEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		term, err := getU64(r)
		if err != nil {
			return nil, err
		}
		cmd, err := getBytes(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, LogEntry{Term: term, Command: cmd})
	}
	return entries, nil
}
