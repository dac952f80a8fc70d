package config

import "testing"

func TestParsePeers(t *testing.T) {
	got, err := parsePeers("1=host1:9001/host1:9101, 2=host2:9001/host2:9101,3=host3:9001/host3:9101")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[uint64]PeerAddr{
		1: {RaftAddr: "host1:9001", ClientAddr: "host1:9101"},
		2: {RaftAddr: "host2:9001", ClientAddr: "host2:9101"},
		3: {RaftAddr: "host3:9001", ClientAddr: "host3:9101"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for id, addr := range want {
		if got[id] != addr {
			t.Fatalf("peer %d: got %+v, want %+v", id, got[id], addr)
		}
	}
}

func TestParsePeersEmpty(t *testing.T) {
	got, err := parsePeers("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no peers, got %v", got)
	}
}

func TestParsePeersMalformed(t *testing.T) {
	if _, err := parsePeers("not-a-pair"); err == nil {
		t.Fatal("expected an error for a malformed peer entry")
	}
}

func TestParsePeersMalformedAddresses(t *testing.T) {
	if _, err := parsePeers("1=host1:9001"); err == nil {
		t.Fatal("expected an error for a peer entry missing the client address")
	}
}

func TestParseRequiresId(t *testing.T) {
	_, err := Parse([]string{"-raft-addr=:9001", "-client-addr=:9002"})
	if err == nil {
		t.Fatal("expected an error when -id is missing")
	}
}
