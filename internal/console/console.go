// Package console implements the interactive operator REPL spec.md §6
// describes: an operator types "<dest-node-id> command <text>" and the
// console either enqueues that command locally (if dest is this node)
// or submits it to another node's client HTTP API (internal/clientapi)
// — the same path a curl caller would use, never the peer transport,
// since the peer transport's NewCommand reply is a client-facing ack
// (see internal/raft/controller.go's handleNewCommand) that peers have
// no Kind-level way to distinguish from a fresh submission: looping a
// peer-addressed ack back through the wire would re-enter
// handleNewCommand as if it were a brand new command, forever.
// Grounded on original_source/console.py's parse-a-line-and-send shape,
// rebuilt with github.com/chzyer/readline (the interactive-shell
// library firefly-oss-flydb pulls in for the same purpose) instead of
// Python's bare input().
package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog/log"

	"github.com/btmorr/raftkv/internal/raft"
)

// forwardTimeout bounds a cross-node console submission: long enough to
// cover a full HTTP round trip plus the destination's own
// clientapi.submitTimeout wait for a controller ack.
const forwardTimeout = 3 * time.Second

// errUnknownPeer is returned when an operator targets a node id the
// Dialer has no client address for.
var errUnknownPeer = errors.New("console: unknown peer node id")

// Dialer resolves another node's id to its client HTTP API address, so
// Console doesn't need to know about cluster configuration directly.
type Dialer interface {
	ClientAddress(nodeId raft.NodeId) (string, bool)
}

// Console runs the operator REPL until EOF (Ctrl-D); an interrupt
// (Ctrl-C) at the prompt is ignored.
type Console struct {
	self    raft.NodeId
	inbound *raft.Queue
	dialer  Dialer
}

// New builds a Console bound to one node. inbound is that node's own
// inbound queue, used when the operator targets this node directly.
func New(self raft.NodeId, inbound *raft.Queue, dialer Dialer) *Console {
	return &Console{self: self, inbound: inbound, dialer: dialer}
}

// Run reads lines until the terminal is closed. It never returns an
// error for a malformed line — it prints a message and continues,
// matching a REPL's usual tolerance for operator typos.
func (c *Console) Run() error {
	rl, err := readline.New(fmt.Sprintf("Node %d > ", c.self))
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("console: %w", err)
		}
		c.handleLine(line)
	}
}

func (c *Console) handleLine(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	if len(fields) < 2 {
		fmt.Println("usage: <dest-node-id> command <text...>")
		return
	}

	destId, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		fmt.Printf("invalid node id %q\n", fields[0])
		return
	}
	if fields[1] != "command" {
		fmt.Printf("invalid command %q (only \"command\" is supported)\n", fields[1])
		return
	}
	text := strings.Join(fields[2:], " ")

	dest := raft.NodeId(destId)

	if dest == c.self {
		c.inbound.Push(raft.Message{Kind: raft.KindNewCommand, From: c.self, Command: []byte(text)})
		fmt.Println("submitted locally")
		return
	}
	if err := c.forward(dest, text); err != nil {
		fmt.Printf("failed to reach node %d: %v\n", dest, err)
		return
	}
	fmt.Printf("forwarded to node %d\n", dest)
}

// forwardRequest mirrors internal/clientapi's submitCommandRequest; the
// two types stay independent (console doesn't import clientapi) but
// must agree on the wire shape since forward posts directly to
// clientapi's /commands handler.
type forwardRequest struct {
	Command string `json:"command"`
}

// forward submits text to dest's client HTTP API, the same entry point
// a curl caller would use — never the peer transport, whose NewCommand
// reply path is reserved for client-facing acks (see package doc).
func (c *Console) forward(dest raft.NodeId, text string) error {
	addr, ok := c.dialer.ClientAddress(dest)
	if !ok {
		return errUnknownPeer
	}

	body, err := json.Marshal(forwardRequest{Command: text})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+"/commands", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Error().Err(err).Uint64("dest", uint64(dest)).Msg("console forward failed")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node %d rejected the command (status %s)", dest, resp.Status)
	}
	return nil
}
