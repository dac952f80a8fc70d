package transport

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// DialTimeout is the context timeout Dial passes to grpc.DialContext.
// Since the connection itself is made lazily, cmd/raftd also uses it as
// the deadline for each Send. Matches blastbao-leifdb's ForeignNode dial
// timeout.
const DialTimeout = 100 * time.Millisecond

// Peer is a connection to one other cluster member, used to push raft.Message
// frames produced by internal/raft's wire codec. It intentionally knows
// nothing about raft.Message itself; callers pass already-encoded bytes.
type Peer struct {
	Address    string
	conn       *grpc.ClientConn
	methodFull string
}

// Dial opens a gRPC connection to a peer's raft transport address.
// The connection is made lazily and retried by the underlying ClientConn
// rather than by a hand-rolled retry loop; cmd/raftd dials a new Peer for
// each outbound message and closes it after the Send.
func Dial(address string) (*Peer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DialTimeout)
	defer cancel()

	conn, err := grpc.DialContext(ctx, address,
		grpc.WithInsecure(),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, err
	}
	return &Peer{
		Address:    address,
		conn:       conn,
		methodFull: "/" + serviceName + "/" + methodName,
	}, nil
}

// Send delivers an already wire-encoded raft.Message frame to the peer.
func (p *Peer) Send(ctx context.Context, payload []byte) error {
	var reply []byte
	return p.conn.Invoke(ctx, p.methodFull, payload, &reply, grpc.CallContentSubtype(codecName))
}

// Close releases the underlying connection.
func (p *Peer) Close() error {
	return p.conn.Close()
}
