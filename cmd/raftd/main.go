// Command raftd runs one member of a static five-node Raft cluster: the
// consensus core (internal/raft), peer transport (internal/transport),
// a committed-command key-value applier (internal/store), a client HTTP
// API (internal/clientapi), and an interactive operator console
// (internal/console), all driven off one controller goroutine.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/btmorr/raftkv/internal/clientapi"
	"github.com/btmorr/raftkv/internal/config"
	"github.com/btmorr/raftkv/internal/console"
	"github.com/btmorr/raftkv/internal/raft"
	"github.com/btmorr/raftkv/internal/store"
	"github.com/btmorr/raftkv/internal/transport"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("raftd exited")
	}
}

// peerDirectory adapts config's static address map to the interfaces
// the outbound-routing loop and internal/console need: Address resolves
// a peer's transport listener for replication traffic, ClientAddress
// resolves its client HTTP API for console.forward.
type peerDirectory struct {
	peers map[raft.NodeId]config.PeerAddr
}

func (d peerDirectory) Address(id raft.NodeId) (string, bool) {
	p, ok := d.peers[id]
	return p.RaftAddr, ok
}

func (d peerDirectory) ClientAddress(id raft.NodeId) (string, bool) {
	p, ok := d.peers[id]
	return p.ClientAddr, ok
}

// inboxAdapter decodes wire frames arriving over gRPC and pushes them
// onto the node's own inbound queue, bridging internal/transport's
// byte-oriented Inbox interface to internal/raft's typed Message.
type inboxAdapter struct {
	inbound *raft.Queue
}

func (a inboxAdapter) Deliver(payload []byte) error {
	msg, err := raft.DecodeMessage(payload)
	if err != nil {
		return err
	}
	a.inbound.Push(msg)
	return nil
}

func run(cfg config.NodeConfig) error {
	self := raft.NodeId(cfg.Id)
	peers := make(map[raft.NodeId]config.PeerAddr, len(cfg.Peers))
	var peerIds []raft.NodeId
	for id, addr := range cfg.Peers {
		nid := raft.NodeId(id)
		peers[nid] = addr
		peerIds = append(peerIds, nid)
	}
	dir := peerDirectory{peers: peers}

	inbound := raft.NewQueue(256)
	outbound := raft.NewQueue(256)

	persister := raft.NewFilePersister(cfg.StateFile())
	kv := store.New()
	controller := raft.NewController(raft.Config{Self: self, Peers: peerIds}, persister, store.Applier{Store: kv})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go raft.RunClock(ctx, inbound, self)

	lis, err := net.Listen("tcp", cfg.RaftAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.RaftAddr, err)
	}
	grpcServer := grpc.NewServer()
	transport.Register(grpcServer, inboxAdapter{inbound: inbound})
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("raft transport server stopped")
		}
	}()
	defer grpcServer.GracefulStop()

	bridge := clientapi.NewBridge(inbound)
	status := &clientapi.StatusHolder{}
	apiServer := clientapi.NewServer(bridge, status)
	httpLis, err := net.Listen("tcp", cfg.ClientAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ClientAddr, err)
	}
	httpServer := &http.Server{Handler: apiServer.Handler()}
	go func() {
		if err := httpServer.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("client api server stopped")
		}
	}()
	defer httpServer.Close()

	go runEventLoop(ctx, controller, inbound, outbound, bridge, status)
	go routeOutbound(ctx, outbound, dir)

	if cfg.NoConsole {
		<-waitForSignal()
		return nil
	}

	repl := console.New(self, inbound, dir)
	return repl.Run()
}

// runEventLoop is the controller's single goroutine: it is the only
// code in the process allowed to call Step, satisfying spec §2's
// single-threaded-core requirement.
func runEventLoop(ctx context.Context, controller *raft.Controller, inbound, outbound *raft.Queue, bridge *clientapi.Bridge, status *clientapi.StatusHolder) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-inbound.Chan():
			out := controller.Step(msg)
			status.Store(clientapi.Status{
				Self:        controller.Self(),
				Role:        controller.Role(),
				Term:        controller.Term(),
				CommitIndex: controller.CommitIndex(),
				LastIndex:   controller.LastIndex(),
			})
			for _, m := range out {
				if clientapi.IsClientReply(m.To) {
					bridge.Deliver(m)
					continue
				}
				if m.To == controller.Self() {
					// Ack for a command the operator console pushed
					// straight into this node's own inbound queue —
					// console.go doesn't wait for a reply, so there's
					// nowhere to deliver this to (spec §6 console).
					continue
				}
				if m.Heartbeat() {
					outbound.TryPush(m)
					continue
				}
				outbound.Push(m)
			}
		}
	}
}

// routeOutbound drains the outbound queue and sends each message to its
// addressed peer over the transport layer. One short-lived dial per
// send keeps this loop simple; a busier deployment would cache
// one connection per peer, but the simpler
// form is adequate for heartbeat-scale traffic in the reference
// five-node cluster.
func routeOutbound(ctx context.Context, outbound *raft.Queue, dir peerDirectory) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-outbound.Chan():
			addr, ok := dir.Address(msg.To)
			if !ok {
				log.Warn().Uint64("to", uint64(msg.To)).Msg("no known address for outbound message")
				continue
			}
			go send(addr, msg)
		}
	}
}

func send(addr string, msg raft.Message) {
	peer, err := transport.Dial(addr)
	if err != nil {
		log.Debug().Err(err).Str("addr", addr).Msg("failed to dial peer")
		return
	}
	defer peer.Close()

	sendCtx, cancel := context.WithTimeout(context.Background(), transport.DialTimeout)
	defer cancel()
	if err := peer.Send(sendCtx, raft.EncodeMessage(msg)); err != nil {
		log.Debug().Err(err).Str("addr", addr).Msg("failed to deliver message")
	}
}

func waitForSignal() <-chan os.Signal {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	return c
}
