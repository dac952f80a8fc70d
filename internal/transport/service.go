package transport

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName and methodName identify the hand-registered RPC the way a
// .proto file's `service`/`rpc` declarations would, without a .proto file
// to generate them from.
const (
	serviceName = "raft.Transport"
	methodName  = "Send"
)

// Inbox receives each wire-encoded raft.Message frame as raw bytes — in
// practice an adapter that decodes it onto the per-node inbound Queue,
// so this package doesn't need to import internal/raft's Message type.
type Inbox interface {
	Deliver(payload []byte) error
}

type transportServer struct {
	inbox Inbox
}

func (s *transportServer) send(ctx context.Context, payload []byte) ([]byte, error) {
	if err := s.inbox.Deliver(payload); err != nil {
		return nil, err
	}
	return []byte{}, nil
}

func sendHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	s := srv.(*transportServer)
	var payload []byte
	if err := dec(&payload); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return s.send(ctx, payload)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + methodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.send(ctx, req.([]byte))
	}
	return interceptor(ctx, payload, info, handler)
}

// handlerType stands in for the per-service interface protoc-gen-go-grpc
// would generate (e.g. RaftServer) and grpc.Server.RegisterService
// type-asserts the registered implementation against. There's no .proto
// file to generate one from, and transportServer's own method (send) is
// unexported since nothing outside this package calls it directly, so
// this is deliberately the empty interface: every concrete handler
// trivially satisfies it, and the real contract lives in ServiceDesc's
// Methods slice instead.
type handlerType interface{}

// ServiceDesc is the hand-written stand-in for what `protoc
// --go-grpc_out` would generate from a one-rpc .proto file. Registering
// it against a *grpc.Server gives the full gRPC wire protocol (HTTP/2
// framing, deadlines, TLS if configured) without a code generation step.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*handlerType)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: methodName,
			Handler:    sendHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/transport/service.go",
}

// Register attaches the Transport service to s, delivering decoded
// payloads to inbox.
func Register(s *grpc.Server, inbox Inbox) {
	s.RegisterService(&ServiceDesc, &transportServer{inbox: inbox})
}
