package transport

import (
	"context"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"relaygate/protocol"
)

const (
	serviceName    = "relaygate.Command"
	dispatchMethod = "/" + serviceName + "/Dispatch"
)

// dispatcher is the service interface registered with grpc.Server.
type dispatcher interface {
	Dispatch(ctx context.Context, env *protocol.Envelope) (*protocol.Envelope, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*dispatcher)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dispatch", Handler: dispatchHandler},
	},
	Metadata: "relaygate/command",
}

func dispatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(protocol.Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(dispatcher).Dispatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: dispatchMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(dispatcher).Dispatch(ctx, req.(*protocol.Envelope))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCServer serves one backend's Handler over gRPC. Every call returns a
// reply envelope; handler failures travel inside it rather than as gRPC status.
type GRPCServer struct {
	srv     *grpc.Server
	health  *health.Server
	handler Handler
	src     protocol.Address
}

// NewGRPCServer registers handler under the relaygate.Command service along
// with the standard gRPC health service.
func NewGRPCServer(handler Handler, src protocol.Address, opts ...grpc.ServerOption) *GRPCServer {
	s := &GRPCServer{
		srv:     grpc.NewServer(opts...),
		health:  health.NewServer(),
		handler: handler,
		src:     src,
	}
	s.srv.RegisterService(&serviceDesc, s)
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Dispatch implements the relaygate.Command/Dispatch method.
func (s *GRPCServer) Dispatch(ctx context.Context, env *protocol.Envelope) (*protocol.Envelope, error) {
	if !env.ExpiresAt.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, env.ExpiresAt)
		defer cancel()
	}
	reply := respond(ctx, s.handler, s.src, env)
	if reply.Status == protocol.StatusError {
		log.Printf("transport: %s %s failed: %s", env.Type, env.ID, reply.Error)
	}
	return reply, nil
}

// Serve accepts connections on lis until Stop is called.
func (s *GRPCServer) Serve(lis net.Listener) error {
	log.Printf("transport: grpc serving %s on %s", s.src.Node, lis.Addr())
	return s.srv.Serve(lis)
}

// Stop marks the service not serving and drains in-flight calls.
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
