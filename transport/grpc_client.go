package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"relaygate/protocol"
)

// GRPCClient sends commands to one backend over a single gRPC connection.
type GRPCClient struct {
	conn    *grpc.ClientConn
	src     protocol.Address
	dst     protocol.Address
	timeout time.Duration
}

// NewGRPCClient creates a client for the backend at addr. The connection is
// established lazily, so an unreachable backend surfaces as a connect fault
// on the first Send rather than here. timeout bounds each Send whose context
// carries no deadline.
func NewGRPCClient(addr string, src, dst protocol.Address, timeout time.Duration, opts ...grpc.DialOption) (*GRPCClient, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn, src: src, dst: dst, timeout: timeout}, nil
}

// Send implements Transport.
func (c *GRPCClient) Send(ctx context.Context, cmd protocol.Command, payload any) Reply {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	req, err := newCommand(ctx, cmd, c.src, c.dst, payload)
	if err != nil {
		return Fault(FaultProtocol, cmd, err)
	}

	var reply protocol.Envelope
	if err := c.conn.Invoke(ctx, dispatchMethod, req, &reply, grpc.CallContentSubtype(codecName)); err != nil {
		return grpcFault(ctx, cmd, err)
	}
	return fromReply(req, &reply)
}

// Ping runs the standard gRPC health check against the backend.
func (c *GRPCClient) Ping(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: serviceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("backend %s is %s", c.dst.Node, resp.GetStatus())
	}
	return nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func grpcFault(ctx context.Context, cmd protocol.Command, err error) Reply {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return contextFault(cmd, ctxErr)
	}
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return Fault(FaultTimeout, cmd, err)
	case codes.Canceled:
		return Fault(FaultCancelled, cmd, err)
	case codes.Unavailable:
		return Fault(FaultConnect, cmd, err)
	case codes.Internal, codes.Unknown:
		if errors.Is(err, context.DeadlineExceeded) {
			return Fault(FaultTimeout, cmd, err)
		}
		return Fault(FaultProtocol, cmd, err)
	default:
		return Fault(FaultRemote, cmd, err)
	}
}

// withTimeout applies d when ctx has no deadline of its own.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// newCommand builds the command envelope and aligns its expiry with the call
// deadline so the backend can drop work nobody is waiting for.
func newCommand(ctx context.Context, cmd protocol.Command, src, dst protocol.Address, payload any) (*protocol.Envelope, error) {
	env, err := protocol.NewCommand(cmd, src, dst, payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", cmd, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		env.ExpiresAt = dl.UTC()
	}
	return env, nil
}
