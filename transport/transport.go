// Package transport carries commands from the gateway to a backend and
// returns exactly one Reply per call.
//
// A Reply is a tagged result: the backend produced a value, the exchange
// completed with no value (Absent), or the exchange itself failed (Fault).
// Absent and Fault are never conflated; deciding what Absent means for a
// given operation is left to the caller.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"relaygate/protocol"
)

// Transport sends one command and waits for its correlated reply.
// Implementations are safe for concurrent use.
type Transport interface {
	Send(ctx context.Context, cmd protocol.Command, payload any) Reply
}

// Outcome tags a Reply.
type Outcome int

const (
	OutcomeValue Outcome = iota + 1
	OutcomeAbsent
	OutcomeFault
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValue:
		return "value"
	case OutcomeAbsent:
		return "absent"
	case OutcomeFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Reply is the result of one Send.
type Reply struct {
	Outcome Outcome
	Value   json.RawMessage
	Err     *FaultError
}

// Value wraps a raw reply value.
func Value(raw json.RawMessage) Reply {
	return Reply{Outcome: OutcomeValue, Value: raw}
}

// Absent is the reply for an exchange that completed with no value.
func Absent() Reply {
	return Reply{Outcome: OutcomeAbsent}
}

// Fault builds a fault reply.
func Fault(kind FaultKind, cmd protocol.Command, err error) Reply {
	return Reply{Outcome: OutcomeFault, Err: &FaultError{Kind: kind, Command: cmd, Err: err}}
}

// Decode unmarshals the reply value into target. It fails for non-value replies.
func (r Reply) Decode(target any) error {
	if r.Outcome != OutcomeValue {
		return fmt.Errorf("decode %s reply", r.Outcome)
	}
	return json.Unmarshal(r.Value, target)
}

// FaultKind classifies transport failures.
type FaultKind string

const (
	FaultConnect   FaultKind = "connect"   // dial failed or connection broke
	FaultTimeout   FaultKind = "timeout"   // no reply before the deadline
	FaultCancelled FaultKind = "cancelled" // caller gave up
	FaultRemote    FaultKind = "remote"    // backend handler failed
	FaultProtocol  FaultKind = "protocol"  // reply could not be understood
)

// FaultError is the error carried by a fault Reply.
type FaultError struct {
	Kind    FaultKind
	Command protocol.Command
	Err     error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("transport: %s: %s: %v", e.Command, e.Kind, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }

// Handler is implemented by the backend side. A nil value with a nil error is
// a void result. Errors exposing NotFound() bool that return true are sent as
// absent replies; any other error is sent as a remote failure.
type Handler interface {
	Handle(ctx context.Context, env *protocol.Envelope) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env *protocol.Envelope) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, env *protocol.Envelope) (any, error) {
	return f(ctx, env)
}

var errExpired = errors.New("command expired before handling")

// respond runs h for env and builds the reply envelope.
func respond(ctx context.Context, h Handler, src protocol.Address, env *protocol.Envelope) *protocol.Envelope {
	if protocol.IsExpired(env) {
		return protocol.NewErrorReply(env, src, errExpired)
	}
	value, err := h.Handle(ctx, env)
	if err != nil {
		if isNotFound(err) {
			return protocol.NewAbsentReply(env, src, err.Error())
		}
		return protocol.NewErrorReply(env, src, err)
	}
	reply, err := protocol.NewReply(env, src, value)
	if err != nil {
		return protocol.NewErrorReply(env, src, fmt.Errorf("encode reply: %w", err))
	}
	return reply
}

func isNotFound(err error) bool {
	var nf interface{ NotFound() bool }
	return errors.As(err, &nf) && nf.NotFound()
}

// fromReply converts a reply envelope for req into a Reply.
func fromReply(req, reply *protocol.Envelope) Reply {
	cmd := req.Command()
	if reply.CorID != req.ID {
		return Fault(FaultProtocol, cmd, fmt.Errorf("reply correlates to %q, want %q", reply.CorID, req.ID))
	}
	switch reply.Status {
	case protocol.StatusValue:
		if len(reply.Payload) == 0 {
			return Fault(FaultProtocol, cmd, errors.New("value reply without payload"))
		}
		return Value(reply.Payload)
	case protocol.StatusAbsent:
		return Absent()
	case protocol.StatusError:
		return Fault(FaultRemote, cmd, errors.New(reply.Error))
	default:
		return Fault(FaultProtocol, cmd, fmt.Errorf("unknown reply status %q", reply.Status))
	}
}

// contextFault classifies a finished context.
func contextFault(cmd protocol.Command, err error) Reply {
	if errors.Is(err, context.DeadlineExceeded) {
		return Fault(FaultTimeout, cmd, err)
	}
	return Fault(FaultCancelled, cmd, err)
}
