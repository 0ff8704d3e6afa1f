package transport

import (
	"context"
	"time"

	"relaygate/protocol"
)

// Observer records one completed Send.
type Observer interface {
	ObserveDispatch(command, outcome string, elapsed time.Duration)
}

type instrumented struct {
	next Transport
	obs  Observer
}

// Instrument wraps t so every Send is reported to obs. A nil obs returns t.
func Instrument(t Transport, obs Observer) Transport {
	if obs == nil {
		return t
	}
	return &instrumented{next: t, obs: obs}
}

func (i *instrumented) Send(ctx context.Context, cmd protocol.Command, payload any) Reply {
	start := time.Now()
	reply := i.next.Send(ctx, cmd, payload)
	outcome := reply.Outcome.String()
	if reply.Outcome == OutcomeFault && reply.Err != nil {
		outcome += "_" + string(reply.Err.Kind)
	}
	i.obs.ObserveDispatch(cmd.String(), outcome, time.Since(start))
	return reply
}
