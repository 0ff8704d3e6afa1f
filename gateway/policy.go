package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"

	"relaygate/protocol"
	"relaygate/transport"
)

// absence says what an Absent reply means for a command.
type absence int

const (
	absentNotFound   absence = iota // keyed lookup missed
	absentNoResponse                // create produced nothing
	absentEmpty                     // collection is empty
	absentSuccess                   // already gone
)

var absencePolicy = map[protocol.Command]absence{
	protocol.CreateUser:   absentNoResponse,
	protocol.FindAllUsers: absentEmpty,
	protocol.FindOneUser:  absentNotFound,
	protocol.UpdateUser:   absentNotFound,
	protocol.RemoveUser:   absentSuccess,

	protocol.CreateProduct:      absentNoResponse,
	protocol.FindAllProducts:    absentEmpty,
	protocol.FindOneProduct:     absentNotFound,
	protocol.UpdateProduct:      absentNotFound,
	protocol.UpdateProductStock: absentNotFound,
	protocol.RemoveProduct:      absentSuccess,
}

// dispatch sends one command and translates the reply. A value is decoded
// into out when out is non-nil. An absorbed Absent leaves out untouched and
// returns nil.
func dispatch(ctx context.Context, t transport.Transport, cmd protocol.Command, resource string, id int64, payload, out any) error {
	reply := t.Send(ctx, cmd, payload)
	switch reply.Outcome {
	case transport.OutcomeValue:
		if out == nil {
			return nil
		}
		if err := reply.Decode(out); err != nil {
			return &InfrastructureError{Command: cmd, Err: fmt.Errorf("decode reply: %w", err)}
		}
		return nil
	case transport.OutcomeAbsent:
		return onAbsent(cmd, resource, id)
	default:
		var err error = errors.New("reply has no outcome")
		if reply.Err != nil {
			err = reply.Err
		}
		log.Printf("gateway: %s: %v", cmd, err)
		return &InfrastructureError{Command: cmd, Err: err}
	}
}

func onAbsent(cmd protocol.Command, resource string, id int64) error {
	switch absencePolicy[cmd] {
	case absentEmpty, absentSuccess:
		return nil
	case absentNoResponse:
		return &NotFoundError{Resource: resource, Message: "backend produced no response"}
	default:
		return &NotFoundError{Resource: resource, ID: id}
	}
}
