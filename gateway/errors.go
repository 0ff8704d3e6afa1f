package gateway

import (
	"errors"
	"fmt"

	"relaygate/protocol"
)

// ErrNotFound matches every *NotFoundError through errors.Is.
var ErrNotFound = errors.New("not found")

// NotFoundError reports that a keyed operation came back without a value.
type NotFoundError struct {
	Resource string
	ID       int64
	// Message overrides the default "<Resource> with ID <ID> not found".
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s with ID %d not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InfrastructureError wraps a transport fault or an undecodable reply.
type InfrastructureError struct {
	Command protocol.Command
	Err     error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }
