package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Address identifies a message source or destination.
type Address struct {
	Role string `json:"role"`
	Node string `json:"node"`
}

// Reply status values carried in Envelope.Status.
const (
	StatusValue  = "value"
	StatusAbsent = "absent"
	StatusError  = "error"
)

// Envelope is the wire wrapper for every command and reply.
//
// A command carries its Command id in Type and, for broker transports, the
// topic the reply should be published on in ReplyTo. A reply carries the
// command id it answers in Type, the command's ID in CorID, and one of the
// Status* values.
type Envelope struct {
	Version   int             `json:"v"`
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Src       Address         `json:"src"`
	Dst       Address         `json:"dst"`
	Timestamp time.Time       `json:"ts"`
	ExpiresAt time.Time       `json:"exp"`
	CorID     string          `json:"cor,omitempty"`
	ReplyTo   string          `json:"rto,omitempty"`
	Status    string          `json:"status,omitempty"`
	Error     string          `json:"err,omitempty"`
	Payload   json.RawMessage `json:"p,omitempty"`
}

// RawHeader is the minimal decode for routing decisions before full payload decode.
type RawHeader struct {
	Version   int       `json:"v"`
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Dst       Address   `json:"dst"`
	ExpiresAt time.Time `json:"exp"`
	CorID     string    `json:"cor,omitempty"`
}

// NewCommand creates an outbound command envelope with the default TTL for cmd.
func NewCommand(cmd Command, src, dst Address, payload any) (*Envelope, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Envelope{
		Version:   Version,
		Type:      string(cmd),
		ID:        uuid.New().String(),
		Src:       src,
		Dst:       dst,
		Timestamp: now,
		ExpiresAt: now.Add(DefaultTTLFor(cmd)),
		Payload:   p,
	}, nil
}

// NewReply creates a reply to req. A nil value produces an absent reply.
func NewReply(req *Envelope, src Address, value any) (*Envelope, error) {
	env := newReply(req, src)
	if value == nil {
		env.Status = StatusAbsent
		return env, nil
	}
	p, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	env.Status = StatusValue
	env.Payload = p
	return env, nil
}

// NewAbsentReply creates a reply saying the command produced no value.
// detail is informational only.
func NewAbsentReply(req *Envelope, src Address, detail string) *Envelope {
	env := newReply(req, src)
	env.Status = StatusAbsent
	env.Error = detail
	return env
}

// NewErrorReply creates a reply for a command whose handler failed.
func NewErrorReply(req *Envelope, src Address, err error) *Envelope {
	env := newReply(req, src)
	env.Status = StatusError
	env.Error = err.Error()
	return env
}

func newReply(req *Envelope, src Address) *Envelope {
	now := time.Now().UTC()
	return &Envelope{
		Version:   Version,
		Type:      req.Type,
		ID:        uuid.New().String(),
		Src:       src,
		Dst:       req.Src,
		Timestamp: now,
		ExpiresAt: now.Add(ReplyTTL),
		CorID:     req.ID,
	}
}

// Command returns the envelope's command id.
func (e *Envelope) Command() Command { return Command(e.Type) }

// Encode marshals the envelope to JSON.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodePayload unmarshals the raw payload into the given target.
func (e *Envelope) DecodePayload(target any) error {
	return json.Unmarshal(e.Payload, target)
}

// Decode parses a full envelope.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
