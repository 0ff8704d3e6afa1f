package protocol

import (
	"encoding/json"
	"log"
)

// FilterFunc returns true if the message should be processed.
type FilterFunc func(hdr *RawHeader) bool

// HandlerFunc receives each envelope that passed expiry and filter checks.
type HandlerFunc func(env *Envelope)

// Ingestor performs two-phase decode of raw broker messages: the routing
// header first, then the full envelope for messages that survive the checks.
type Ingestor struct {
	handle HandlerFunc
	filter FilterFunc
}

// NewIngestor creates an ingestor with the given handler and filter.
func NewIngestor(handle HandlerFunc, filter FilterFunc) *Ingestor {
	return &Ingestor{
		handle: handle,
		filter: filter,
	}
}

// HandleRaw is the entry point for raw message bytes from the messaging layer.
func (ing *Ingestor) HandleRaw(data []byte) {
	// Phase 1: decode routing header only
	var hdr RawHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		log.Printf("protocol: header decode error: %v", err)
		return
	}

	if IsExpiredHeader(&hdr) {
		log.Printf("protocol: dropping expired message %s (type=%s)", hdr.ID, hdr.Type)
		return
	}

	if ing.filter != nil && !ing.filter(&hdr) {
		return
	}

	// Phase 2: full envelope decode
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("protocol: envelope decode error: %v", err)
		return
	}
	ing.handle(&env)
}
