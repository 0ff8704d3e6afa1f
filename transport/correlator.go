package transport

import (
	"sync"

	"relaygate/protocol"
)

// correlator matches broker replies to the Send waiting on them.
type correlator struct {
	mu      sync.Mutex
	pending map[string]chan *protocol.Envelope
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[string]chan *protocol.Envelope)}
}

// register returns the channel the reply to command id will be delivered on.
func (c *correlator) register(id string) <-chan *protocol.Envelope {
	ch := make(chan *protocol.Envelope, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

func (c *correlator) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// resolve delivers reply to its waiter. It returns false when nobody is
// waiting, which happens for late or duplicate replies.
func (c *correlator) resolve(reply *protocol.Envelope) bool {
	c.mu.Lock()
	ch, ok := c.pending[reply.CorID]
	if ok {
		delete(c.pending, reply.CorID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- reply
	return true
}

func (c *correlator) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
