package transport

import (
	"context"
	"fmt"
	"log"
	"time"

	"relaygate/protocol"
)

// Bus is the publish/subscribe surface the broker transport runs on.
// messaging.Client implements it over Kafka or MQTT. Publish must return
// once ctx is done.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, handler func(payload []byte)) error
}

// BrokerClient sends commands by publishing them to a backend's command
// topic and waits for the correlated reply on its own reply topic.
type BrokerClient struct {
	bus          Bus
	commandTopic string
	replyTopic   string
	src          protocol.Address
	dst          protocol.Address
	timeout      time.Duration
	pending      *correlator
}

// NewBrokerClient subscribes to replyTopic and returns a client publishing
// to commandTopic. replyTopic must be private to this client.
func NewBrokerClient(bus Bus, commandTopic, replyTopic string, src, dst protocol.Address, timeout time.Duration) (*BrokerClient, error) {
	c := &BrokerClient{
		bus:          bus,
		commandTopic: commandTopic,
		replyTopic:   replyTopic,
		src:          src,
		dst:          dst,
		timeout:      timeout,
		pending:      newCorrelator(),
	}
	ingestor := protocol.NewIngestor(c.handleReply, func(hdr *protocol.RawHeader) bool {
		return hdr.CorID != ""
	})
	if err := bus.Subscribe(replyTopic, ingestor.HandleRaw); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", replyTopic, err)
	}
	return c, nil
}

// Send implements Transport.
func (c *BrokerClient) Send(ctx context.Context, cmd protocol.Command, payload any) Reply {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	req, err := newCommand(ctx, cmd, c.src, c.dst, payload)
	if err != nil {
		return Fault(FaultProtocol, cmd, err)
	}
	req.ReplyTo = c.replyTopic
	data, err := req.Encode()
	if err != nil {
		return Fault(FaultProtocol, cmd, err)
	}

	wait := c.pending.register(req.ID)
	defer c.pending.forget(req.ID)

	if err := c.bus.Publish(ctx, c.commandTopic, data); err != nil {
		if ctx.Err() != nil {
			return contextFault(cmd, ctx.Err())
		}
		return Fault(FaultConnect, cmd, err)
	}

	select {
	case reply := <-wait:
		return fromReply(req, reply)
	case <-ctx.Done():
		return contextFault(cmd, ctx.Err())
	}
}

func (c *BrokerClient) handleReply(env *protocol.Envelope) {
	if !c.pending.resolve(env) {
		log.Printf("transport: dropping unmatched reply %s (cor=%s type=%s)", env.ID, env.CorID, env.Type)
	}
}

const replyPublishTimeout = 5 * time.Second

// BrokerServer consumes a domain's command topic and publishes each reply to
// the topic named by the command's ReplyTo.
type BrokerServer struct {
	bus     Bus
	topic   string
	handler Handler
	src     protocol.Address
}

func NewBrokerServer(bus Bus, topic string, handler Handler, src protocol.Address) *BrokerServer {
	return &BrokerServer{bus: bus, topic: topic, handler: handler, src: src}
}

// Start subscribes to the command topic. Expired commands are dropped
// before they reach the handler.
func (s *BrokerServer) Start() error {
	ingestor := protocol.NewIngestor(s.handleCommand, func(hdr *protocol.RawHeader) bool {
		return hdr.CorID == "" && protocol.Known(protocol.Command(hdr.Type))
	})
	if err := s.bus.Subscribe(s.topic, ingestor.HandleRaw); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, err)
	}
	log.Printf("transport: broker serving %s on %s", s.src.Node, s.topic)
	return nil
}

func (s *BrokerServer) handleCommand(env *protocol.Envelope) {
	if env.ReplyTo == "" {
		log.Printf("transport: dropping %s %s: no reply topic", env.Type, env.ID)
		return
	}
	ctx := context.Background()
	if !env.ExpiresAt.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, env.ExpiresAt)
		defer cancel()
	}
	reply := respond(ctx, s.handler, s.src, env)
	if reply.Status == protocol.StatusError {
		log.Printf("transport: %s %s failed: %s", env.Type, env.ID, reply.Error)
	}
	data, err := reply.Encode()
	if err != nil {
		log.Printf("transport: encode reply to %s: %v", env.ID, err)
		return
	}
	// Not bound to the command deadline: a late reply is dropped by the client.
	pubCtx, cancel := context.WithTimeout(context.Background(), replyPublishTimeout)
	defer cancel()
	if err := s.bus.Publish(pubCtx, env.ReplyTo, data); err != nil {
		log.Printf("transport: publish reply to %s: %v", env.ReplyTo, err)
	}
}
