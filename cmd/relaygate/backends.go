package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"relaygate/config"
	"relaygate/messaging"
	"relaygate/protocol"
	"relaygate/transport"
	"relaygate/www"
)

// backendLink is the gateway's connection to one backend.
type backendLink struct {
	t     transport.Transport
	ping  www.Pinger
	close func() error
}

func connectBackend(domain string, svc config.ServiceConfig, self protocol.Address, msg config.MessagingConfig, bus *messaging.Client) (*backendLink, error) {
	dst := protocol.Address{Role: protocol.RoleBackend, Node: domain}

	switch svc.Transport {
	case config.TransportBroker:
		if bus == nil {
			return nil, errors.New("broker transport requires messaging")
		}
		replyTopic := msg.ReplyTopic(self.Node + "." + domain)
		c, err := transport.NewBrokerClient(bus, msg.CommandTopic(domain), replyTopic, self, dst, svc.Timeout)
		if err != nil {
			return nil, err
		}
		log.Printf("relaygate: %s via %s topic %s", domain, msg.Backend, msg.CommandTopic(domain))
		return &backendLink{
			t: c,
			ping: www.PingFunc(func(context.Context) error {
				if !bus.IsConnected() {
					return errors.New("messaging not connected")
				}
				return nil
			}),
			close: func() error { return nil },
		}, nil
	case config.TransportGRPC:
		c, err := transport.NewGRPCClient(svc.Addr(), self, dst, svc.Timeout)
		if err != nil {
			return nil, err
		}
		log.Printf("relaygate: %s via grpc %s", domain, svc.Addr())
		return &backendLink{t: c, ping: c, close: c.Close}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", svc.Transport)
	}
}
