// Package backend is the command handler run by relayd. A Router serves one
// domain: it decodes each command's payload, calls the store, and returns the
// resource or a *NotFoundError when the store matched no row.
package backend

import (
	"context"
	"fmt"

	"relaygate/cache"
	"relaygate/protocol"
	"relaygate/store"
)

// NotFoundError is returned when a keyed command matched no row. The
// transport server sends it as an absent reply.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Resource, e.ID)
}

func (e *NotFoundError) NotFound() bool { return true }

type route func(ctx context.Context, env *protocol.Envelope) (any, error)

// Router maps the commands of one domain to handler functions. It implements
// transport.Handler.
type Router struct {
	domain string
	routes map[protocol.Command]route
}

// New builds the router for domain ("users" or "products"). c may be nil.
func New(domain string, db *store.DB, c *cache.RedisStore) (*Router, error) {
	r := &Router{domain: domain, routes: make(map[protocol.Command]route)}
	switch domain {
	case protocol.DomainUsers:
		h := &users{db: db, cache: c}
		r.routes[protocol.CreateUser] = decodeAndCall(h.create)
		r.routes[protocol.FindAllUsers] = decodeAndCall(h.findAll)
		r.routes[protocol.FindOneUser] = decodeAndCall(h.findOne)
		r.routes[protocol.UpdateUser] = decodeAndCall(h.update)
		r.routes[protocol.RemoveUser] = decodeAndCall(h.remove)
	case protocol.DomainProducts:
		h := &products{db: db, cache: c}
		r.routes[protocol.CreateProduct] = decodeAndCall(h.create)
		r.routes[protocol.FindAllProducts] = decodeAndCall(h.findAll)
		r.routes[protocol.FindOneProduct] = decodeAndCall(h.findOne)
		r.routes[protocol.UpdateProduct] = decodeAndCall(h.update)
		r.routes[protocol.UpdateProductStock] = decodeAndCall(h.updateStock)
		r.routes[protocol.RemoveProduct] = decodeAndCall(h.remove)
	default:
		return nil, fmt.Errorf("unknown domain %q", domain)
	}
	return r, nil
}

func (r *Router) Domain() string { return r.domain }

// Handle implements transport.Handler.
func (r *Router) Handle(ctx context.Context, env *protocol.Envelope) (any, error) {
	fn, ok := r.routes[env.Command()]
	if !ok {
		return nil, fmt.Errorf("%s backend: unknown command %q", r.domain, env.Type)
	}
	return fn(withActor(ctx, env.Src), env)
}

// decodeAndCall unmarshals the payload and calls fn with it.
func decodeAndCall[T any](fn func(context.Context, T) (any, error)) route {
	return func(ctx context.Context, env *protocol.Envelope) (any, error) {
		var p T
		if err := env.DecodePayload(&p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		return fn(ctx, p)
	}
}
