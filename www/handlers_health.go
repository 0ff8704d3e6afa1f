package www

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

const pingTimeout = 2 * time.Second

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	backends := make(map[string]bool, len(h.backends))
	status := "ok"
	for name, p := range h.backends {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		err := p.Ping(ctx)
		cancel()
		backends[name] = err == nil
		if err != nil {
			status = "degraded"
		}
	}
	jsonOK(w, map[string]any{
		"status":   status,
		"backends": backends,
	})
}
