// Package www is the gateway's HTTP surface: an explicit route table mapping
// each endpoint onto one operation service call.
package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"relaygate/config"
	"relaygate/gateway"
	"relaygate/metrics"
)

type Handlers struct {
	users    *gateway.UserService
	products *gateway.ProductService
	backends map[string]Pinger
}

// Options wires the router. Metrics and Backends may be nil.
type Options struct {
	Users    *gateway.UserService
	Products *gateway.ProductService
	Backends map[string]Pinger
	Metrics  *metrics.Metrics
	Web      config.WebConfig
}

// route is one endpoint. handle returns the response value; status is used
// when it succeeds.
type route struct {
	method  string
	pattern string
	status  int
	handle  func(*http.Request) (any, error)
}

func (h *Handlers) routes() []route {
	return []route{
		{http.MethodPost, "/users", http.StatusCreated, h.createUser},
		{http.MethodGet, "/users", http.StatusOK, h.listUsers},
		{http.MethodGet, "/users/{id}", http.StatusOK, h.getUser},
		{http.MethodPatch, "/users/{id}", http.StatusOK, h.updateUser},
		{http.MethodDelete, "/users/{id}", http.StatusNoContent, h.removeUser},

		{http.MethodPost, "/products", http.StatusCreated, h.createProduct},
		{http.MethodGet, "/products", http.StatusOK, h.listProducts},
		{http.MethodGet, "/products/{id}", http.StatusOK, h.getProduct},
		{http.MethodPatch, "/products/{id}", http.StatusOK, h.updateProduct},
		{http.MethodPatch, "/products/{id}/stock", http.StatusOK, h.updateProductStock},
		{http.MethodDelete, "/products/{id}", http.StatusNoContent, h.removeProduct},
	}
}

func NewRouter(opts Options) http.Handler {
	h := &Handlers{
		users:    opts.Users,
		products: opts.Products,
		backends: opts.Backends,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler(opts.Web.CORSOrigins))
	r.Use(tracing)
	if opts.Metrics != nil {
		r.Use(observe(opts.Metrics))
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Get("/health", h.apiHealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(newLimiter(opts.Web.RateLimit.RPS, opts.Web.RateLimit.Burst)))
		r.Use(requireToken(opts.Web.TokenHash))
		for _, rt := range h.routes() {
			r.Method(rt.method, rt.pattern, serve(rt))
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, "Cannot "+r.Method+" "+r.URL.Path, http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, "Cannot "+r.Method+" "+r.URL.Path, http.StatusMethodNotAllowed)
	})
	return r
}

// serve adapts a route to an http.Handler.
func serve(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := rt.handle(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if rt.status == http.StatusNoContent {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		jsonStatus(w, rt.status, v)
	}
}
