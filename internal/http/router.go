// Package httpapi assembles the private HTTP listener: the portal callback,
// a health probe and the Prometheus scrape endpoint.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"casbot/pkg/platform/httputil"
	"casbot/pkg/platform/middleware/metadata"
	"casbot/pkg/platform/middleware/request"
)

// maxBodyBytes bounds callback bodies; the portal posts three short fields.
const maxBodyBytes = 64 << 10

// Registrar mounts routes on the router.
type Registrar interface {
	Register(r chi.Router)
}

// ReadyFunc reports whether dependencies are usable.
type ReadyFunc func() bool

// Deps are the collaborators of the private listener.
type Deps struct {
	Callback Registrar
	Gatherer prometheus.Gatherer
	Ready    ReadyFunc
	Logger   *slog.Logger
}

// NewRouter wires all private endpoints. Static routes are registered
// before the callback's /{token} pattern; chi prefers them on conflict.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientIP)
	r.Use(middleware.Recoverer)
	if deps.Logger != nil {
		r.Use(request.AccessLog(deps.Logger))
	}
	r.Use(request.MaxBodySize(maxBodyBytes))

	r.Get("/healthz", healthz(deps.Ready))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	if deps.Callback != nil {
		deps.Callback.Register(r)
	}
	return r
}

func healthz(ready ReadyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "initializing"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
