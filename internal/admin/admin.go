// Package admin exposes the breaker manual overrides, tool registry
// introspection, and a Prometheus scrape endpoint over HTTP, per
// SPEC_FULL.md's supplemented admin surface — §4.2 requires force_open/
// force_closed/reset be callable only from admin interfaces, never the
// hot path. Grounded on the teacher's internal/compliance.APIHandler
// chi-routed handler style.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cortexlabs/cortexcache/internal/breaker"
	"github.com/cortexlabs/cortexcache/internal/cache"
	"github.com/cortexlabs/cortexcache/internal/toolregistry"
)

// Handler serves the admin HTTP surface.
type Handler struct {
	breaker  *breaker.Breaker
	cache    *cache.Store
	registry *toolregistry.Registry
	log      *zap.Logger
}

// New constructs a Handler over the given collaborators.
func New(brk *breaker.Breaker, store *cache.Store, registry *toolregistry.Registry, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{breaker: brk, cache: store, registry: registry, log: log.Named("admin")}
}

// Routes mounts the admin surface onto a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/breaker", func(r chi.Router) {
		r.Get("/", h.handleBreakerStatus)
		r.Post("/force-open", h.handleForceOpen)
		r.Post("/force-closed", h.handleForceClosed)
		r.Post("/reset", h.handleReset)
	})

	r.Route("/cache", func(r chi.Router) {
		r.Get("/metrics", h.handleCacheMetrics)
		r.Post("/invalidate", h.handleInvalidate)
	})

	r.Get("/tools", h.handleListTools)

	return r
}

func (h *Handler) handleBreakerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.breaker.Metrics())
}

func (h *Handler) handleForceOpen(w http.ResponseWriter, r *http.Request) {
	h.breaker.ForceOpen()
	h.log.Info("breaker force-opened via admin API")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleForceClosed(w http.ResponseWriter, r *http.Request) {
	h.breaker.ForceClosed()
	h.log.Info("breaker force-closed via admin API")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.breaker.Reset()
	h.log.Info("breaker reset via admin API")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCacheMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Metrics())
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	count := h.cache.Invalidate(prefix)
	writeJSON(w, http.StatusOK, map[string]int{"invalidated": count})
}

func (h *Handler) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Names())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
