// Package api serves the local HTTP API and the MCP tool server over the
// entity collections, the assist service and the app settings.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/localdesk/internal/assist"
	"github.com/kalambet/localdesk/internal/domain"
	"github.com/kalambet/localdesk/internal/settings"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	// maxUploadSize bounds multipart and CSV bodies; the gateway applies
	// its own attachment limit after that.
	maxUploadSize = 32 << 20
)

// Deps holds the dependencies of the HTTP handlers.
type Deps struct {
	Registry *domain.Registry
	Assist   *assist.Service
	Settings *settings.Manager
	Token    string
	// AllowedOrigins lists CORS origins for the browser UI.
	AllowedOrigins []string
	// Metrics is served on /metrics. Nil disables the route.
	Metrics prometheus.Gatherer
}

// NewHandler returns the HTTP API. Every route except /health requires the
// bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		if deps.Metrics != nil {
			r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
		}

		r.Get("/collections", handleListCollections(deps))
		r.Route("/collections/{name}", func(r chi.Router) {
			r.Get("/", handleView(deps))
			r.Post("/", handleCreate(deps))
			r.Get("/export.csv", handleExport(deps))
			r.Post("/import", handleImport(deps))
			r.Get("/{id}", handleGet(deps))
			r.Patch("/{id}", handleUpdate(deps))
			r.Delete("/{id}", handleDelete(deps))
		})

		r.Post("/assist", handleAssistSubmit(deps))
		r.Get("/assist/{id}", handleAssistGet(deps))

		r.Get("/settings", handleGetSettings(deps))
		r.Patch("/settings", handlePatchSettings(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
