package api

import (
	"github.com/go-chi/chi/v5"
)

// SetupRoutes registers the health check and the connection routes.
func SetupRoutes(router chi.Router, h *Handlers) {
	router.Get("/health", h.Health)

	router.Route("/api/v1/dbs", func(r chi.Router) {
		r.Get("/", h.ListConnections)
		r.Put("/{name}", h.AddConnection)
		r.Get("/{name}", h.GetConnection)
		r.Delete("/{name}", h.DeleteConnection)
		r.Post("/{name}/refresh", h.RefreshMetadata)
		r.Patch("/{name}/tables/{table}/fields/{field}", h.UpdateFieldLabel)
		r.Post("/{name}/query", h.Query)
		r.Post("/{name}/query/export", h.Export)
	})
}
