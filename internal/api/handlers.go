package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	dberrors "github.com/puhuaqiang/db-query-tool/internal/errors"
	"github.com/puhuaqiang/db-query-tool/internal/export"
)

// Handlers provides the HTTP handlers of the connection API.
type Handlers struct {
	registry Registry
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(registry Registry, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{registry: registry, logger: logger}
}

// AddConnectionRequest is the body of PUT /api/v1/dbs/{name}.
type AddConnectionRequest struct {
	URL string `json:"url"`
}

// UpdateFieldRequest is the body of PATCH .../fields/{field}.
type UpdateFieldRequest struct {
	Label string `json:"label"`
}

// QueryRequest is the body of the query and export endpoints.
type QueryRequest struct {
	SQL   string `json:"sql"`
	Limit int    `json:"limit,omitempty"`
}

// Health reports that the server is up.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ListConnections returns every stored connection.
func (h *Handlers) ListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.registry.ListConnections(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conns)
}

// AddConnection registers or replaces a connection. Any failure to reach
// the database is the caller's problem, so it is reported as 400.
func (h *Handlers) AddConnection(w http.ResponseWriter, r *http.Request) {
	var req AddConnectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		h.writeError(w, r, dberrors.New(dberrors.ErrTypeValidation, "url is required"))
		return
	}

	detail, err := h.registry.AddConnection(r.Context(), chi.URLParam(r, "name"), req.URL)
	if err != nil {
		status := 0
		if dberrors.IsType(err, dberrors.ErrTypeConnection) {
			status = http.StatusBadRequest
		}
		h.writeErrorStatus(w, r, err, status)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// GetConnection returns a connection with its metadata.
func (h *Handlers) GetConnection(w http.ResponseWriter, r *http.Request) {
	detail, err := h.registry.GetConnection(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// DeleteConnection removes a connection.
func (h *Handlers) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.DeleteConnection(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshMetadata re-reads a connection's schema.
func (h *Handlers) RefreshMetadata(w http.ResponseWriter, r *http.Request) {
	detail, err := h.registry.RefreshMetadata(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// UpdateFieldLabel sets a field's display label.
func (h *Handlers) UpdateFieldLabel(w http.ResponseWriter, r *http.Request) {
	var req UpdateFieldRequest
	if !h.decode(w, r, &req) {
		return
	}

	field, err := h.registry.UpdateFieldLabel(r.Context(),
		chi.URLParam(r, "name"), chi.URLParam(r, "table"), chi.URLParam(r, "field"), req.Label)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, field)
}

// Query runs a read-only statement.
func (h *Handlers) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !h.decode(w, r, &req) {
		return
	}

	outcome, err := h.registry.Query(r.Context(), chi.URLParam(r, "name"), req.SQL, req.Limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// Export runs a statement and returns its result as a file download.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req QueryRequest
	if !h.decode(w, r, &req) {
		return
	}

	var buf bytes.Buffer
	if err := h.registry.Export(r.Context(), &buf, format, chi.URLParam(r, "name"), req.SQL, req.Limit); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename="+format.Filename())
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// decode reads a JSON body into v, answering 400 when it is malformed.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, r, dberrors.Wrap(err, dberrors.ErrTypeValidation, "invalid request body"))
		return false
	}
	return true
}
