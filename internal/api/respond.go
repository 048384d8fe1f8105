package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	dberrors "github.com/puhuaqiang/db-query-tool/internal/errors"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string  `json:"error"`
	Message string  `json:"message"`
	Detail  *string `json:"detail"`
}

// statusFor maps an error type to its HTTP status.
func statusFor(errType dberrors.ErrorType) int {
	switch errType {
	case dberrors.ErrTypeUnsupportedEngine, dberrors.ErrTypeValidation:
		return http.StatusBadRequest
	case dberrors.ErrTypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.writeErrorStatus(w, r, err, 0)
}

// writeErrorStatus writes err as an ErrorResponse. A zero status derives
// it from the error type.
func (h *Handlers) writeErrorStatus(w http.ResponseWriter, r *http.Request, err error, status int) {
	resp := ErrorResponse{Error: string(dberrors.ErrTypeInternal), Message: err.Error()}
	if structured, ok := dberrors.As(err); ok {
		resp.Error = string(structured.Type)
		resp.Message = structured.Message
		if d := structured.Detail(); d != "" {
			resp.Detail = &d
		}
	}
	if status == 0 {
		status = statusFor(dberrors.ErrorType(resp.Error))
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	writeJSON(w, status, resp)
}
