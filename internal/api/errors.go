package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openhearth/hearth-core/internal/backend"
	"github.com/openhearth/hearth-core/internal/device"
)

// Error is the standard JSON error response body.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned by the API.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeNotFound      = "not_found"
	ErrCodeUnsupported   = "unsupported"
	ErrCodeBackendFailed = "backend_unreachable"
	ErrCodeInternal      = "internal_error"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a standard JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}

// writeDomainError maps typed errors from the registry and backends to
// HTTP status codes. Unknown errors become a 500 with the detail logged
// by the caller, not leaked to the client.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, backend.ErrInvalidValue):
		writeBadRequest(w, err.Error())
	case errors.Is(err, backend.ErrUnsupported):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeUnsupported, err.Error())
	case errors.Is(err, backend.ErrUnreachable):
		writeError(w, http.StatusBadGateway, ErrCodeBackendFailed, err.Error())
	default:
		writeInternalError(w)
	}
}
