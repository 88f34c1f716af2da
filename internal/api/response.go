package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/focuspact/focuspact/internal/bridge"
	"github.com/focuspact/focuspact/internal/limits"
	"github.com/focuspact/focuspact/internal/storage"
	"github.com/focuspact/focuspact/internal/usage"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"internal","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	writeRaw(w, statusCode, buf.Bytes())
}

func writeRaw(w http.ResponseWriter, statusCode int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

// writeError writes an error response. kind is the machine-readable error
// name clients switch on.
func writeError(w http.ResponseWriter, statusCode int, kind, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   kind,
		Message: message,
		Code:    statusCode,
	})
}

// classify maps an operation error onto a status code and error kind.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, usage.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, usage.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, storage.ErrAuthRequired):
		return http.StatusUnauthorized, "auth_required"
	case errors.Is(err, storage.ErrTransport):
		return http.StatusBadGateway, "transport_error"
	case errors.Is(err, limits.ErrInvalidType):
		return http.StatusBadRequest, "invalid_type"
	case errors.Is(err, limits.ErrClosed):
		return http.StatusServiceUnavailable, "closed"
	case errors.Is(err, bridge.ErrUnsupportedVersion):
		return http.StatusBadRequest, "unsupported_version"
	case errors.Is(err, bridge.ErrInvalidPayload):
		return http.StatusBadRequest, "invalid_payload"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeFailure writes err using classify. Internal errors are not echoed.
func writeFailure(w http.ResponseWriter, err error, message string) {
	status, kind := classify(err)
	if status != http.StatusInternalServerError {
		message = message + ": " + err.Error()
	}
	writeError(w, status, kind, message)
}
