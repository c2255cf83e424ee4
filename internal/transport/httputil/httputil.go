// Package httputil translates transport-agnostic domain errors into HTTP
// responses with a consistent JSON envelope.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "storefront/pkg/domain-errors"
)

// WriteJSON encodes response with the given status.
func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// best-effort fallback; don't override status for the caller
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// WriteError maps a domain error to an HTTP status and writes the envelope.
// The message field carries the domain message verbatim so interceptors on
// the other end can pattern-match it.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"error": string(dErrors.CodeInternal),
		})
		return
	}

	response := map[string]string{"error": string(domainErr.Code)}
	if domainErr.Message != "" {
		response["message"] = domainErr.Message
	}
	WriteJSON(w, CodeToHTTPStatus(domainErr.Code), response)
}

// CodeToHTTPStatus translates domain error codes to HTTP status codes.
func CodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeInvalidInput, dErrors.CodeDecodeFailed:
		return http.StatusBadRequest
	case dErrors.CodeInvalidCredentials, dErrors.CodeUnauthorized, dErrors.CodeSessionInvalidated:
		return http.StatusUnauthorized
	case dErrors.CodeUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
