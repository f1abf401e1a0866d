// Package shared holds response helpers used by every HTTP handler so error
// bodies and JSON headers stay uniform across domains.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "vigil/pkg/domainerrors"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError translates a coded domain error into its HTTP status and body.
// Errors without a code fall back to 500 with a generic message so internals
// never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	var de *dErrors.Error
	if !errors.As(err, &de) {
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:       string(dErrors.CodeInternal),
			Description: "internal error",
		})
		return
	}
	WriteJSON(w, dErrors.ToHTTPStatus(de.Code), ErrorResponse{
		Error:       string(de.Code),
		Description: de.Message,
	})
}
