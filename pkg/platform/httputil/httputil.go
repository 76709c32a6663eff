// Package httputil writes JSON and error responses for the private HTTP
// endpoints.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"casbot/pkg/platform/sentinel"
)

// Error codes returned in the "error" field.
const (
	CodeBadRequest  = "bad_request"
	CodeNotFound    = "not_found"
	CodeUnavailable = "unavailable"
	CodeInternal    = "internal_error"
)

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// BadRequestError carries a description safe to show to the caller.
type BadRequestError struct {
	Description string
}

func (e *BadRequestError) Error() string {
	return "bad request: " + e.Description
}

// BadRequest returns an error that WriteError renders as 400.
func BadRequest(description string) error {
	return &BadRequestError{Description: description}
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status code. Only bad requests expose a
// description; everything else is reduced to its code.
func WriteError(w http.ResponseWriter, err error) {
	status, body := classify(err)
	WriteJSON(w, status, body)
}

// StatusFor returns the status code WriteError would use for err.
func StatusFor(err error) int {
	status, _ := classify(err)
	return status
}

func classify(err error) (int, errorBody) {
	var bad *BadRequestError
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest, errorBody{Error: CodeBadRequest, Description: bad.Description}
	case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrExpired), errors.Is(err, sentinel.ErrAlreadyUsed):
		return http.StatusNotFound, errorBody{Error: CodeNotFound}
	case errors.Is(err, sentinel.ErrUnavailable):
		return http.StatusInternalServerError, errorBody{Error: CodeUnavailable}
	default:
		return http.StatusInternalServerError, errorBody{Error: CodeInternal}
	}
}
