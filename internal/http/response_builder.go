// Package http serves the fee ledger as a JSON API.
//
// This file holds the response side: a small fluent builder for JSON
// responses and the mapping from domain error kinds to status codes.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vickym250/jnschool/internal/core"
	"github.com/vickym250/jnschool/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse(body any) *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		body:       body,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header sets a custom response header.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Write encodes the body and writes the response.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.body == nil || b.statusCode == http.StatusNoContent {
		return
	}
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error  string      `json:"error"`
	Code   string      `json:"code,omitempty"`
	Fields FieldErrors `json:"fields,omitempty"`
}

// ErrorResponse creates a builder for an error body.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse(ErrorBody{Error: message, Code: code}).Status(statusCode)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrInvalidSelection):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with the status of its kind. Unclassified errors
// are logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		sl := log.NewStructuredLogger(log.FromContext(r.Context()))
		sl.LogError(r.Context(), "Request failed", err, operation,
			log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", ""))
		ErrorResponse(status, "INTERNAL", "internal error").Write(w)
		return
	}

	body := ErrorBody{Error: err.Error(), Code: core.Kind(err)}
	var verr *validationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields()
	}
	NewJSONResponse(body).Status(status).Write(w)
}
