// Package http provides HTTP server and handler implementations.
//
// This file implements the builder for the JSON envelope every API
// endpoint answers with: {"success": bool, "error": msg, ...}.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"finance/internal/core"
	"finance/internal/log"
)

const (
	msgInternal     = "internal server error"
	msgRateLimited  = "rate limit exceeded, please try again later"
	msgBadBody      = "invalid request body"
	msgNotAvailable = "service not ready"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	fields     map[string]any
	headers    map[string]string
}

// NewJSONResponse creates a successful response with a 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		fields:     map[string]any{"success": true},
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Field sets a top-level key of the body.
func (b *JSONResponseBuilder) Field(key string, value any) *JSONResponseBuilder {
	b.fields[key] = value
	return b
}

// Data sets the "data" key.
func (b *JSONResponseBuilder) Data(value any) *JSONResponseBuilder {
	return b.Field("data", value)
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.fields)
}

// ErrorResponse creates a failed response with a user-facing message.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Field("success", false).
		Field("error", message)
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, msgInternal)
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, msgRateLimited)
}

// writeError classifies err and writes the matching envelope. Validation
// failures keep their message; everything else is logged and hidden unless
// exposeDetail is set.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if msg, ok := validationMessage(err); ok {
		log.FromContext(r.Context()).InfoContext(r.Context(), "Request rejected",
			log.FieldOperation, op,
			log.FieldErrorType, log.ErrorTypeValidation,
			log.FieldError, err.Error())
		BadRequestError(msg).Write(w)
		return
	}

	log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
		log.NewFields().WithOperation(op).WithError(err).ToSlice()...)
	resp := InternalServerError()
	if s.exposeDetail {
		resp.Field("detail", err.Error())
	}
	resp.Write(w)
}

// validationMessage returns the user-facing text of an input error.
func validationMessage(err error) (string, bool) {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return verr.Message, true
	}
	if errors.Is(err, core.ErrInvalidInput) {
		return err.Error(), true
	}
	return "", false
}
