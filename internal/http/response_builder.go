// Package http provides the JSON API, the live dashboard stream and the
// CSV export.
//
// This file implements a small builder for JSON responses and the mapping
// from domain errors to status codes.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"khorcha/internal/core"
	"khorcha/internal/engine"
	"khorcha/internal/services"
	"khorcha/internal/storage"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body sends none.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// errorBody is the shape of every error response.
type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ErrorResponse creates a standard {"error": message} response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

var validationErrors = []error{
	core.ErrEmptyName,
	core.ErrNameTooShort,
	core.ErrNameTooLong,
	core.ErrInvalidAmount,
	core.ErrInvalidCategory,
	core.ErrInvalidPaymentMethod,
	core.ErrInvalidDate,
	core.ErrInvalidDay,
	core.ErrInvalidMonth,
	core.ErrFutureDate,
}

// IsValidationError reports whether err rejects user input.
func IsValidationError(err error) bool {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return true
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// StatusFor maps an error to its HTTP status. Not-found wins over a failed
// command because the store reports a missing record as a failed command.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, engine.ErrNothingToExport):
		return http.StatusNotFound
	case IsValidationError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrCommandFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFrom builds the response for err. Validation messages are shown to
// the client; store and internal failures are not.
func ErrorFrom(err error) *JSONResponseBuilder {
	status := StatusFor(err)
	switch status {
	case http.StatusNotFound:
		if errors.Is(err, engine.ErrNothingToExport) {
			return ErrorResponse(status, engine.ErrNothingToExport.Error())
		}
		return ErrorResponse(status, "expense not found")
	case http.StatusUnprocessableEntity:
		body := errorBody{Error: "validation failed", Fields: fieldErrors(err)}
		if len(body.Fields) == 0 {
			body.Error = err.Error()
		}
		return NewJSONResponse().Status(status).Body(body)
	case http.StatusBadGateway:
		return ErrorResponse(status, "the expense store could not apply the change")
	default:
		return ErrorResponse(status, "internal error")
	}
}

// fieldErrors turns validator errors into field -> message pairs.
func fieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fieldErrorToString(fe)
	}
	return out
}

func fieldErrorToString(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "amount":
		return "must be a positive amount"
	case "notblank":
		return "must not be blank"
	default:
		return "is invalid"
	}
}
