// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"
)

// Error codes shared by every handler. Clients switch on these, not on messages.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeTenantRequired  = "tenant_required"
	CodeTenantInactive  = "tenant_inactive"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeValidation      = "validation_failed"
	CodeConflict        = "conflict"
	CodeBadRequest      = "bad_request"
	CodeInternal        = "internal_error"
	CodeUnavailable     = "unavailable"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error     string            `json:"error"`
	Message   string            `json:"message,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Module    string            `json:"module,omitempty"`
	Operation string            `json:"operation,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorResponse writes a fully populated error body
func WriteErrorResponse(w http.ResponseWriter, status int, resp ErrorResponse) {
	WriteJSON(w, status, resp)
}

// WriteErrorMessage writes an error body with a code and a human message
func WriteErrorMessage(w http.ResponseWriter, status int, code, message string) {
	WriteErrorResponse(w, status, ErrorResponse{Error: code, Message: message})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, CodeBadRequest, message)
}

// WriteUnauthenticated writes 401 for requests with no identity
func WriteUnauthenticated(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, CodeUnauthenticated, message)
}

// WriteTenantRequired writes 400 for callers that have no tenant yet
func WriteTenantRequired(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusBadRequest, CodeTenantRequired,
		"user must be connected to an organization to access this resource")
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, CodeForbidden, message)
}

// WritePermissionDenied writes 403 naming the module and operation that were required
func WritePermissionDenied(w http.ResponseWriter, module, operation string) {
	WriteErrorResponse(w, http.StatusForbidden, ErrorResponse{
		Error:     CodeForbidden,
		Message:   "you do not have permission to " + operation + " " + module,
		Module:    module,
		Operation: operation,
	})
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, CodeNotFound, message)
}

// WriteValidationErrors writes 422 with one message per offending field
func WriteValidationErrors(w http.ResponseWriter, fields map[string]string) {
	WriteErrorResponse(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:   CodeValidation,
		Message: "validation failed",
		Details: fields,
	})
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusConflict, CodeConflict, message)
}

// WriteInternalError writes 500 without leaking the underlying error text
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusInternalServerError, CodeInternal, message)
}

// WriteServiceUnavailable writes a service unavailable error (503)
func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusServiceUnavailable, CodeUnavailable, message)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
