// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Error Responses
//
// Every error body has the same shape so clients can switch on the code:
//
//	{"error": "forbidden", "message": "...", "module": "users", "operation": "delete"}
//
// Validation failures carry one message per field under "details" and use 422.
//
// # Request Parsing
//
//	var req CreateRoleRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//	from, err := httputil.ParseQueryTime(r, "date_from", false)
//	to, err := httputil.ParseQueryTime(r, "date_to", true)
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
