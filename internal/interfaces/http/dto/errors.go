package dto

import (
	"net/http"

	"github.com/agrosupply/backend/internal/domain/shared"
)

// Domain error codes pass through unchanged; the transport adds its own.
const (
	CodeValidation         = shared.CodeValidation
	CodeNotFound           = shared.CodeNotFound
	CodeBlocked            = shared.CodeBlocked
	CodeInsufficientStock  = shared.CodeInsufficientStock
	CodeExceedsBalance     = shared.CodeExceedsBalance
	CodeNoPendingBalance   = shared.CodeNoPendingBalance
	CodeConflict           = shared.CodeConflict
	CodePartialFulfillment = shared.CodePartialFulfillment
	CodeInvalidTransition  = shared.CodeInvalidTransition

	// CodeBadRequest is used for malformed requests (bad JSON, bad path ids)
	CodeBadRequest = "BAD_REQUEST"
	// CodeRequestTooLarge is used when the body exceeds the configured limit
	CodeRequestTooLarge = "REQUEST_TOO_LARGE"
	// CodeRouteNotFound is used for unknown routes
	CodeRouteNotFound = "ROUTE_NOT_FOUND"
	// CodeMethodNotAllowed is used when the route exists under another method
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	// CodeTimeout is used when a request exceeds its deadline
	CodeTimeout = "REQUEST_TIMEOUT"
	// CodeInternal is used for anything unexpected; the cause is logged, not returned
	CodeInternal = "INTERNAL_ERROR"
	// CodeUnavailable is used by the health check when a dependency is down
	CodeUnavailable = "SERVICE_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// Caller mistakes -> 400 Bad Request
	CodeValidation:        http.StatusBadRequest,
	CodeInvalidTransition: http.StatusBadRequest,
	CodeBadRequest:        http.StatusBadRequest,

	CodeNotFound:      http.StatusNotFound,
	CodeRouteNotFound: http.StatusNotFound,
	CodeBlocked:       http.StatusLocked,

	// Ledger rules -> 422 Unprocessable Entity
	CodeInsufficientStock: http.StatusUnprocessableEntity,
	CodeExceedsBalance:    http.StatusUnprocessableEntity,
	CodeNoPendingBalance:  http.StatusUnprocessableEntity,

	CodeConflict:           http.StatusConflict,
	CodePartialFulfillment: http.StatusConflict,

	CodeMethodNotAllowed: http.StatusMethodNotAllowed,
	CodeRequestTooLarge:  http.StatusRequestEntityTooLarge,
	CodeTimeout:          http.StatusGatewayTimeout,
	CodeInternal:         http.StatusInternalServerError,
	CodeUnavailable:      http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
