package shared

import "fmt"

// Error codes shared by every ledger aggregate.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeBlocked            = "BLOCKED"
	CodeInsufficientStock  = "INSUFFICIENT_STOCK"
	CodeExceedsBalance     = "EXCEEDS_BALANCE"
	CodeNoPendingBalance   = "NO_PENDING_BALANCE"
	CodeConflict           = "CONFLICT"
	CodePartialFulfillment = "PARTIAL_FULFILLMENT"
	CodeInvalidTransition  = "INVALID_TRANSITION"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target carries the same code, so that
// errors.Is(err, shared.ErrNotFound) matches any NOT_FOUND error.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails returns a copy of the error carrying extra structured details.
func (e *DomainError) WithDetails(details map[string]any) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
	}
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates a VALIDATION_ERROR with the given message.
func NewValidationError(format string, args ...any) *DomainError {
	return NewDomainError(CodeValidation, fmt.Sprintf(format, args...))
}

// NewNotFoundError creates a NOT_FOUND error naming the missing resource.
func NewNotFoundError(resource, key string) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s %s not found", resource, key))
}

// NewBlockedError creates a BLOCKED error naming the frozen resource.
func NewBlockedError(resource, key string) *DomainError {
	return NewDomainError(CodeBlocked, fmt.Sprintf("%s %s is blocked", resource, key))
}

// Common domain errors
var (
	ErrValidation         = NewDomainError(CodeValidation, "Invalid input provided")
	ErrNotFound           = NewDomainError(CodeNotFound, "Resource not found")
	ErrBlocked            = NewDomainError(CodeBlocked, "Resource is blocked")
	ErrInsufficientStock  = NewDomainError(CodeInsufficientStock, "Insufficient stock available")
	ErrExceedsBalance     = NewDomainError(CodeExceedsBalance, "Payment exceeds the bill balance")
	ErrNoPendingBalance   = NewDomainError(CodeNoPendingBalance, "Customer has no pending balance")
	ErrConflict           = NewDomainError(CodeConflict, "Resource already exists")
	ErrPartialFulfillment = NewDomainError(CodePartialFulfillment, "Requested quantity only partially fulfilled")
	ErrInvalidTransition  = NewDomainError(CodeInvalidTransition, "Lifecycle transition not allowed")
)
