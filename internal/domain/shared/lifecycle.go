package shared

import "fmt"

// Lifecycle is the administrative state of a ledger entity.
// It replaces separate deleted/blocked flags whose combinations were not all meaningful.
type Lifecycle string

const (
	LifecycleActive  Lifecycle = "ACTIVE"
	LifecycleBlocked Lifecycle = "BLOCKED"
	LifecycleDeleted Lifecycle = "DELETED"
)

// IsValid checks if the lifecycle value is a known member
func (l Lifecycle) IsValid() bool {
	switch l {
	case LifecycleActive, LifecycleBlocked, LifecycleDeleted:
		return true
	}
	return false
}

// String returns the string representation
func (l Lifecycle) String() string {
	return string(l)
}

// IsDeleted reports whether the entity was soft-deleted
func (l Lifecycle) IsDeleted() bool {
	return l == LifecycleDeleted
}

// IsBlocked reports whether the entity is administratively frozen
func (l Lifecycle) IsBlocked() bool {
	return l == LifecycleBlocked
}

// CanTransitionTo reports whether moving to next is allowed.
// DELETED is terminal.
func (l Lifecycle) CanTransitionTo(next Lifecycle) bool {
	switch l {
	case LifecycleActive:
		return next == LifecycleBlocked || next == LifecycleDeleted
	case LifecycleBlocked:
		return next == LifecycleActive || next == LifecycleDeleted
	}
	return false
}

// Transition returns next if allowed, or an INVALID_TRANSITION error.
func (l Lifecycle) Transition(next Lifecycle) (Lifecycle, error) {
	if !next.IsValid() {
		return l, NewValidationError("unknown lifecycle state %q", next)
	}
	if !l.CanTransitionTo(next) {
		return l, NewDomainError(CodeInvalidTransition, fmt.Sprintf("cannot move from %s to %s", l, next))
	}
	return next, nil
}

// EnsureMutable fails with NOT_FOUND for deleted entities and BLOCKED for frozen ones.
func (l Lifecycle) EnsureMutable(resource, key string) error {
	switch l {
	case LifecycleDeleted:
		return NewNotFoundError(resource, key)
	case LifecycleBlocked:
		return NewBlockedError(resource, key)
	}
	return nil
}
