// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Policy errors: the request is well formed but the session settings forbid it.
	ErrPolicyViolation = errors.New("policy violation")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "training", "promotion"
	Op      string // Operation that failed, e.g., "Skip", "Evaluate"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Errorf builds a domain error with a formatted message.
func Errorf(domain, op string, kind error, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, kind, fmt.Sprintf(format, args...))
}

// Training domain errors
var (
	ErrSessionNotFound     = NewDomainError("training", "Find", ErrNotFound, "session not found")
	ErrStudentNotFound     = NewDomainError("training", "ResolveStudent", ErrNotFound, "student not found")
	ErrTrainerNotFound     = NewDomainError("training", "ResolveTrainer", ErrNotFound, "trainer not found")
	ErrSessionPaused       = NewDomainError("training", "Pause", ErrInvalidState, "session is already paused")
	ErrSessionNotPaused    = NewDomainError("training", "Resume", ErrInvalidState, "session is not paused")
	ErrSessionNotActive    = NewDomainError("training", "Mutate", ErrInvalidState, "session is not active")
	ErrSessionIsPaused     = NewDomainError("training", "Mutate", ErrInvalidState, "session is paused")
	ErrNoRemainingExercise = NewDomainError("training", "Advance", ErrInvalidState, "session has no remaining exercises")
	ErrSessionNotCompleted = NewDomainError("training", "Annotate", ErrInvalidState, "session is not completed")
	ErrSkipDisabled        = NewDomainError("training", "Skip", ErrPolicyViolation, "skipping is disabled for this session")
	ErrHintsDisabled       = NewDomainError("training", "RequestHint", ErrPolicyViolation, "hints are disabled for this session")
	ErrNoHints             = NewDomainError("training", "RequestHint", ErrPolicyViolation, "exercise has no hints")
	ErrHintOutOfRange      = NewDomainError("training", "RequestHint", ErrPolicyViolation, "hint index out of range")
	ErrGeneratorFailed     = NewDomainError("training", "Generate", ErrExternalService, "exercise generator failed")
	ErrNotSessionTrainer   = NewDomainError("training", "Annotate", ErrPolicyViolation, "session belongs to another trainer")
	ErrStaleSession        = NewDomainError("training", "Save", ErrStateTransition, "stored session is newer than the snapshot")
)

// Promotion domain errors
var (
	ErrCriteriaNotFound   = NewDomainError("promotion", "Criteria", ErrNotFound, "no criteria for curriculum level")
	ErrDecisionNotFound   = NewDomainError("promotion", "Find", ErrNotFound, "promotion decision not found")
	ErrDecisionNotPending = NewDomainError("promotion", "Review", ErrStateTransition, "promotion decision is not pending")
	ErrReviewerMismatch   = NewDomainError("promotion", "Review", ErrPolicyViolation, "decision belongs to another trainer")
	ErrNoNextLevel        = NewDomainError("promotion", "NextLevel", ErrNotFound, "no next level")
	ErrInvalidWeights     = NewDomainError("assessment", "Weights", ErrValidation, "scoring weights must sum to 1.0")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidState checks if the error is a state error.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState) || errors.Is(err, ErrStateTransition)
}

// IsPolicyViolation checks if the error is a settings-policy rejection.
func IsPolicyViolation(err error) bool {
	return errors.Is(err, ErrPolicyViolation)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
