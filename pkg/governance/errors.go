package governance

import (
	"errors"
	"fmt"
)

// Sentinels matched by errors.Is against the typed errors below.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrDuplicateRequest    = errors.New("duplicate request")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrEvaluation          = errors.New("evaluation failed")
	ErrTransport           = errors.New("transport failure")
	ErrPersistence         = errors.New("persistence failure")
)

// ValidationError reports invalid input on a single field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error [field=%s]: %s", e.Field, e.Message)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError creates a new ValidationError.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown entity id.
type NotFoundError struct {
	Kind string // "policy", "approval", "violation"
	ID   string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// InvalidStateTransitionError reports a status change the entity's state
// machine does not allow. The entity is left unchanged.
type InvalidStateTransitionError struct {
	Kind string
	ID   string
	From string
	To   string
}

// Error implements the error interface.
func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition for %q: %s -> %s", e.Kind, e.ID, e.From, e.To)
}

// Is matches ErrInvalidTransition.
func (e *InvalidStateTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// NewInvalidTransitionError creates a new InvalidStateTransitionError.
func NewInvalidTransitionError[S ~string](kind, id string, from, to S) *InvalidStateTransitionError {
	return &InvalidStateTransitionError{Kind: kind, ID: id, From: string(from), To: string(to)}
}

// DuplicateRequestError reports a second pending approval for one policy.
type DuplicateRequestError struct {
	PolicyID   string
	ApprovalID string
}

// Error implements the error interface.
func (e *DuplicateRequestError) Error() string {
	return fmt.Sprintf("policy %q already has pending approval %q", e.PolicyID, e.ApprovalID)
}

// Is matches ErrDuplicateRequest.
func (e *DuplicateRequestError) Is(target error) bool { return target == ErrDuplicateRequest }

// ConcurrencyConflictError reports an execution attempt while another
// execution of the same policy is in flight.
type ConcurrencyConflictError struct {
	PolicyID string
}

// Error implements the error interface.
func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("policy %q already has an execution in flight", e.PolicyID)
}

// Is matches ErrConcurrencyConflict.
func (e *ConcurrencyConflictError) Is(target error) bool { return target == ErrConcurrencyConflict }

// EvaluationError wraps an evaluator failure or timeout. The engine absorbs
// it into a FAILURE execution; it never reaches command callers.
type EvaluationError struct {
	PolicyID string
	Cause    error
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation of policy %q failed: %v", e.PolicyID, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *EvaluationError) Unwrap() error { return e.Cause }

// Is matches ErrEvaluation.
func (e *EvaluationError) Is(target error) bool { return target == ErrEvaluation }

// TransportError reports an event delivery failure.
type TransportError struct {
	Sink      string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error [sink=%s, operation=%s]: %v", e.Sink, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *TransportError) Unwrap() error { return e.Cause }

// Is matches ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// NewTransportError creates a new TransportError.
func NewTransportError(sink, operation string, cause error) *TransportError {
	return &TransportError{Sink: sink, Operation: operation, Cause: cause}
}

// PersistenceError reports a failure from the persistence backend.
type PersistenceError struct {
	Backend   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *PersistenceError) Unwrap() error { return e.Cause }

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(backend, operation string, cause error) *PersistenceError {
	return &PersistenceError{Backend: backend, Operation: operation, Cause: cause}
}
