package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrConflict indicates that the request conflicts with the current state of the resource.
var ErrConflict = errors.New("conflict with current state")

// ErrForbidden indicates that the caller may not access the resource.
var ErrForbidden = errors.New("forbidden")

// ErrInternal indicates an unexpected failure that is not the caller's fault.
var ErrInternal = errors.New("internal error")

// Recurring journal engine errors. Configuration and locking errors wrap the generic
// sentinels above so handlers can map them without knowing the engine.
var (
	// ErrConfiguration is returned for an invalid frequency, interval or date range.
	ErrConfiguration = fmt.Errorf("%w: invalid recurrence configuration", ErrValidation)

	// ErrUnbalancedTemplate is returned when debits and credits differ by more than the tolerance.
	ErrUnbalancedTemplate = errors.New("entry template is unbalanced")

	// ErrPosting is recorded on an occurrence when the ledger rejects or fails to accept a draft.
	ErrPosting = errors.New("posting failed")

	// ErrRunInProgress is returned when another run holds the lock for the same definition.
	ErrRunInProgress = fmt.Errorf("%w: a run is already in progress for this definition", ErrConflict)

	// ErrDefinitionLocked is returned when schedule or template fields of a terminal definition are changed.
	ErrDefinitionLocked = fmt.Errorf("%w: definition is completed or cancelled", ErrConflict)

	// ErrInvalidTransition is returned for a lifecycle or occurrence transition that is not allowed.
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrConflict)

	// ErrDefinitionInactive is returned when a committed run targets a definition that is not active.
	ErrDefinitionInactive = fmt.Errorf("%w: definition is not active", ErrConflict)
)

// AppError carries an HTTP-ish status code alongside a wrapped cause.
type AppError struct {
	Code    int
	Message string
	Err     error
}

// NewAppError creates a new AppError.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// UnbalancedError reports the sums that made a template or draft unbalanced.
type UnbalancedError struct {
	Debits  string
	Credits string
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("%s: debits sum is %s and credits sum is %s", ErrUnbalancedTemplate.Error(), e.Debits, e.Credits)
}

func (e *UnbalancedError) Unwrap() error {
	return ErrUnbalancedTemplate
}
