package core

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the services matches exactly one of
// these with errors.Is.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrConsistency = errors.New("consistency failure")
)

var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrAmountOutOfRange       = errors.New("amount out of range")
	ErrNonPositiveAmount      = errors.New("amount must be greater than zero")
	ErrNonPositiveBudget      = errors.New("budget must be greater than zero")
	ErrEmptyName              = errors.New("name cannot be empty")
	ErrNameTooLong            = errors.New("name too long (max 100 characters)")
	ErrDescriptionTooLong     = errors.New("description too long (max 500 characters)")
	ErrInvalidAccountType     = errors.New("invalid account type")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidInterval        = errors.New("invalid recurring interval")
	ErrMissingInterval        = errors.New("recurring transactions need an interval")
	ErrUnexpectedInterval     = errors.New("interval set on a non-recurring transaction")
	ErrUnknownCategory        = errors.New("unknown category")
	ErrCategoryTypeMismatch   = errors.New("category does not match transaction type")
	ErrMissingDate            = errors.New("date cannot be zero")
	ErrEmptyUserID            = errors.New("user id cannot be empty")
)

// ValidationError reports malformed caller input. It is surfaced verbatim.
type ValidationError struct {
	Field string
	Err   error
}

// NewValidationError wraps err as a validation failure on field.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a missing resource or one owned by another user.
// Both cases share one message so ownership is never leaked.
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found or access denied", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConsistencyFailure reports that an atomic multi-step write did not commit.
// Prior state is unchanged when this is returned.
type ConsistencyFailure struct {
	Op  string
	Err error
}

func (e *ConsistencyFailure) Error() string {
	return fmt.Sprintf("%s could not be completed: %v", e.Op, e.Err)
}

func (e *ConsistencyFailure) Unwrap() error { return e.Err }

func (e *ConsistencyFailure) Is(target error) bool { return target == ErrConsistency }

// AsConsistencyFailure passes validation and not-found errors through and
// turns every other non-nil error into a *ConsistencyFailure for op.
func AsConsistencyFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConsistency) {
		return err
	}
	return &ConsistencyFailure{Op: op, Err: err}
}
