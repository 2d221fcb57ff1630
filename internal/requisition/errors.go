package requisition

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates input that must be corrected before anything is saved.
	ErrValidation = errors.New("requisition: invalid input")
	// ErrForbidden indicates the actor may not perform the action at the current stage.
	ErrForbidden = errors.New("requisition: action not permitted")
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("requisition: not found")
	// ErrConflict indicates the stored version moved on since it was read.
	ErrConflict = errors.New("requisition: concurrent modification")
	// ErrPersistence indicates a store write failed.
	ErrPersistence = errors.New("requisition: persistence failure")
	// ErrPendingNotFound indicates an unknown or expired pending signature.
	ErrPendingNotFound = errors.New("requisition: pending signature not found or expired")
)

// ValidationError describes rejected input. Nothing was mutated.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "requisition: " + e.Message
	}
	return fmt.Sprintf("requisition: %s: %s", e.Field, e.Message)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// AuthorizationError is returned when the actor does not hold the stage.
type AuthorizationError struct {
	UserID string
	Role   Role
	Action Action
	Stage  Stage
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("requisition: %s (%s) may not %s at %s", e.UserID, e.Role, e.Action, e.Stage)
}

// Is matches ErrForbidden.
func (e *AuthorizationError) Is(target error) bool { return target == ErrForbidden }

// PersistenceError wraps a failed store write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("requisition: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// UserMessage renders err for people. It separates failures where nothing
// happened from those where the action may have partially applied.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return "Nothing was saved: " + verr.Message + ". Please correct your input and try again."
	case errors.Is(err, ErrValidation):
		return "Nothing was saved: the input is invalid. Please correct it and try again."
	case errors.Is(err, ErrForbidden):
		return "Nothing was saved: you are not permitted to take this action at the current stage."
	case errors.Is(err, ErrPendingNotFound):
		return "Nothing was saved: the signature request expired. Start the action again."
	case errors.Is(err, ErrNotFound):
		return "Nothing was saved: the requisition could not be found."
	case errors.Is(err, ErrConflict):
		return "Nothing was saved: someone else changed this requisition. Reload it and try again."
	default:
		return "Your action may have partially applied. Reload the requisition and verify its state before retrying."
	}
}

// NothingHappened reports whether err guarantees no state was changed.
func NothingHappened(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrPendingNotFound)
}
