package models

import "errors"

var (
	ErrValidation            = errors.New("validation failed")
	ErrUnknownMessage        = errors.New("unknown message type")
	ErrSlideNotFound         = errors.New("slide not found")
	ErrPresentationNotFound  = errors.New("presentation not found")
	ErrRoomNotFound          = errors.New("room not found")
	ErrNoPresentation        = errors.New("no active presentation")
	ErrNoFeedback            = errors.New("no collaboration messages for slide")
	ErrForbidden             = errors.New("admin role required")
	ErrCollaborationDisabled = errors.New("collaboration is disabled")
	ErrRemoteNotFound        = errors.New("remote not found")
	ErrRemoteInactive        = errors.New("remote is not active")
)

// ValidationError reports an inbound message or document that failed its
// schema or a precondition. It is answered with an error frame to the sender.
type ValidationError struct {
	Message string
	Cause   error
}

// NewValidationError creates a ValidationError with the given message
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// WrapValidation turns err into a ValidationError keeping it as the cause
func WrapValidation(err error) *ValidationError {
	return &ValidationError{Message: err.Error(), Cause: err}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is makes every ValidationError match ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}
