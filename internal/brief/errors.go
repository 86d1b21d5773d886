package brief

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a request rejected because its inputs are missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrSequenceViolation marks a stage requested before its predecessor completed.
	ErrSequenceViolation = errors.New("stage out of sequence")
	// ErrRateLimitExceeded is returned once the model-call ceiling has been reached.
	ErrRateLimitExceeded = errors.New("API rate limit exceeded")
	// ErrMissingOutput marks a stage whose predecessor output is absent.
	ErrMissingOutput = errors.New("predecessor output missing")
	// ErrStaleTicket is returned when a superseded task tries to write job state.
	ErrStaleTicket = errors.New("stale stage ticket")
)

// SequenceError describes which predecessor a stage was waiting on.
type SequenceError struct {
	Stage    Stage
	Required Stage
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("Step %d must be completed first", int(e.Required))
}

// Unwrap lets callers match ErrSequenceViolation with errors.Is.
func (e *SequenceError) Unwrap() error {
	return ErrSequenceViolation
}

// ValidationError carries the user-facing message for a rejected request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap lets callers match ErrValidation with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ErrorKind classifies err for metrics labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrRateLimitExceeded):
		return "rate_limit"
	case errors.Is(err, ErrMissingOutput):
		return "missing_output"
	case errors.Is(err, ErrSequenceViolation):
		return "sequence"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "collaborator"
	}
}
