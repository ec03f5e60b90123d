package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Validation errors
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrShapeMismatch    = errors.New("x and y have different lengths")
	ErrNonFinite        = errors.New("sample contains NaN or Inf")
	ErrInvalidOptions   = errors.New("invalid evaluation options")

	// Fitting errors
	ErrFitFailed      = errors.New("fit failed")
	ErrNonConvergence = fmt.Errorf("%w: solver did not converge", ErrFitFailed)
	ErrBadSeed        = fmt.Errorf("%w: no usable initial guess", ErrFitFailed)

	// Wiring errors
	ErrUnknownSolver = errors.New("unknown solver")
)

// MinSamples is the smallest sample set the evaluator accepts.
const MinSamples = 5

// NewValidationError reports a field that failed validation.
func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

// NewFitError marks err as a fitting failure. Errors that already match
// ErrFitFailed are returned unchanged.
func NewFitError(err error) error {
	if err == nil || errors.Is(err, ErrFitFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFitFailed, err)
}

// Error checking helpers
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrShapeMismatch) ||
		errors.Is(err, ErrNonFinite) ||
		errors.Is(err, ErrInvalidOptions)
}

func IsFitError(err error) bool {
	return errors.Is(err, ErrFitFailed)
}
