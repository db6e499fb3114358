// Package scanerr defines the error taxonomy shared by all pipeline stages.
//
// No error in the scanning pipeline is fatal to the process: every failure
// degrades to "treat this frame or candidate as absent". Callers classify
// failures with errors.Is against the sentinels below.
package scanerr

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotReady indicates a required scoring model failed to
	// initialize or is not loaded. The current frame is skipped and the
	// session continues with degraded capability.
	ErrModelNotReady = errors.New("model not ready")

	// ErrInvalidInput indicates malformed image or feature data. The frame
	// is dropped and logged; there is no retry.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPredictionFailed indicates a scoring call raised at runtime. It is
	// treated identically to a low-confidence result.
	ErrPredictionFailed = errors.New("prediction failed")

	// ErrNoDetection indicates a session ended without any accepted
	// candidate. Terminal; the session resolves to REJECT.
	ErrNoDetection = errors.New("no detection")
)

// ModelNotReady wraps ErrModelNotReady with the role of the missing model.
func ModelNotReady(role string) error {
	return fmt.Errorf("%w: %s", ErrModelNotReady, role)
}

// InvalidInput wraps ErrInvalidInput with a reason.
func InvalidInput(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}

// PredictionFailed wraps a runtime scoring failure, preserving the cause.
func PredictionFailed(role string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrPredictionFailed, role, cause)
}

// IsSkippable reports whether the error means "skip this frame and carry on"
// rather than "abort the session".
func IsSkippable(err error) bool {
	return errors.Is(err, ErrModelNotReady) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrPredictionFailed)
}
