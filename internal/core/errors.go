package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for pipeline failures the transport layer maps onto
// specific HTTP statuses.
var (
	ErrModelNotLoaded       = errors.New("model not loaded")
	ErrPayloadTooLarge      = errors.New("payload too large")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrInferenceTimeout     = errors.New("inference timed out")
)

// InvalidImageError indicates the uploaded bytes could not be decoded as an
// image. The decode failure is preserved so clients see why.
type InvalidImageError struct {
	Reason error
}

func (e *InvalidImageError) Error() string {
	if e.Reason == nil {
		return "invalid image"
	}
	return fmt.Sprintf("invalid image: %v", e.Reason)
}

func (e *InvalidImageError) Unwrap() error { return e.Reason }

// LabelMismatchError indicates the scorer produced a different number of
// outputs than there are configured class labels. This is a deployment
// problem, not a client one.
type LabelMismatchError struct {
	Labels  int
	Outputs int
}

func (e *LabelMismatchError) Error() string {
	return fmt.Sprintf("model returned %d outputs for %d class labels", e.Outputs, e.Labels)
}

// InferenceError wraps an unexpected scorer failure.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string { return fmt.Sprintf("inference failed: %v", e.Err) }

func (e *InferenceError) Unwrap() error { return e.Err }
