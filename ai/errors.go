package ai

import "errors"

var (
	// ErrEmptyResponse indicates the model service returned no usable output.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrResponseCount indicates a batch call returned a different number of vectors than inputs.
	ErrResponseCount = errors.New("embedding count does not match input count")

	// ErrDimensionMismatch indicates a vector length differs from the configured dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidTask indicates an unknown task hint.
	ErrInvalidTask = errors.New("invalid task hint")
)
