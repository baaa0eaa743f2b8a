package ai

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// NewLimiter paces calls to at most rpm per minute with a burst of one.
// A non-positive rpm returns nil, which Wait treats as unlimited.
func NewLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
}

// Wait blocks until the limiter admits one call or ctx is done.
func Wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}

// CheckVectors verifies a batch response: one vector per input, each of
// the configured dimensionality. A dims of zero skips the length check.
func CheckVectors(vectors [][]float32, inputs, dims int) error {
	if len(vectors) != inputs {
		return fmt.Errorf("%w: got %d, want %d", ErrResponseCount, len(vectors), inputs)
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: vector %d is empty", ErrEmptyResponse, i)
		}
		if dims > 0 && len(v) != dims {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), dims)
		}
	}
	return nil
}
