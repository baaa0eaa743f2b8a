package source

import "errors"

var (
	// ErrInvalidConfig indicates a malformed source configuration.
	ErrInvalidConfig = errors.New("invalid source config")

	// ErrUnknownSource indicates a site name absent from the loaded sources.
	ErrUnknownSource = errors.New("unknown source")
)
