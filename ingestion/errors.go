package ingestion

import "errors"

var (
	// ErrRepositoryRequired is returned when a pipeline writes to the store but none was provided.
	ErrRepositoryRequired = errors.New("article repository required")

	// ErrEngineRequired is returned when an extraction engine is not provided.
	ErrEngineRequired = errors.New("extraction engine required")

	// ErrNoSources is returned when a run is started without sources.
	ErrNoSources = errors.New("no sources to scrape")

	// ErrDraftFile indicates a drafts JSON file could not be read or written.
	ErrDraftFile = errors.New("invalid drafts file")
)
