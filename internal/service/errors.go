package service

import "errors"

var (
	// ErrEmbeddingUnavailable means the embedding endpoint or its credential
	// is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding capability unavailable")
	// ErrEmbeddingBatchFailed wraps an upstream failure for one batch.
	ErrEmbeddingBatchFailed = errors.New("embedding batch failed")
	// ErrNoEmbeddableText means every input was empty after sanitising.
	ErrNoEmbeddableText = errors.New("no non-empty text to embed")

	ErrEmptyIncident     = errors.New("incident_text must not be empty")
	ErrJobNotFound       = errors.New("job not found")
	ErrCollectionUnknown = errors.New("unknown collection")
)
