package storage

import (
	"context"
	"io"
)

// ObjectStorage holds ingestion documents (knowledge base files, case logs).
type ObjectStorage interface {
	// Upload stores an object under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading. Callers close the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Bucket is the bucket objects are addressed in.
	Bucket() string
}
