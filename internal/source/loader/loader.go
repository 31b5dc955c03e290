// Package loader opens ingestion files from disk or object storage and
// picks the matching source adapter.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/timmy/portdesk/internal/source"
	"github.com/timmy/portdesk/internal/source/caselog"
	"github.com/timmy/portdesk/internal/source/textdoc"
	"github.com/timmy/portdesk/internal/storage"
)

// ErrUnsupportedFormat is returned for file extensions no adapter reads.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ErrStorageUnavailable is returned for s3:// paths when no object storage
// is configured.
var ErrStorageUnavailable = errors.New("object storage not configured")

// Options tune how a file is parsed.
type Options struct {
	Sheet string // xlsx worksheet, empty for the active one
}

// IsCaseLog reports whether path names a case log file.
func IsCaseLog(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

// Open resolves path (a local file or s3://bucket/key) and parses it.
func Open(ctx context.Context, path string, store storage.ObjectStorage, opts Options) (*source.Static, error) {
	rc, err := openReader(ctx, path, store)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return caselog.ParseCSV(path, rc)
	case ".xlsx":
		return caselog.ParseXLSX(path, rc, opts.Sheet)
	case ".txt", ".md", ".markdown", ".docx":
		return textdoc.Parse(path, rc)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func openReader(ctx context.Context, path string, store storage.ObjectStorage) (io.ReadCloser, error) {
	bucket, key, ok := storage.ParseURI(path)
	if !ok {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		return f, nil
	}
	if store == nil {
		return nil, ErrStorageUnavailable
	}
	if bucket != store.Bucket() {
		return nil, fmt.Errorf("bucket %q is not the configured bucket %q", bucket, store.Bucket())
	}
	return store.Download(ctx, key)
}
