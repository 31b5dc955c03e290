package source

import (
	"context"
	"fmt"
	"strconv"
)

// Document is one unit of ingestion: a whole knowledge base file or one
// case log row.
type Document struct {
	ID       string // Stable within the source, e.g. case_row_3
	Text     string
	Kind     string // knowledge_base, case_log_excel or case_log_csv
	Path     string // Where the document was read from
	RowIndex int    // 1-based data row, 0 for whole files
	Sheet    string
}

// Source defines the interface for document sources.
type Source interface {
	// ID returns a stable identifier for logs and payloads.
	ID() string

	// FetchBatch returns up to limit documents starting at cursor. An empty
	// nextCursor means there is nothing left.
	FetchBatch(ctx context.Context, cursor string, limit int) (docs []Document, nextCursor string, err error)
}

// Static serves an already parsed document list.
type Static struct {
	id   string
	docs []Document
}

// NewStatic wraps docs as a Source.
func NewStatic(id string, docs []Document) *Static {
	return &Static{id: id, docs: docs}
}

func (s *Static) ID() string { return s.id }

// Len returns the number of documents.
func (s *Static) Len() int { return len(s.docs) }

// FetchBatch pages through the list using the index as cursor.
func (s *Static) FetchBatch(_ context.Context, cursor string, limit int) ([]Document, string, error) {
	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil || start < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}
	if start >= len(s.docs) {
		return []Document{}, "", nil
	}
	if limit <= 0 {
		limit = len(s.docs)
	}
	end := start + limit
	if end > len(s.docs) {
		end = len(s.docs)
	}

	next := ""
	if end < len(s.docs) {
		next = strconv.Itoa(end)
	}
	return s.docs[start:end], next, nil
}
