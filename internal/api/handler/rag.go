package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/timmy/portdesk/internal/domain"
	"github.com/timmy/portdesk/internal/service"
	"github.com/timmy/portdesk/internal/source"
	"github.com/timmy/portdesk/internal/source/loader"
	"github.com/timmy/portdesk/internal/storage"
)

// Retrieval is the part of the retrieval service exposed over HTTP.
type Retrieval interface {
	Search(ctx context.Context, query, collection string, topK int) ([]domain.ContextHit, error)
	Ingest(ctx context.Context, src source.Source, collection string) (*service.IngestStats, error)
}

// ErrOutsideDataDir is returned for local ingest paths that resolve outside
// the configured data directory.
var ErrOutsideDataDir = errors.New("path is outside the data directory")

// RAGHandler exposes ingestion and raw vector search.
type RAGHandler struct {
	retrieval Retrieval
	store     storage.ObjectStorage
	dataDir   string
}

// NewRAGHandler creates the handler. Local ingest paths are confined to
// dataDir; an empty dataDir rejects them all. store may be nil when no bucket
// is configured; s3:// paths are then rejected.
func NewRAGHandler(retrieval Retrieval, store storage.ObjectStorage, dataDir string) *RAGHandler {
	return &RAGHandler{retrieval: retrieval, store: store, dataDir: dataDir}
}

type IngestRequest struct {
	Path       string `json:"path" binding:"required"`
	Collection string `json:"collection"`
	Sheet      string `json:"sheet"`
}

type SearchRequest struct {
	Query      string `json:"query" binding:"required"`
	TopK       int    `json:"top_k"`
	Collection string `json:"collection"`
}

// Ingest handles POST /api/v1/rag/ingest. The collection defaults to
// case_history for csv/xlsx files and knowledge_base otherwise.
func (h *RAGHandler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.Collection == "" {
		req.Collection = domain.CollectionKnowledgeBase
		if loader.IsCaseLog(req.Path) {
			req.Collection = domain.CollectionCaseHistory
		}
	}

	path, err := h.resolve(req.Path)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	src, err := loader.Open(ctx, path, h.store, loader.Options{Sheet: req.Sheet})
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist), errors.Is(err, storage.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found: " + req.Path})
		case errors.Is(err, loader.ErrUnsupportedFormat), errors.Is(err, loader.ErrStorageUnavailable):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read document: " + err.Error()})
		}
		return
	}

	stats, err := h.retrieval.Ingest(ctx, src, req.Collection)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Ingestion failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"collection": req.Collection,
		"rows":       stats.Rows,
		"chunks":     stats.Chunks,
		"upserted":   stats.Upserted,
		"skipped":    stats.Skipped,
		"failed":     stats.Failed,
	})
}

// resolve maps a request path onto the data directory. Relative paths are
// taken from the data directory; absolute ones must already lie inside it,
// after cleaning and symlink resolution. s3:// paths pass through and are
// checked against the configured bucket by the loader.
func (h *RAGHandler) resolve(path string) (string, error) {
	if _, _, ok := storage.ParseURI(path); ok {
		return path, nil
	}
	if h.dataDir == "" {
		return "", fmt.Errorf("%w: local ingestion is disabled", ErrOutsideDataDir)
	}
	root, err := filepath.Abs(h.dataDir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutsideDataDir, err)
	}
	root = realPath(root)

	target := filepath.FromSlash(path)
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = realPath(filepath.Clean(target))

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideDataDir, path)
	}
	return target, nil
}

// realPath resolves symlinks in p, or in its parent when p does not exist.
func realPath(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(p)); err == nil {
		return filepath.Join(dir, filepath.Base(p))
	}
	return p
}

// Search handles POST /api/v1/rag/search.
func (h *RAGHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.Collection == "" {
		req.Collection = domain.CollectionCaseHistory
	}

	hits, err := h.retrieval.Search(c.Request.Context(), req.Query, req.Collection, req.TopK)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Search failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"query":      req.Query,
		"collection": req.Collection,
		"results":    hits,
		"total":      len(hits),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrCollectionUnknown):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
