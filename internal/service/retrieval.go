package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/timmy/portdesk/internal/chunker"
	"github.com/timmy/portdesk/internal/config"
	"github.com/timmy/portdesk/internal/domain"
	"github.com/timmy/portdesk/internal/logger"
	"github.com/timmy/portdesk/internal/source"
)

// VectorIndex stores and searches embedded chunks by physical collection.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, collection string, points []domain.VectorPoint) error
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]domain.VectorHit, error)
}

// RetrievalConfig configures RetrievalService.
type RetrievalConfig struct {
	// Collections maps logical names to physical index collections. Missing
	// logical names map to themselves.
	Collections   map[string]string
	KnowledgeBase config.ChunkParams
	CaseRows      config.ChunkParams
	Workers       int
	BatchSize     int
}

// RetrievalService chunks, embeds, indexes and searches documents.
type RetrievalService struct {
	embedder    Embedder
	index       VectorIndex
	chunker     *chunker.Chunker
	collections map[string]string
	kb          config.ChunkParams
	cases       config.ChunkParams
	workers     int
	batchSize   int
}

// NewRetrievalService wires the pipeline.
func NewRetrievalService(embedder Embedder, index VectorIndex, ch *chunker.Chunker, cfg RetrievalConfig) *RetrievalService {
	collections := map[string]string{
		domain.CollectionCaseHistory:   domain.CollectionCaseHistory,
		domain.CollectionKnowledgeBase: domain.CollectionKnowledgeBase,
	}
	for logical, physical := range cfg.Collections {
		if physical != "" {
			collections[logical] = physical
		}
	}
	if cfg.KnowledgeBase.MaxTokens <= 0 {
		cfg.KnowledgeBase = config.ChunkParams{MaxTokens: 400, OverlapTokens: 60}
	}
	if cfg.CaseRows.MaxTokens <= 0 {
		cfg.CaseRows = config.ChunkParams{MaxTokens: 350, OverlapTokens: 50}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &RetrievalService{
		embedder:    embedder,
		index:       index,
		chunker:     ch,
		collections: collections,
		kb:          cfg.KnowledgeBase,
		cases:       cfg.CaseRows,
		workers:     cfg.Workers,
		batchSize:   cfg.BatchSize,
	}
}

// Collections lists the registered logical collection names.
func (s *RetrievalService) Collections() []string {
	return []string{domain.CollectionCaseHistory, domain.CollectionKnowledgeBase}
}

func (s *RetrievalService) physical(collection string) (string, error) {
	name, ok := s.collections[collection]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrCollectionUnknown, collection)
	}
	return name, nil
}

// Search embeds query and returns up to topK hits from collection.
func (s *RetrievalService) Search(ctx context.Context, query, collection string, topK int) ([]domain.ContextHit, error) {
	name, err := s.physical(collection)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 3
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.index.Search(ctx, name, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	out := make([]domain.ContextHit, 0, len(hits))
	for _, h := range hits {
		src, _ := h.Metadata["source"].(string)
		out = append(out, domain.ContextHit{
			Collection: collection,
			ID:         h.ID,
			Score:      h.Score,
			Text:       h.Text,
			Source:     src,
			Metadata:   h.Metadata,
		})
	}
	return out, nil
}

// Retrieve is the best-effort form of Search used during analysis. Any
// failure is logged and returned as a degraded, empty outcome.
func (s *RetrievalService) Retrieve(ctx context.Context, query, collection string, topK int) Outcome[[]domain.ContextHit] {
	start := time.Now()
	hits, err := s.Search(ctx, query, collection, topK)
	if err != nil {
		logger.With(logger.Fields{logger.FieldCollection: collection}).
			Warn(ctx, "retrieval degraded: %v", err)
		return Degrade([]domain.ContextHit{}, err)
	}
	logger.With(logger.Fields{logger.FieldCollection: collection}).
		WithCount(len(hits)).
		WithDuration(time.Since(start).Milliseconds()).
		Debug(ctx, "retrieval done")
	return Ok(hits)
}

// IngestStats holds statistics for an ingestion run.
type IngestStats struct {
	Rows     int64 `json:"rows"`
	Chunks   int64 `json:"chunks"`
	Upserted int64 `json:"upserted"`
	Skipped  int64 `json:"skipped"`
	Failed   int64 `json:"failed"`
}

// ChunkDocument splits a document with the parameters for its kind. Chunk
// texts are a pure function of the document text.
func (s *RetrievalService) ChunkDocument(doc source.Document) []string {
	p := s.kb
	if strings.HasPrefix(doc.Kind, "case_log") {
		p = s.cases
	}
	return chunker.NonEmpty(s.chunker.Chunk(doc.Text, p.MaxTokens, p.OverlapTokens))
}

// Ingest reads every document of src into collection. Per-document failures
// are counted and logged, not returned; the error covers only setup and
// source paging.
func (s *RetrievalService) Ingest(ctx context.Context, src source.Source, collection string) (*IngestStats, error) {
	name, err := s.physical(collection)
	if err != nil {
		return nil, err
	}
	if err := s.index.EnsureCollection(ctx, name); err != nil {
		return nil, fmt.Errorf("ensure collection %s: %w", name, err)
	}

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldSource:     src.ID(),
		logger.FieldCollection: collection,
	})
	start := time.Now()
	stats := &IngestStats{}
	logger.CtxInfo(ctx, "starting ingestion")

	docs := make(chan source.Document, s.workers*2)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range docs {
				s.ingestOne(ctx, name, doc, stats)
			}
		}()
	}

	var fetchErr error
	cursor := ""
	for ctx.Err() == nil {
		batch, next, err := src.FetchBatch(ctx, cursor, s.batchSize)
		if err != nil {
			fetchErr = fmt.Errorf("fetch batch: %w", err)
			break
		}
		atomic.AddInt64(&stats.Rows, int64(len(batch)))
		for _, doc := range batch {
			docs <- doc
		}
		if next == "" || len(batch) == 0 {
			break
		}
		cursor = next
	}
	close(docs)
	wg.Wait()

	logger.With(logger.Fields{
		"rows":     stats.Rows,
		"chunks":   stats.Chunks,
		"upserted": stats.Upserted,
		"skipped":  stats.Skipped,
		"failed":   stats.Failed,
	}).WithDuration(time.Since(start).Milliseconds()).Info(ctx, "ingestion completed")

	if fetchErr != nil {
		return stats, fetchErr
	}
	return stats, ctx.Err()
}

func (s *RetrievalService) ingestOne(ctx context.Context, collection string, doc source.Document, stats *IngestStats) {
	chunks := s.ChunkDocument(doc)
	if len(chunks) == 0 {
		atomic.AddInt64(&stats.Skipped, 1)
		return
	}
	atomic.AddInt64(&stats.Chunks, int64(len(chunks)))

	vectors, err := s.embedder.EmbedBatch(ctx, chunks)
	if err == nil && len(vectors) != len(chunks) {
		err = fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if err != nil {
		atomic.AddInt64(&stats.Failed, 1)
		logger.FromContext(ctx).WithField("doc_id", doc.ID).WithError(err).Error("embedding failed")
		return
	}

	points := make([]domain.VectorPoint, len(chunks))
	for i, text := range chunks {
		c := domain.Chunk{
			ID:         uuid.New().String(),
			Text:       text,
			Source:     doc.Kind,
			ChunkIndex: i,
			RowIndex:   doc.RowIndex,
			Sheet:      doc.Sheet,
			Path:       doc.Path,
		}
		if doc.RowIndex > 0 {
			c.RowID = doc.ID
		}
		points[i] = domain.VectorPoint{ID: c.ID, Vector: vectors[i], Payload: c.Payload()}
	}

	if err := s.index.Upsert(ctx, collection, points); err != nil {
		atomic.AddInt64(&stats.Failed, 1)
		logger.FromContext(ctx).WithField("doc_id", doc.ID).WithError(err).Error("upsert failed")
		return
	}
	atomic.AddInt64(&stats.Upserted, int64(len(points)))
}
