package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/portdesk/internal/chunker"
	"github.com/timmy/portdesk/internal/config"
	"github.com/timmy/portdesk/internal/domain"
	"github.com/timmy/portdesk/internal/source"
)

func newTestRetrieval(emb Embedder, idx VectorIndex) *RetrievalService {
	return NewRetrievalService(emb, idx, chunker.New(chunker.WordCounter{}), RetrievalConfig{
		Collections:   map[string]string{domain.CollectionKnowledgeBase: "kb_v1"},
		KnowledgeBase: config.ChunkParams{MaxTokens: 40, OverlapTokens: 5},
		CaseRows:      config.ChunkParams{MaxTokens: 30, OverlapTokens: 5},
		Workers:       3,
		BatchSize:     2,
	})
}

func knowledgeBaseText() string {
	var b strings.Builder
	topics := []string{
		"Gate transactions stall when the terminal operating system loses its database lock.",
		"COPARN messages are rejected when the partner sends an invalid segment terminator.",
		"Vessel advice duplicates appear when two berth applications overlap in time.",
		"Reefer container alarms must be acknowledged within fifteen minutes by yard staff.",
		"Customs holds block discharge until the release message arrives from the authority.",
	}
	for i := 0; i < 3; i++ {
		for _, t := range topics {
			b.WriteString(t)
			b.WriteString(" ")
		}
	}
	return b.String()
}

func TestIngestThenSearchRoundTrip(t *testing.T) {
	idx := newMemoryIndex()
	svc := newTestRetrieval(&hashEmbedder{dim: 256}, idx)
	text := knowledgeBaseText()
	doc := source.Document{ID: "kb", Text: text, Kind: domain.SourceKnowledgeBase, Path: "kb.md"}

	stats, err := svc.Ingest(context.Background(), source.NewStatic("kb.md", []source.Document{doc}), domain.CollectionKnowledgeBase)
	require.NoError(t, err)

	want := svc.ChunkDocument(doc)
	require.NotEmpty(t, want)
	assert.Equal(t, int64(1), stats.Rows)
	assert.Equal(t, int64(len(want)), stats.Chunks)
	assert.Equal(t, int64(len(want)), stats.Upserted)
	assert.Equal(t, want, idx.texts("kb_v1"), "stored texts are exactly the chunker output")
	assert.Equal(t, 1, idx.ensured["kb_v1"])

	phrase := "COPARN messages are rejected when the partner sends an invalid segment terminator."
	hits, err := svc.Search(context.Background(), phrase, domain.CollectionKnowledgeBase, 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].Text, phrase)
	assert.Equal(t, domain.CollectionKnowledgeBase, hits[0].Collection)
	assert.Equal(t, domain.SourceKnowledgeBase, hits[0].Source)
}

func TestIngestCaseRows(t *testing.T) {
	idx := newMemoryIndex()
	svc := newTestRetrieval(&hashEmbedder{dim: 64}, idx)

	var docs []source.Document
	for i := 1; i <= 5; i++ {
		docs = append(docs, source.Document{
			ID:       fmt.Sprintf("case_row_%d", i),
			Text:     fmt.Sprintf("Case: C-%d\nModule: EDI", i),
			Kind:     domain.SourceCaseLogCSV,
			Path:     "cases.csv",
			RowIndex: i,
			Sheet:    "csv",
		})
	}
	docs = append(docs, source.Document{ID: "case_row_6", Text: "   ", Kind: domain.SourceCaseLogCSV, RowIndex: 6})

	stats, err := svc.Ingest(context.Background(), source.NewStatic("cases.csv", docs), domain.CollectionCaseHistory)
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.Rows)
	assert.Equal(t, int64(5), stats.Upserted)
	assert.Equal(t, int64(1), stats.Skipped)

	var rowIDs []string
	for _, p := range idx.points[domain.CollectionCaseHistory] {
		rowIDs = append(rowIDs, p.Payload["row_id"].(string))
		assert.Equal(t, "csv", p.Payload["sheet"])
		assert.Equal(t, 0, p.Payload["chunk_index"])
	}
	sort.Strings(rowIDs)
	assert.Equal(t, []string{"case_row_1", "case_row_2", "case_row_3", "case_row_4", "case_row_5"}, rowIDs)
}

func TestIngestCountsFailures(t *testing.T) {
	idx := newMemoryIndex()
	svc := newTestRetrieval(&hashEmbedder{dim: 64, fail: true}, idx)
	docs := []source.Document{{ID: "a", Text: "one"}, {ID: "b", Text: "two"}}

	stats, err := svc.Ingest(context.Background(), source.NewStatic("x", docs), domain.CollectionKnowledgeBase)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(0), stats.Upserted)
}

func TestIngestUnknownCollection(t *testing.T) {
	svc := newTestRetrieval(&hashEmbedder{dim: 8}, newMemoryIndex())
	_, err := svc.Ingest(context.Background(), source.NewStatic("x", nil), "nope")
	assert.ErrorIs(t, err, ErrCollectionUnknown)
}

func TestRetrieveDegrades(t *testing.T) {
	idx := newMemoryIndex()
	idx.failSearch = true
	svc := newTestRetrieval(&hashEmbedder{dim: 8}, idx)

	out := svc.Retrieve(context.Background(), "gate stall", domain.CollectionCaseHistory, 3)
	assert.True(t, out.Degraded)
	assert.Empty(t, out.Value)
	assert.Error(t, out.Cause)

	out = svc.Retrieve(context.Background(), "gate stall", "unknown", 3)
	assert.True(t, out.Degraded)
	assert.ErrorIs(t, out.Cause, ErrCollectionUnknown)

	svc = newTestRetrieval(&hashEmbedder{dim: 8, fail: true}, newMemoryIndex())
	out = svc.Retrieve(context.Background(), "gate stall", domain.CollectionCaseHistory, 3)
	assert.True(t, out.Degraded)
	assert.ErrorIs(t, out.Cause, ErrEmbeddingUnavailable)
}
