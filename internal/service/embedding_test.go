package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/portdesk/internal/config"
)

// embeddingServer answers with vectors [len(text), position] in reverse
// order so the client has to sort by index.
func embeddingServer(t *testing.T, calls *int32, fail bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
			return
		}
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Embedding: []float32{float32(len(req.Input[i])), float32(i)}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
}

func TestEmbedBatchFiltersBatchesAndOrders(t *testing.T) {
	var calls int32
	srv := embeddingServer(t, &calls, false)
	defer srv.Close()

	svc := NewEmbeddingService(&config.EmbeddingConfig{
		Provider: "openai-compatible", Model: "m", APIKey: "key", BaseURL: srv.URL, BatchSize: 2,
	})

	vecs, err := svc.EmbedBatch(context.Background(), []string{"a", "  ", "bbb", "", "cc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{3, 1}, vecs[1])
	assert.Equal(t, []float32{2, 0}, vecs[2])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEmbedBatchUnavailableWithoutKey(t *testing.T) {
	svc := NewEmbeddingService(&config.EmbeddingConfig{Provider: "openai-compatible", Model: "m", BaseURL: "http://x"})
	_, err := svc.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)

	_, err = svc.EmbedQuery(context.Background(), "a")
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestEmbedBatchNothingToEmbed(t *testing.T) {
	svc := NewEmbeddingService(&config.EmbeddingConfig{Provider: "openai-compatible", Model: "m", APIKey: "key", BaseURL: "http://x"})
	_, err := svc.EmbedBatch(context.Background(), []string{" ", ""})
	assert.ErrorIs(t, err, ErrNoEmbeddableText)
}

func TestEmbedBatchPropagatesUpstreamFailure(t *testing.T) {
	var calls int32
	srv := embeddingServer(t, &calls, true)
	defer srv.Close()

	svc := NewEmbeddingService(&config.EmbeddingConfig{Provider: "openai-compatible", Model: "m", APIKey: "key", BaseURL: srv.URL})
	_, err := svc.EmbedBatch(context.Background(), []string{"a"})
	require.ErrorIs(t, err, ErrEmbeddingBatchFailed)
	assert.Contains(t, err.Error(), "boom")
}

func TestEmbedQuery(t *testing.T) {
	var calls int32
	srv := embeddingServer(t, &calls, false)
	defer srv.Close()

	svc := NewEmbeddingService(&config.EmbeddingConfig{Provider: "openai-compatible", Model: "m", APIKey: "key", BaseURL: srv.URL + "/"})
	vec, err := svc.EmbedQuery(context.Background(), " edi ")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 0}, vec)
}
