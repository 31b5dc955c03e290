package service

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/timmy/portdesk/internal/domain"
)

// hashEmbedder is a deterministic bag-of-words embedder.
type hashEmbedder struct {
	dim  int
	fail bool
}

func (e *hashEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(e.dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range v {
			v[i] /= n
		}
	}
	return v
}

func (e *hashEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.fail {
		return nil, ErrEmbeddingUnavailable
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		out = append(out, e.vector(t))
	}
	return out, nil
}

func (e *hashEmbedder) EmbedQuery(_ context.Context, q string) ([]float32, error) {
	if e.fail {
		return nil, ErrEmbeddingUnavailable
	}
	if strings.TrimSpace(q) == "" {
		return nil, ErrNoEmbeddableText
	}
	return e.vector(q), nil
}

// memoryIndex is an exact cosine-similarity index.
type memoryIndex struct {
	mu          sync.Mutex
	points      map[string][]domain.VectorPoint
	ensured     map[string]int
	failSearch  bool
	failUpserts bool
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{points: map[string][]domain.VectorPoint{}, ensured: map[string]int{}}
}

func (m *memoryIndex) EnsureCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensured[name]++
	return nil
}

func (m *memoryIndex) Upsert(_ context.Context, collection string, points []domain.VectorPoint) error {
	if m.failUpserts {
		return errors.New("index unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[collection] = append(m.points[collection], points...)
	return nil
}

func (m *memoryIndex) Search(_ context.Context, collection string, vector []float32, topK int) ([]domain.VectorHit, error) {
	if m.failSearch {
		return nil, errors.New("index unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var hits []domain.VectorHit
	for _, p := range m.points[collection] {
		var dot float32
		for i := range vector {
			dot += vector[i] * p.Vector[i]
		}
		meta := map[string]interface{}{}
		for k, v := range p.Payload {
			if k != "text" {
				meta[k] = v
			}
		}
		text, _ := p.Payload["text"].(string)
		hits = append(hits, domain.VectorHit{ID: p.ID, Score: dot, Text: text, Metadata: meta})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *memoryIndex) texts(collection string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.points[collection] {
		out = append(out, p.Payload["text"].(string))
	}
	return out
}
