// Package memory is a brute-force in-process vector backend.
package memory

import (
	"context"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/bull/pdfchat-server/internal/storage"
)

type Backend struct {
	mu     sync.RWMutex
	chunks map[string]*storage.Chunk
}

var _ storage.VectorBackend = (*Backend)(nil)

func New() *Backend {
	return &Backend{chunks: make(map[string]*storage.Chunk)}
}

func (b *Backend) UpsertChunks(_ context.Context, chunks []*storage.Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range chunks {
		cp := *c
		cp.Embedding = normalize(c.Embedding)
		b.chunks[c.ID] = &cp
	}
	return nil
}

func (b *Backend) SearchChunks(_ context.Context, embedding []float32, documentIDs []string, limit int) ([]*storage.ScoredChunk, error) {
	if len(documentIDs) == 0 || limit <= 0 {
		return nil, nil
	}
	query := normalize(embedding)

	b.mu.RLock()
	defer b.mu.RUnlock()

	var hits []*storage.ScoredChunk
	for _, c := range b.chunks {
		if !slices.Contains(documentIDs, c.DocumentID) || len(c.Embedding) != len(query) {
			continue
		}
		hit := &storage.ScoredChunk{
			Chunk:    *c,
			Distance: storage.DistanceFromCosine(dot(query, c.Embedding)),
		}
		hit.Embedding = nil
		hits = append(hits, hit)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		if hits[i].DocumentID != hits[j].DocumentID {
			return hits[i].DocumentID < hits[j].DocumentID
		}
		return hits[i].Index < hits[j].Index
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (b *Backend) DeleteDocument(_ context.Context, documentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, c := range b.chunks {
		if c.DocumentID == documentID {
			delete(b.chunks, id)
		}
	}
	return nil
}

func (b *Backend) CountChunks(_ context.Context, documentID string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, c := range b.chunks {
		if c.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

// Chunks returns a copy of every stored chunk of documentID in index order.
func (b *Backend) Chunks(documentID string) []storage.Chunk {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []storage.Chunk
	for _, c := range b.chunks {
		if c.DocumentID == documentID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (b *Backend) Health(context.Context) error { return nil }

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
