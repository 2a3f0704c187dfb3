// Package storage is the chunk index: a text-level ChunkStore over a
// pluggable vector backend (Qdrant, pgvector or in-memory).
package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// VectorBackend stores embedded chunks and answers filtered nearest-neighbor
// queries. Implementations must tolerate concurrent readers and writers.
type VectorBackend interface {
	UpsertChunks(ctx context.Context, chunks []*Chunk) error
	// SearchChunks returns up to limit chunks whose DocumentID is in
	// documentIDs, nearest first.
	SearchChunks(ctx context.Context, embedding []float32, documentIDs []string, limit int) ([]*ScoredChunk, error)
	DeleteDocument(ctx context.Context, documentID string) error
	CountChunks(ctx context.Context, documentID string) (int, error)
	Health(ctx context.Context) error
}

// Embedder turns text into vectors.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore embeds text on the way in and on query.
type ChunkStore struct {
	backend  VectorBackend
	embedder Embedder
}

func NewChunkStore(backend VectorBackend, embedder Embedder) *ChunkStore {
	return &ChunkStore{backend: backend, embedder: embedder}
}

// Add embeds and indexes chunks for documentID, tagging each with its page.
// Returns the number of chunks written.
func (s *ChunkStore) Add(ctx context.Context, documentID string, chunks []TextChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := s.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	records := make([]*Chunk, len(chunks))
	for i, c := range chunks {
		records[i] = &Chunk{
			ID:         uuid.New().String(),
			DocumentID: documentID,
			Page:       c.Page,
			Index:      i,
			Content:    c.Content,
			Embedding:  embeddings[i],
		}
	}
	if err := s.backend.UpsertChunks(ctx, records); err != nil {
		return 0, fmt.Errorf("upsert chunks: %w", err)
	}
	return len(records), nil
}

// Query returns the k nearest chunks restricted to documentIDs. An empty
// allow-list matches nothing.
func (s *ChunkStore) Query(ctx context.Context, text string, documentIDs []string, k int) ([]*ScoredChunk, error) {
	if len(documentIDs) == 0 || k <= 0 {
		return nil, nil
	}
	embeddings, err := s.embedder.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(embeddings))
	}
	return s.backend.SearchChunks(ctx, embeddings[0], documentIDs, k)
}

// DeleteDocument removes every chunk tagged with documentID.
func (s *ChunkStore) DeleteDocument(ctx context.Context, documentID string) error {
	return s.backend.DeleteDocument(ctx, documentID)
}

func (s *ChunkStore) CountChunks(ctx context.Context, documentID string) (int, error) {
	return s.backend.CountChunks(ctx, documentID)
}

func (s *ChunkStore) Health(ctx context.Context) error {
	return s.backend.Health(ctx)
}
