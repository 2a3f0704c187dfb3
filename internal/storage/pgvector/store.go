// Package pgvector is a Postgres vector backend using the pgvector extension.
package pgvector

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bull/pdfchat-server/internal/storage"
)

type Config struct {
	ConnString string
	Table      string
	VectorDim  int
}

type Store struct {
	config Config
	pool   *pgxpool.Pool
}

var _ storage.VectorBackend = (*Store)(nil)

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func New(ctx context.Context, config Config) (*Store, error) {
	if config.Table == "" {
		config.Table = storage.DefaultCollection
	}
	if config.VectorDim == 0 {
		config.VectorDim = storage.DefaultVectorDimension
	}
	if !tableName.MatchString(config.Table) {
		return nil, fmt.Errorf("invalid table name %q", config.Table)
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &Store{config: config, pool: pool}
	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			document_id TEXT NOT NULL,
			page INTEGER NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, s.config.Table, s.config.VectorDim)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	createIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_document_id_idx ON %s (document_id)`,
		s.config.Table, s.config.Table)
	if _, err := s.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) UpsertChunks(ctx context.Context, chunks []*storage.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, page, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`, s.config.Table)

	for i, c := range chunks {
		if len(c.Embedding) != s.config.VectorDim {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				storage.ErrDimensionMismatch, i, len(c.Embedding), s.config.VectorDim)
		}
		_, err := tx.Exec(ctx, stmt, c.ID, c.DocumentID, c.Page, c.Index, c.Content, pgvector.NewVector(c.Embedding))
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SearchChunks orders by cosine distance (<=>, which is 1 - cos) and reports
// squared-L2 distance, 2 * (1 - cos).
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, documentIDs []string, limit int) ([]*storage.ScoredChunk, error) {
	if len(documentIDs) == 0 || limit <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id::text, document_id, page, chunk_index, content, embedding <=> $1 AS distance
		FROM %s
		WHERE document_id = ANY($2)
		ORDER BY distance
		LIMIT $3`, s.config.Table)

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(embedding), documentIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var hits []*storage.ScoredChunk
	for rows.Next() {
		var hit storage.ScoredChunk
		var cosineDistance float64
		if err := rows.Scan(&hit.ID, &hit.DocumentID, &hit.Page, &hit.Index, &hit.Content, &cosineDistance); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		hit.Distance = 2 * cosineDistance
		hits = append(hits, &hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return hits, nil
}

func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", s.config.Table), documentID)
	if err != nil {
		return fmt.Errorf("delete chunks of %s: %w", documentID, err)
	}
	return nil
}

func (s *Store) CountChunks(ctx context.Context, documentID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE document_id = $1", s.config.Table), documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (s *Store) Health(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrVectorStoreUnreachable, err)
	}
	return nil
}
