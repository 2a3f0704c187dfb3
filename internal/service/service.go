// Package service implements every operation the HTTP and MCP surfaces
// expose, and classifies failures as validation, not-found, conflict,
// upstream or internal errors.
package service

import (
	"context"
	"log/slog"

	"github.com/bull/pdfchat-server/internal/indexer"
	"github.com/bull/pdfchat-server/internal/llm"
	"github.com/bull/pdfchat-server/internal/metadata"
	"github.com/bull/pdfchat-server/internal/pdf"
	"github.com/bull/pdfchat-server/internal/records"
	"github.com/bull/pdfchat-server/internal/retrieval"
	"github.com/bull/pdfchat-server/internal/speech"
)

const (
	DefaultMaxDocuments = 20
	DefaultMaxWords     = 50000
)

type BlobStore interface {
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

type ChunkRemover interface {
	DeleteDocument(ctx context.Context, documentID string) error
}

type Ingestor interface {
	Ingest(ctx context.Context, filename string, data []byte) (*indexer.IngestResult, error)
}

type Gateway interface {
	Send(ctx context.Context, model string, messages []llm.Message) (string, error)
	Supports(model string) bool
	Models() []llm.ModelInfo
}

type SimilarityScheduler interface {
	Schedule(ctx context.Context, conversationID string) error
}

type Summarizer interface {
	Summarize(ctx context.Context, content string) (*metadata.Summary, error)
}

type Speaker interface {
	Speak(ctx context.Context, markdown string) (*speech.Audio, error)
}

type PageExtractor interface {
	ExtractPages(data []byte) ([]pdf.Page, error)
}

// Deps are the collaborators a Service orchestrates. Speaker may be nil.
type Deps struct {
	Store      records.Store
	Blobs      BlobStore
	Chunks     ChunkRemover
	Ingestor   Ingestor
	Filter     *retrieval.Filter
	Assembler  *retrieval.Assembler
	Gateway    Gateway
	Similarity SimilarityScheduler
	Summarizer Summarizer
	Speaker    Speaker
	Extractor  PageExtractor
}

type Options struct {
	MaxDocuments int
	MaxWords     int
	DefaultModel string
}

type Service struct {
	store      records.Store
	blobs      BlobStore
	chunks     ChunkRemover
	ingestor   Ingestor
	filter     *retrieval.Filter
	assembler  *retrieval.Assembler
	gateway    Gateway
	similarity SimilarityScheduler
	summarizer Summarizer
	speaker    Speaker
	extractor  PageExtractor
	opts       Options
	logger     *slog.Logger
}

func New(deps Deps, opts Options, logger *slog.Logger) *Service {
	if opts.MaxDocuments <= 0 {
		opts.MaxDocuments = DefaultMaxDocuments
	}
	if opts.MaxWords <= 0 {
		opts.MaxWords = DefaultMaxWords
	}
	if deps.Extractor == nil {
		deps.Extractor = pdf.Extractor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      deps.Store,
		blobs:      deps.Blobs,
		chunks:     deps.Chunks,
		ingestor:   deps.Ingestor,
		filter:     deps.Filter,
		assembler:  deps.Assembler,
		gateway:    deps.Gateway,
		similarity: deps.Similarity,
		summarizer: deps.Summarizer,
		speaker:    deps.Speaker,
		extractor:  deps.Extractor,
		opts:       opts,
		logger:     logger,
	}
}

// Models lists the chat models and their provider groups.
func (s *Service) Models() []llm.ModelInfo {
	return s.gateway.Models()
}

// DefaultModel is used when a message names no model.
func (s *Service) DefaultModel() string {
	return s.opts.DefaultModel
}
