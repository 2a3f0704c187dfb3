// Package app builds the component graph shared by the server and the
// operator CLI from a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bull/pdfchat-server/internal/blob"
	"github.com/bull/pdfchat-server/internal/config"
	"github.com/bull/pdfchat-server/internal/embedding"
	"github.com/bull/pdfchat-server/internal/indexer"
	"github.com/bull/pdfchat-server/internal/llm"
	"github.com/bull/pdfchat-server/internal/metadata"
	"github.com/bull/pdfchat-server/internal/pdf"
	"github.com/bull/pdfchat-server/internal/records"
	recmem "github.com/bull/pdfchat-server/internal/records/memory"
	"github.com/bull/pdfchat-server/internal/records/mongostore"
	"github.com/bull/pdfchat-server/internal/retrieval"
	"github.com/bull/pdfchat-server/internal/service"
	"github.com/bull/pdfchat-server/internal/similarity"
	"github.com/bull/pdfchat-server/internal/speech"
	"github.com/bull/pdfchat-server/internal/storage"
	"github.com/bull/pdfchat-server/internal/storage/memory"
	"github.com/bull/pdfchat-server/internal/storage/pgvector"
	"github.com/bull/pdfchat-server/internal/tasks"
)

type Options struct {
	// Synchronous indexes uploads inline instead of on the task queue.
	Synchronous bool
}

// App holds every long-lived handle. Close releases them in reverse order.
type App struct {
	Config   *config.Config
	Records  records.Store
	Vectors  storage.VectorBackend
	Blobs    *blob.Store
	Chunks   *storage.ChunkStore
	Queue    *tasks.Queue
	Pipeline *indexer.Pipeline
	Filter   *retrieval.Filter
	Gateway  *llm.Gateway
	Service  *service.Service

	closers []func(context.Context) error
	logger  *slog.Logger
}

func New(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	if a.Records, err = a.openRecords(ctx); err != nil {
		return nil, err
	}
	if a.Vectors, err = a.openVectors(ctx); err != nil {
		return nil, err
	}
	if a.Blobs, err = blob.NewStore(cfg.Storage.UploadDir); err != nil {
		return nil, fmt.Errorf("open upload dir: %w", err)
	}

	embeddingClient, err := embedding.NewClient(cfg.Embedding.APIKeyEnv, cfg.Embedding.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, cfg.Embedding.Model, cfg.Embedding.BatchSize)
	a.Chunks = storage.NewChunkStore(a.Vectors, embedder)

	var scheduler indexer.Scheduler
	a.Queue = tasks.NewQueue(cfg.Tasks.Workers, cfg.Tasks.QueueSize, logger.With("component", "tasks"))
	a.closers = append(a.closers, a.Queue.Close)
	if !opts.Synchronous {
		scheduler = a.Queue
	}

	extractor := pdf.Extractor{}
	splitter := indexer.NewSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap, cfg.Chunking.MinWords)
	a.Pipeline = indexer.NewPipeline(a.Records, a.Blobs, a.Chunks, splitter, extractor, scheduler, logger.With("component", "indexer"))

	a.Filter = retrieval.NewFilter(a.Chunks, retrieval.FilterOptions{
		K:           cfg.Retrieval.K,
		MaxDistance: cfg.Retrieval.MaxDistance,
		Timeout:     cfg.Retrieval.Timeout,
	}, logger.With("component", "retrieval"))
	assembler := retrieval.NewAssembler(a.Filter, a.Records, a.Blobs, extractor, logger.With("component", "retrieval"))

	providers, err := llm.ProvidersFromConfig(cfg.LLM.Groups)
	if err != nil {
		return nil, err
	}
	for _, p := range providers {
		if len(p.Credentials) == 0 {
			logger.Warn("Provider group has no credentials", "group", p.Group)
		}
	}
	if a.Gateway, err = llm.NewGateway(providers, llm.NewOpenAICompleter(), cfg.LLM.Timeout, logger.With("component", "llm")); err != nil {
		return nil, err
	}

	engine := similarity.NewEngine(a.Records, a.Blobs, extractor, a.Queue, cfg.Similarity.Delay, logger.With("component", "similarity"))
	summarizer := metadata.NewGenerator(a.Gateway, cfg.Summary.Model, logger.With("component", "summary"), cfg.Summary.MaxChars)

	var speaker service.Speaker
	if cfg.TTS.Enabled {
		ttsClient, err := embedding.NewClient(cfg.TTS.APIKeyEnv, cfg.TTS.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("create speech client: %w", err)
		}
		speaker = speech.NewSynthesizer(ttsClient.Client(), cfg.TTS.Model, cfg.TTS.Voice)
	}

	a.Service = service.New(service.Deps{
		Store:      a.Records,
		Blobs:      a.Blobs,
		Chunks:     a.Chunks,
		Ingestor:   a.Pipeline,
		Filter:     a.Filter,
		Assembler:  assembler,
		Gateway:    a.Gateway,
		Similarity: engine,
		Summarizer: summarizer,
		Speaker:    speaker,
		Extractor:  extractor,
	}, service.Options{
		MaxDocuments: cfg.Limits.MaxDocuments,
		MaxWords:     cfg.Limits.MaxWords,
		DefaultModel: cfg.LLM.DefaultModel,
	}, logger.With("component", "service"))

	return a, nil
}

func (a *App) openRecords(ctx context.Context) (records.Store, error) {
	cfg := a.Config.Metadata
	switch cfg.Backend {
	case config.BackendMemory:
		a.logger.Warn("Using in-memory metadata store; records are lost on restart")
		return recmem.New(), nil
	default:
		store, err := mongostore.New(ctx, cfg.MongoURI, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect mongodb: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.logger.Info("Connected to MongoDB", "database", cfg.Database)
		return store, nil
	}
}

func (a *App) openVectors(ctx context.Context) (storage.VectorBackend, error) {
	cfg := a.Config.Storage
	switch cfg.Backend {
	case config.BackendMemory:
		a.logger.Warn("Using in-memory vector index; chunks are lost on restart")
		return memory.New(), nil
	case config.BackendPgvector:
		store, err := pgvector.New(ctx, pgvector.Config{
			ConnString: cfg.Postgres.URL,
			Table:      cfg.Postgres.Table,
			VectorDim:  cfg.VectorDim,
		})
		if err != nil {
			return nil, fmt.Errorf("connect pgvector: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error {
			store.Close()
			return nil
		})
		a.logger.Info("Connected to pgvector", "table", cfg.Postgres.Table)
		return store, nil
	default:
		store, err := storage.NewQdrantStorage(cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Collection, cfg.VectorDim)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		if err := store.EnsureCollection(ctx); err != nil {
			return nil, fmt.Errorf("ensure collection: %w", err)
		}
		a.logger.Info("Connected to Qdrant", "host", cfg.Qdrant.Host, "port", cfg.Qdrant.Port, "collection", cfg.Qdrant.Collection)
		return store, nil
	}
}

// Close drains the task queue, then closes the stores.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewLogger builds the process logger from the log configuration.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
