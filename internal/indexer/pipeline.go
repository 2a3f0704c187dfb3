// Package indexer ingests uploaded PDFs: deduplicates by content hash,
// stores the raw file, and indexes page-tagged chunks in the background.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/pdfchat-server/internal/pdf"
	"github.com/bull/pdfchat-server/internal/records"
	"github.com/bull/pdfchat-server/internal/storage"
	"github.com/bull/pdfchat-server/internal/tasks"
)

var ErrEmptyUpload = errors.New("uploaded file is empty")

// BlobStore holds raw PDF bytes by document id.
type BlobStore interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
}

// ChunkIndex is the part of storage.ChunkStore the pipeline writes to.
type ChunkIndex interface {
	Add(ctx context.Context, documentID string, chunks []storage.TextChunk) (int, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

type PageExtractor interface {
	ExtractPages(data []byte) ([]pdf.Page, error)
}

// Scheduler runs background work; *tasks.Queue satisfies it.
type Scheduler interface {
	Submit(name string, fn tasks.Func) error
}

// IngestResult is the outcome of an upload.
type IngestResult struct {
	Document *records.Document
	Existed  bool
}

// IndexResult contains statistics about indexing one document.
type IndexResult struct {
	DocumentID    string
	Pages         int
	Chunks        int
	DroppedChunks int
	Duration      time.Duration
}

// Pipeline orchestrates ingestion from upload to chunk storage.
type Pipeline struct {
	store     records.Store
	blobs     BlobStore
	chunks    ChunkIndex
	splitter  *Splitter
	extractor PageExtractor
	scheduler Scheduler
	logger    *slog.Logger
}

// NewPipeline wires the ingestion pipeline. With a nil scheduler, indexing
// and word counting run inline before Ingest returns.
func NewPipeline(
	store records.Store,
	blobs BlobStore,
	chunks ChunkIndex,
	splitter *Splitter,
	extractor PageExtractor,
	scheduler Scheduler,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if splitter == nil {
		splitter = NewSplitter(0, 0, 0)
	}
	if extractor == nil {
		extractor = pdf.Extractor{}
	}
	return &Pipeline{
		store:     store,
		blobs:     blobs,
		chunks:    chunks,
		splitter:  splitter,
		extractor: extractor,
		scheduler: scheduler,
		logger:    logger,
	}
}

// ContentHash is the hex SHA-256 used for deduplication.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Ingest stores a new upload and schedules its indexing. Uploading bytes
// that are already stored returns the existing document with Existed set
// and does no further work.
func (p *Pipeline) Ingest(ctx context.Context, filename string, data []byte) (*IngestResult, error) {
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	if !pdf.IsPDF(data) {
		return nil, pdf.ErrNotPDF
	}

	hash := ContentHash(data)
	existing, err := p.store.FindDocumentByHash(ctx, hash)
	if err == nil {
		p.logger.Info("Duplicate upload", "document_id", existing.ID, "filename", filename)
		return &IngestResult{Document: existing, Existed: true}, nil
	}
	if !errors.Is(err, records.ErrNotFound) {
		return nil, fmt.Errorf("lookup hash: %w", err)
	}

	doc := &records.Document{
		Filename: filename,
		Hash:     hash,
		Status:   records.StatusPending,
	}
	if err := p.store.InsertDocument(ctx, doc); err != nil {
		// Lost a race with a concurrent upload of the same bytes.
		if errors.Is(err, records.ErrDuplicateHash) {
			existing, lookupErr := p.store.FindDocumentByHash(ctx, hash)
			if lookupErr != nil {
				return nil, fmt.Errorf("lookup hash after conflict: %w", lookupErr)
			}
			return &IngestResult{Document: existing, Existed: true}, nil
		}
		return nil, fmt.Errorf("insert document: %w", err)
	}

	if err := p.blobs.Put(ctx, doc.ID, data); err != nil {
		if delErr := p.store.DeleteDocument(ctx, doc.ID); delErr != nil {
			p.logger.Warn("Failed to remove document after blob write failure", "document_id", doc.ID, "error", delErr)
		}
		return nil, fmt.Errorf("store file: %w", err)
	}

	p.logger.Info("Document uploaded", "document_id", doc.ID, "filename", filename, "bytes", len(data))
	p.schedule(ctx, doc.ID)

	return &IngestResult{Document: doc, Existed: false}, nil
}

func (p *Pipeline) schedule(ctx context.Context, id string) {
	index := func(ctx context.Context) error {
		_, err := p.IndexDocument(ctx, id)
		return err
	}
	count := func(ctx context.Context) error {
		return p.CountWords(ctx, id)
	}

	if p.scheduler == nil {
		_ = index(ctx)
		_ = count(ctx)
		return
	}

	if err := p.scheduler.Submit("index:"+id, index); err != nil {
		p.logger.Error("Failed to schedule indexing", "document_id", id, "error", err)
		p.setStatus(ctx, id, records.StatusFailed)
	}
	if err := p.scheduler.Submit("wordcount:"+id, count); err != nil {
		p.logger.Warn("Failed to schedule word count", "document_id", id, "error", err)
	}
}

// IndexDocument extracts, splits and indexes a stored document, replacing
// any chunks it already had. The document ends "ready" on success and
// "failed" otherwise, including when a stage panics.
func (p *Pipeline) IndexDocument(ctx context.Context, id string) (_ *IndexResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("index %s: panic: %v", id, r)
			p.logger.Error("Indexing panicked", "document_id", id, "panic", r)
			p.setStatus(context.WithoutCancel(ctx), id, records.StatusFailed)
		}
	}()

	start := time.Now()
	result, err := p.indexDocument(ctx, id)
	if err != nil {
		p.logger.Warn("Failed to index document", "document_id", id, "error", err)
		p.setStatus(ctx, id, records.StatusFailed)
		return nil, err
	}
	result.Duration = time.Since(start)

	p.setStatus(ctx, id, records.StatusReady)
	p.logger.Info("Document indexed",
		"document_id", id,
		"pages", result.Pages,
		"chunks", result.Chunks,
		"dropped", result.DroppedChunks,
		"duration", result.Duration,
	)
	return result, nil
}

func (p *Pipeline) indexDocument(ctx context.Context, id string) (*IndexResult, error) {
	data, err := p.blobs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load file: %w", err)
	}

	pages, err := p.extractor.ExtractPages(data)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	chunks, dropped, err := p.splitter.SplitPages(pages)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}

	if err := p.chunks.DeleteDocument(ctx, id); err != nil {
		return nil, fmt.Errorf("clear previous chunks: %w", err)
	}
	n, err := p.chunks.Add(ctx, id, chunks)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	return &IndexResult{
		DocumentID:    id,
		Pages:         len(pages),
		Chunks:        n,
		DroppedChunks: dropped,
	}, nil
}

// CountWords records the document's word count. Extraction failures leave
// the count at zero and are not reported as errors.
func (p *Pipeline) CountWords(ctx context.Context, id string) error {
	count, err := p.countWords(ctx, id)
	if err != nil {
		p.logger.Warn("Word count unavailable", "document_id", id, "error", err)
		count = 0
	}

	if err := p.store.UpdateDocument(ctx, id, records.DocumentUpdate{WordCount: &count}); err != nil {
		return fmt.Errorf("update word count: %w", err)
	}
	return nil
}

func (p *Pipeline) countWords(ctx context.Context, id string) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			count, err = 0, fmt.Errorf("panic: %v", r)
		}
	}()

	data, err := p.blobs.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	pages, err := p.extractor.ExtractPages(data)
	if err != nil {
		return 0, err
	}
	return pdf.WordCount(pdf.JoinPages(pages)), nil
}

func (p *Pipeline) setStatus(ctx context.Context, id string, status records.DocumentStatus) {
	if err := p.store.UpdateDocument(ctx, id, records.DocumentUpdate{Status: &status}); err != nil {
		p.logger.Error("Failed to update document status", "document_id", id, "status", status, "error", err)
	}
}
