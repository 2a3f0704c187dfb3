package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bull/pdfchat-server/internal/indexer"
	"github.com/bull/pdfchat-server/internal/pdf"
	"github.com/bull/pdfchat-server/internal/records"
	"github.com/bull/pdfchat-server/internal/retrieval"
)

// UploadDocument stores a PDF. Re-uploading identical bytes returns the
// existing document with Existed set.
func (s *Service) UploadDocument(ctx context.Context, filename string, data []byte) (*indexer.IngestResult, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		filename = "document.pdf"
	}

	res, err := s.ingestor.Ingest(ctx, filename, data)
	switch {
	case errors.Is(err, indexer.ErrEmptyUpload):
		return nil, validationf("file is empty")
	case errors.Is(err, pdf.ErrNotPDF):
		return nil, validationf("file %q is not a PDF", filename)
	case err != nil:
		return nil, fmt.Errorf("ingest document: %w", err)
	}
	return res, nil
}

func (s *Service) ListDocuments(ctx context.Context) ([]*records.Document, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (s *Service) GetDocument(ctx context.Context, id string) (*records.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "document", id)
	}
	return doc, nil
}

// DocumentFile returns the stored PDF bytes.
func (s *Service) DocumentFile(ctx context.Context, id string) (*records.Document, []byte, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.blobs.Get(ctx, id)
	if err != nil {
		s.logger.Warn("Stored file missing", "document_id", id, "error", err)
		return nil, nil, notFound("file for document", id)
	}
	return doc, data, nil
}

// DeleteDocument removes a document that no conversation references, then
// its stored file and chunks. A referenced document is left untouched and a
// *ConflictError lists the conversations holding it.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.GetDocument(ctx, id); err != nil {
		return err
	}

	refs, err := s.store.ConversationsReferencing(ctx, id)
	if err != nil {
		return fmt.Errorf("check references: %w", err)
	}
	if len(refs) > 0 {
		return &ConflictError{DocumentID: id, References: refs}
	}

	// The store re-checks references at delete time.
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		if errors.Is(err, records.ErrReferenced) {
			refs, refErr := s.store.ConversationsReferencing(ctx, id)
			if refErr != nil {
				return fmt.Errorf("check references: %w", refErr)
			}
			return &ConflictError{DocumentID: id, References: refs}
		}
		return mapStoreError(err, "document", id)
	}

	if err := s.blobs.Delete(ctx, id); err != nil {
		s.logger.Warn("Failed to delete stored file", "document_id", id, "error", err)
	}
	if err := s.chunks.DeleteDocument(ctx, id); err != nil {
		s.logger.Warn("Failed to delete chunks", "document_id", id, "error", err)
	}

	s.logger.Info("Document deleted", "document_id", id)
	return nil
}

// Search runs the relevance-filtered chunk query directly.
func (s *Service) Search(ctx context.Context, query string, documentIDs []string, k int) ([]retrieval.Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, validationf("query is required")
	}
	if len(documentIDs) == 0 {
		docs, err := s.ListDocuments(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			documentIDs = append(documentIDs, d.ID)
		}
	}
	matches := s.filter.Query(ctx, query, documentIDs, k)
	if matches == nil {
		matches = []retrieval.Match{}
	}
	return matches, nil
}
