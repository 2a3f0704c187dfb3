package service

import (
	"context"
	"errors"

	"github.com/bull/pdfchat-server/internal/markdown"
	"github.com/bull/pdfchat-server/internal/metadata"
	"github.com/bull/pdfchat-server/internal/pdf"
	"github.com/bull/pdfchat-server/internal/records"
)

type SummaryStatus string

const (
	SummaryCached     SummaryStatus = "cached"
	SummaryGenerated  SummaryStatus = "generated"
	SummaryInProgress SummaryStatus = "in_progress"
	SummaryFailed     SummaryStatus = "failed"
)

// DocumentSummary is the summary outcome for one attached document.
type DocumentSummary struct {
	DocumentID string             `json:"document_id"`
	Filename   string             `json:"filename"`
	Status     SummaryStatus      `json:"status"`
	Summary    string             `json:"summary,omitempty"`
	Outline    []markdown.Heading `json:"outline,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// SummarizeDocuments returns a summary for each attached document, reusing
// cached ones. Per-document failures are reported in the result.
func (s *Service) SummarizeDocuments(ctx context.Context, conversationID string) ([]DocumentSummary, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	out := make([]DocumentSummary, 0, len(conv.DocumentIDs))
	for _, id := range conv.DocumentIDs {
		out = append(out, s.summarizeDocument(ctx, id))
	}
	return out, nil
}

// DocumentSummary returns the summary of a single document.
func (s *Service) DocumentSummary(ctx context.Context, id string) (DocumentSummary, error) {
	if _, err := s.GetDocument(ctx, id); err != nil {
		return DocumentSummary{}, err
	}
	return s.summarizeDocument(ctx, id), nil
}

func (s *Service) summarizeDocument(ctx context.Context, id string) DocumentSummary {
	res := DocumentSummary{DocumentID: id}

	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		res.Status = SummaryFailed
		res.Error = mapStoreError(err, "document", id).Error()
		return res
	}
	res.Filename = doc.Filename

	switch {
	case doc.Summary != "":
		res.Status = SummaryCached
		res.Summary = doc.Summary
		res.Outline = metadata.OutlineOf(doc.Summary)
		return res
	case doc.Summarizing:
		res.Status = SummaryInProgress
		return res
	}

	if err := s.store.UpdateDocument(ctx, id, records.DocumentUpdate{Summarizing: records.Ptr(true)}); err != nil {
		res.Status = SummaryFailed
		res.Error = err.Error()
		return res
	}
	defer func() {
		if err := s.store.UpdateDocument(context.WithoutCancel(ctx), id, records.DocumentUpdate{Summarizing: records.Ptr(false)}); err != nil {
			s.logger.Error("Failed to clear summarizing flag", "document_id", id, "error", err)
		}
	}()

	summary, err := s.generateSummary(ctx, id)
	if err != nil {
		s.logger.Warn("Summary failed", "document_id", id, "error", err)
		res.Status = SummaryFailed
		res.Error = err.Error()
		return res
	}

	if err := s.store.UpdateDocument(ctx, id, records.DocumentUpdate{Summary: &summary.Text}); err != nil {
		s.logger.Warn("Failed to cache summary", "document_id", id, "error", err)
	}
	res.Status = SummaryGenerated
	res.Summary = summary.Text
	res.Outline = summary.Outline
	return res
}

func (s *Service) generateSummary(ctx context.Context, id string) (*metadata.Summary, error) {
	data, err := s.blobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	pages, err := s.extractor.ExtractPages(data)
	if err != nil {
		return nil, err
	}
	text := pdf.JoinPages(pages)
	if text == "" {
		return nil, errors.New("document has no extractable text")
	}
	return s.summarizer.Summarize(ctx, text)
}
