package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/pdfchat-server/internal/prompt"
	"github.com/bull/pdfchat-server/internal/retrieval"
	"github.com/bull/pdfchat-server/internal/service"
)

const (
	defaultMaxResults = 5
	maxMaxResults     = 20
)

// makeSearchHandler creates the search_documents tool handler.
// Matches beyond the retrieval distance cutoff are already dropped by the
// backend; each remaining passage is labelled with its document name.
func makeSearchHandler(backend Backend) func(
	context.Context, *mcp.CallToolRequest, SearchDocumentsInput,
) (*mcp.CallToolResult, SearchDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchDocumentsInput) (
		*mcp.CallToolResult, SearchDocumentsOutput, error,
	) {
		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = defaultMaxResults
		}
		if maxResults > maxMaxResults {
			maxResults = maxMaxResults
		}

		matches, err := backend.Search(ctx, input.Query, input.DocumentIDs, maxResults)
		if err != nil {
			return nil, SearchDocumentsOutput{}, fmt.Errorf("search failed: %w", err)
		}

		names := make(map[string]string)
		results := make([]SearchResult, 0, len(matches))
		for _, m := range matches {
			name, ok := names[m.DocumentID]
			if !ok {
				name = retrieval.UnknownDocumentName
				if doc, err := backend.GetDocument(ctx, m.DocumentID); err == nil {
					name = doc.DisplayName()
				}
				names[m.DocumentID] = name
			}
			results = append(results, SearchResult{
				DocumentID:   m.DocumentID,
				DocumentName: name,
				Page:         m.Page,
				Distance:     m.Distance,
				Text:         m.Text,
				NavTag: prompt.NavTag(retrieval.Source{
					DocumentID:   m.DocumentID,
					DocumentName: name,
					Page:         m.Page,
				}),
			})
		}

		if len(results) == 0 {
			return nil, SearchDocumentsOutput{
				Results: []SearchResult{},
				Message: "No matching passages found. Try broader search terms.",
			}, nil
		}

		return nil, SearchDocumentsOutput{Results: results}, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(backend Backend) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		docs, err := backend.ListDocuments(ctx)
		if err != nil {
			return nil, ListDocumentsOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}

		infos := make([]DocumentInfo, 0, len(docs))
		for _, d := range docs {
			infos = append(infos, DocumentInfo{
				ID:        d.ID,
				Filename:  d.Filename,
				Status:    string(d.Status),
				WordCount: d.WordCount,
				CreatedAt: d.CreatedAt,
			})
		}

		return nil, ListDocumentsOutput{
			Documents: infos,
			Count:     len(infos),
		}, nil
	}
}

// makeSummaryHandler creates the get_document_summary tool handler.
// An unknown document is reported with Found false rather than as an error.
func makeSummaryHandler(backend Backend) func(
	context.Context, *mcp.CallToolRequest, GetDocumentSummaryInput,
) (*mcp.CallToolResult, GetDocumentSummaryOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetDocumentSummaryInput) (
		*mcp.CallToolResult, GetDocumentSummaryOutput, error,
	) {
		summary, err := backend.DocumentSummary(ctx, input.DocumentID)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrValidation) {
				return nil, GetDocumentSummaryOutput{
					Found:      false,
					DocumentID: input.DocumentID,
				}, nil
			}
			return nil, GetDocumentSummaryOutput{}, fmt.Errorf("failed to summarize document: %w", err)
		}

		return nil, GetDocumentSummaryOutput{
			Found:      true,
			DocumentID: summary.DocumentID,
			Filename:   summary.Filename,
			Status:     string(summary.Status),
			Summary:    summary.Summary,
			Outline:    summary.Outline,
			Error:      summary.Error,
		}, nil
	}
}
