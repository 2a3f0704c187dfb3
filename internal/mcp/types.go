// Package mcp exposes document retrieval to agent clients over the Model
// Context Protocol.
package mcp

import (
	"time"

	"github.com/bull/pdfchat-server/internal/markdown"
)

// SearchDocumentsInput defines the input parameters for the search_documents tool.
type SearchDocumentsInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"The semantic search query"`
	// DocumentIDs restricts the search. Empty searches every document.
	DocumentIDs []string `json:"document_ids,omitempty" jsonschema:"Document ids to search within; omit to search all documents"`
	// MaxResults is the maximum number of passages to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"Maximum number of passages to return (default 5)"`
}

// SearchDocumentsOutput contains the search results.
type SearchDocumentsOutput struct {
	Results []SearchResult `json:"results"`
	// Message provides informational context (e.g., "No matching passages found").
	Message string `json:"message,omitempty"`
}

// SearchResult is a single passage match.
type SearchResult struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Page         int     `json:"page"`
	Distance     float64 `json:"distance"`
	Text         string  `json:"text"`
	// NavTag links the passage back to its page in the viewer.
	NavTag string `json:"nav_tag"`
}

// ListDocumentsInput takes no parameters.
type ListDocumentsInput struct{}

// ListDocumentsOutput contains every uploaded document.
type ListDocumentsOutput struct {
	Documents []DocumentInfo `json:"documents"`
	Count     int            `json:"count"`
}

type DocumentInfo struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Status    string    `json:"status"`
	WordCount int       `json:"word_count"`
	CreatedAt time.Time `json:"created_at"`
}

// GetDocumentSummaryInput defines the input parameters for the get_document_summary tool.
type GetDocumentSummaryInput struct {
	DocumentID string `json:"document_id" jsonschema:"The id of the document to summarize"`
}

// GetDocumentSummaryOutput contains the summary of one document.
type GetDocumentSummaryOutput struct {
	Found      bool               `json:"found"`
	DocumentID string             `json:"document_id"`
	Filename   string             `json:"filename,omitempty"`
	Status     string             `json:"status,omitempty"`
	Summary    string             `json:"summary,omitempty"`
	Outline    []markdown.Heading `json:"outline,omitempty"`
	Error      string             `json:"error,omitempty"`
}
