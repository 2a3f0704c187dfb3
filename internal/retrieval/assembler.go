package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bull/pdfchat-server/internal/pdf"
	"github.com/bull/pdfchat-server/internal/records"
)

// UnknownDocumentName stands in for a document whose record cannot be read.
const UnknownDocumentName = "Unknown document"

// Mode selects how context is assembled.
type Mode string

const (
	ModeChunk        Mode = "chunk"
	ModeFullDocument Mode = "full-document"
)

// ParseMode accepts "chunk", "full-document" or empty (chunk).
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeChunk:
		return ModeChunk, nil
	case ModeFullDocument, "full_document", "full":
		return ModeFullDocument, nil
	default:
		return "", fmt.Errorf("unknown context mode %q", s)
	}
}

// Source attributes a passage to a document page.
type Source struct {
	DocumentID   string `json:"id"`
	DocumentName string `json:"name"`
	Page         int    `json:"page"`
}

// Passage is context text with its source.
type Passage struct {
	Text   string
	Source Source
}

type DocumentLookup interface {
	GetDocument(ctx context.Context, id string) (*records.Document, error)
}

type FileSource interface {
	Get(ctx context.Context, id string) ([]byte, error)
}

type PageExtractor interface {
	ExtractPages(data []byte) ([]pdf.Page, error)
}

// Assembler builds the passages for one chat turn.
type Assembler struct {
	filter    *Filter
	documents DocumentLookup
	files     FileSource
	extractor PageExtractor
	logger    *slog.Logger
}

func NewAssembler(filter *Filter, documents DocumentLookup, files FileSource, extractor PageExtractor, logger *slog.Logger) *Assembler {
	if extractor == nil {
		extractor = pdf.Extractor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		filter:    filter,
		documents: documents,
		files:     files,
		extractor: extractor,
		logger:    logger,
	}
}

// Assemble returns passages for question over documentIDs. It never fails;
// anything it cannot read is skipped and logged.
func (a *Assembler) Assemble(ctx context.Context, mode Mode, question string, documentIDs []string) []Passage {
	if mode == ModeFullDocument {
		return a.fullDocuments(ctx, documentIDs)
	}
	return a.chunks(ctx, question, documentIDs)
}

func (a *Assembler) chunks(ctx context.Context, question string, documentIDs []string) []Passage {
	matches := a.filter.Query(ctx, question, documentIDs, 0)
	if len(matches) == 0 {
		return nil
	}

	names := make(map[string]string)
	passages := make([]Passage, 0, len(matches))
	for _, m := range matches {
		name, ok := names[m.DocumentID]
		if !ok {
			name = a.displayName(ctx, m.DocumentID)
			names[m.DocumentID] = name
		}
		passages = append(passages, Passage{
			Text: m.Text,
			Source: Source{
				DocumentID:   m.DocumentID,
				DocumentName: name,
				Page:         m.Page,
			},
		})
	}
	return passages
}

func (a *Assembler) fullDocuments(ctx context.Context, documentIDs []string) []Passage {
	var passages []Passage
	for _, id := range documentIDs {
		data, err := a.files.Get(ctx, id)
		if err != nil {
			a.logger.Warn("Skipping document without stored file", "document_id", id, "error", err)
			continue
		}
		pages, err := a.extractor.ExtractPages(data)
		if err != nil {
			a.logger.Warn("Skipping unreadable document", "document_id", id, "error", err)
			continue
		}

		name := a.displayName(ctx, id)
		for _, p := range pages {
			if strings.TrimSpace(p.Text) == "" {
				continue
			}
			passages = append(passages, Passage{
				Text:   p.Text,
				Source: Source{DocumentID: id, DocumentName: name, Page: p.Number},
			})
		}
	}
	return passages
}

func (a *Assembler) displayName(ctx context.Context, id string) string {
	doc, err := a.documents.GetDocument(ctx, id)
	if err != nil {
		a.logger.Debug("Document name unavailable", "document_id", id, "error", err)
		return UnknownDocumentName
	}
	return doc.DisplayName()
}
