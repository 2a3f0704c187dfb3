package indexer

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/bull/pdfchat-server/internal/pdf"
	"github.com/bull/pdfchat-server/internal/storage"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultMinWords     = 5
)

// Splitter cuts page text into overlapping windows, preferring paragraph,
// then line, then sentence, then word boundaries.
type Splitter struct {
	splitter textsplitter.RecursiveCharacter
	minWords int
}

// NewSplitter builds a splitter; zero values select the defaults.
func NewSplitter(size, overlap, minWords int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = min(DefaultChunkOverlap, size/5)
	}
	if minWords <= 0 {
		minWords = DefaultMinWords
	}
	return &Splitter{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
		),
		minWords: minWords,
	}
}

// SplitPages splits each page separately so every chunk keeps a single page
// number. Windows under the minimum word count are dropped; the number
// dropped is returned alongside the chunks.
func (s *Splitter) SplitPages(pages []pdf.Page) ([]storage.TextChunk, int, error) {
	var chunks []storage.TextChunk
	dropped := 0

	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		windows, err := s.splitter.SplitText(page.Text)
		if err != nil {
			return nil, 0, fmt.Errorf("split page %d: %w", page.Number, err)
		}
		for _, w := range windows {
			w = strings.TrimSpace(w)
			if pdf.WordCount(w) < s.minWords {
				dropped++
				continue
			}
			chunks = append(chunks, storage.TextChunk{Page: page.Number, Content: w})
		}
	}

	return chunks, dropped, nil
}
