// Package retrieval selects the context handed to the model: relevance-filtered
// chunk matches, or whole documents page by page.
package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/bull/pdfchat-server/internal/storage"
)

const (
	DefaultK           = 5
	DefaultMaxDistance = 1.5
	DefaultTimeout     = 10 * time.Second
)

// Searcher is the query side of storage.ChunkStore.
type Searcher interface {
	Query(ctx context.Context, text string, documentIDs []string, k int) ([]*storage.ScoredChunk, error)
}

// Match is a chunk that passed the relevance cutoff.
type Match struct {
	Text       string  `json:"text"`
	DocumentID string  `json:"document_id"`
	Page       int     `json:"page"`
	Distance   float64 `json:"distance"`
}

type FilterOptions struct {
	K           int
	MaxDistance float64
	Timeout     time.Duration
}

// Filter queries the chunk index and drops matches beyond MaxDistance.
// It fails open: any index error yields no matches.
type Filter struct {
	searcher Searcher
	opts     FilterOptions
	logger   *slog.Logger
}

func NewFilter(searcher Searcher, opts FilterOptions, logger *slog.Logger) *Filter {
	if opts.K <= 0 {
		opts.K = DefaultK
	}
	if opts.MaxDistance <= 0 {
		opts.MaxDistance = DefaultMaxDistance
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{searcher: searcher, opts: opts, logger: logger}
}

// MaxDistance is the configured cutoff.
func (f *Filter) MaxDistance() float64 { return f.opts.MaxDistance }

// Query returns up to k matches from documentIDs, nearest first. k <= 0
// selects the configured default.
func (f *Filter) Query(ctx context.Context, text string, documentIDs []string, k int) []Match {
	if len(documentIDs) == 0 {
		return nil
	}
	if k <= 0 {
		k = f.opts.K
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	hits, err := f.searcher.Query(ctx, text, documentIDs, k)
	if err != nil {
		f.logger.Warn("Retrieval unavailable, continuing without context", "documents", len(documentIDs), "error", err)
		return nil
	}

	matches := make([]Match, 0, len(hits))
	dropped := 0
	for _, h := range hits {
		if h == nil || h.Distance > f.opts.MaxDistance {
			dropped++
			continue
		}
		matches = append(matches, Match{
			Text:       h.Content,
			DocumentID: h.DocumentID,
			Page:       h.Page,
			Distance:   h.Distance,
		})
	}
	if dropped > 0 {
		f.logger.Debug("Dropped distant matches", "dropped", dropped, "kept", len(matches), "max_distance", f.opts.MaxDistance)
	}
	return matches
}
