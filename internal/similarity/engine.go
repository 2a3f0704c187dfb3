// Package similarity scores how alike the documents of a conversation are.
// Scores are computed in the background and persisted on the conversation.
package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bull/pdfchat-server/internal/pdf"
	"github.com/bull/pdfchat-server/internal/records"
	"github.com/bull/pdfchat-server/internal/tasks"
	"github.com/bull/pdfchat-server/internal/textstat"
)

const DefaultDelay = 2 * time.Second

type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*records.Conversation, error)
	UpdateConversation(ctx context.Context, id string, upd records.ConversationUpdate) (*records.Conversation, error)
}

type FileSource interface {
	Get(ctx context.Context, id string) ([]byte, error)
}

type PageExtractor interface {
	ExtractPages(data []byte) ([]pdf.Page, error)
}

type Scheduler interface {
	Submit(name string, fn tasks.Func) error
}

// Engine computes pairwise term-frequency cosine similarity.
type Engine struct {
	store     ConversationStore
	files     FileSource
	extractor PageExtractor
	scheduler Scheduler
	delay     time.Duration
	logger    *slog.Logger
}

// NewEngine creates an engine. A negative delay disables the debounce.
func NewEngine(store ConversationStore, files FileSource, extractor PageExtractor, scheduler Scheduler, delay time.Duration, logger *slog.Logger) *Engine {
	if extractor == nil {
		extractor = pdf.Extractor{}
	}
	if delay < 0 {
		delay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		files:     files,
		extractor: extractor,
		scheduler: scheduler,
		delay:     delay,
		logger:    logger,
	}
}

// Schedule queues a computation for the conversation after the debounce
// delay. The caller is expected to have set the computing flag. If the task
// cannot be queued the flag is cleared here.
func (e *Engine) Schedule(ctx context.Context, conversationID string) error {
	err := e.scheduler.Submit("similarity:"+conversationID, func(ctx context.Context) error {
		if e.delay > 0 {
			timer := time.NewTimer(e.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				e.clearFlag(context.WithoutCancel(ctx), conversationID)
				return ctx.Err()
			case <-timer.C:
			}
		}
		return e.Compute(ctx, conversationID)
	})
	if err != nil {
		e.logger.Error("Failed to schedule similarity", "conversation_id", conversationID, "error", err)
		e.clearFlag(ctx, conversationID)
		return fmt.Errorf("schedule similarity: %w", err)
	}
	return nil
}

// Compute scores every pair of attached documents with a stored file and
// persists the list. The computing flag is cleared however it ends.
func (e *Engine) Compute(ctx context.Context, conversationID string) (err error) {
	start := time.Now()
	persisted := false
	defer func() {
		if !persisted {
			e.clearFlag(ctx, conversationID)
		}
	}()

	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}

	ids, vectors := e.load(ctx, conv.DocumentIDs)
	scores := make([]records.SimilarityScore, 0, len(ids)*(len(ids)-1)/2)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			scores = append(scores, records.SimilarityScore{
				DocumentA: ids[i],
				DocumentB: ids[j],
				Score:     textstat.Cosine(vectors[i], vectors[j]),
			})
		}
	}

	// A newer attach-set has its own task queued; leave the flag to it.
	current, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("reload conversation: %w", err)
	}
	if !slices.Equal(current.DocumentIDs, conv.DocumentIDs) {
		persisted = true
		e.logger.Debug("Discarding stale similarity", "conversation_id", conversationID)
		return nil
	}

	if _, err := e.store.UpdateConversation(ctx, conversationID, records.ConversationUpdate{
		Similarities:        scores,
		SimilarityComputing: records.Ptr(false),
	}); err != nil {
		return fmt.Errorf("persist similarity: %w", err)
	}
	persisted = true

	e.logger.Info("Similarity computed",
		"conversation_id", conversationID,
		"documents", len(ids),
		"pairs", len(scores),
		"duration", time.Since(start),
	)
	return nil
}

// load returns term-frequency vectors for documents whose file exists.
func (e *Engine) load(ctx context.Context, documentIDs []string) ([]string, []map[string]float64) {
	var ids []string
	var vectors []map[string]float64
	for _, id := range documentIDs {
		data, err := e.files.Get(ctx, id)
		if err != nil {
			e.logger.Debug("Document file unavailable for similarity", "document_id", id, "error", err)
			continue
		}
		pages, err := e.extractor.ExtractPages(data)
		if err != nil {
			e.logger.Warn("Treating unreadable document as empty", "document_id", id, "error", err)
		}
		var tf map[string]float64
		if len(pages) > 0 {
			text := make([]string, len(pages))
			for i, p := range pages {
				text[i] = p.Text
			}
			tf = textstat.TermFrequency(strings.Join(text, "\n"))
		}
		ids = append(ids, id)
		vectors = append(vectors, tf)
	}
	return ids, vectors
}

func (e *Engine) clearFlag(ctx context.Context, conversationID string) {
	if _, err := e.store.UpdateConversation(ctx, conversationID, records.ConversationUpdate{
		SimilarityComputing: records.Ptr(false),
	}); err != nil {
		e.logger.Error("Failed to clear similarity flag", "conversation_id", conversationID, "error", err)
	}
}
