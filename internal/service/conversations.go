package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bull/pdfchat-server/internal/records"
)

// ConversationPatch is a partial conversation update. Nil fields are kept.
type ConversationPatch struct {
	Label       *string
	DocumentIDs *[]string
}

func (s *Service) ListConversations(ctx context.Context) ([]*records.Conversation, error) {
	convs, err := s.store.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

func (s *Service) GetConversation(ctx context.Context, id string) (*records.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "conversation", id)
	}
	return conv, nil
}

// CreateConversation validates the attachment set against the document and
// word ceilings, stores the conversation and, with two or more documents,
// starts the similarity computation.
func (s *Service) CreateConversation(ctx context.Context, label string, documentIDs []string) (*records.Conversation, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, validationf("label is required")
	}
	if documentIDs == nil {
		documentIDs = []string{}
	}
	if err := s.validateAttachments(ctx, documentIDs); err != nil {
		return nil, err
	}

	conv := &records.Conversation{
		Label:               label,
		DocumentIDs:         documentIDs,
		SimilarityComputing: len(documentIDs) >= 2,
		Similarities:        []records.SimilarityScore{},
	}
	if err := s.store.InsertConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	s.logger.Info("Conversation created", "conversation_id", conv.ID, "documents", len(documentIDs))

	s.scheduleSimilarity(ctx, conv)
	return s.GetConversation(ctx, conv.ID)
}

// UpdateConversation applies a label and/or attachment change. A new
// attachment set resets the similarity scores and recomputes them.
func (s *Service) UpdateConversation(ctx context.Context, id string, patch ConversationPatch) (*records.Conversation, error) {
	if patch.Label == nil && patch.DocumentIDs == nil {
		return nil, validationf("no fields to update")
	}
	if _, err := s.GetConversation(ctx, id); err != nil {
		return nil, err
	}

	var upd records.ConversationUpdate
	if patch.Label != nil {
		label := strings.TrimSpace(*patch.Label)
		if label == "" {
			return nil, validationf("label must not be empty")
		}
		upd.Label = &label
	}
	if patch.DocumentIDs != nil {
		ids := *patch.DocumentIDs
		if ids == nil {
			ids = []string{}
		}
		if err := s.validateAttachments(ctx, ids); err != nil {
			return nil, err
		}
		upd.DocumentIDs = ids
		upd.Similarities = []records.SimilarityScore{}
		upd.SimilarityComputing = records.Ptr(len(ids) >= 2)
	}

	conv, err := s.store.UpdateConversation(ctx, id, upd)
	if err != nil {
		return nil, mapStoreError(err, "conversation", id)
	}

	if patch.DocumentIDs != nil {
		s.scheduleSimilarity(ctx, conv)
		return s.GetConversation(ctx, id)
	}
	return conv, nil
}

func (s *Service) DeleteConversation(ctx context.Context, id string) error {
	if err := s.store.DeleteConversation(ctx, id); err != nil {
		return mapStoreError(err, "conversation", id)
	}
	s.logger.Info("Conversation deleted", "conversation_id", id)
	return nil
}

// ClearHistory empties the message list and returns the conversation.
func (s *Service) ClearHistory(ctx context.Context, id string) (*records.Conversation, error) {
	conv, err := s.store.UpdateConversation(ctx, id, records.ConversationUpdate{ClearHistory: true})
	if err != nil {
		return nil, mapStoreError(err, "conversation", id)
	}
	return conv, nil
}

// validateAttachments enforces distinct, existing documents within the
// document-count and combined word-count ceilings.
func (s *Service) validateAttachments(ctx context.Context, ids []string) error {
	if len(ids) > s.opts.MaxDocuments {
		return validationf("a conversation may attach at most %d documents, got %d", s.opts.MaxDocuments, len(ids))
	}

	seen := make(map[string]struct{}, len(ids))
	words := 0
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return validationf("document %q attached twice", id)
		}
		seen[id] = struct{}{}

		doc, err := s.store.GetDocument(ctx, id)
		if err != nil {
			if errors.Is(err, records.ErrNotFound) || errors.Is(err, records.ErrInvalidID) {
				return validationf("document %q does not exist", id)
			}
			return fmt.Errorf("load document %s: %w", id, err)
		}
		words += doc.WordCount
	}

	if words > s.opts.MaxWords {
		return validationf("attached documents total %d words, limit is %d", words, s.opts.MaxWords)
	}
	return nil
}

func (s *Service) scheduleSimilarity(ctx context.Context, conv *records.Conversation) {
	if len(conv.DocumentIDs) < 2 {
		return
	}
	// Schedule clears the computing flag itself when it fails.
	if err := s.similarity.Schedule(ctx, conv.ID); err != nil {
		s.logger.Warn("Similarity not scheduled", "conversation_id", conv.ID, "error", err)
	}
}
