// Package memory is an in-process records.Store used by tests and
// single-node development runs.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bull/pdfchat-server/internal/records"
)

type Store struct {
	mu            sync.RWMutex
	documents     map[string]*records.Document
	byHash        map[string]string
	conversations map[string]*records.Conversation
	now           func() time.Time
}

var _ records.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		documents:     make(map[string]*records.Document),
		byHash:        make(map[string]string),
		conversations: make(map[string]*records.Conversation),
		now:           time.Now,
	}
}

func (s *Store) InsertDocument(_ context.Context, doc *records.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHash[doc.Hash]; exists {
		return records.ErrDuplicateHash
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now().UTC()
	}
	cp := *doc
	s.documents[doc.ID] = &cp
	s.byHash[doc.Hash] = doc.ID
	return nil
}

func (s *Store) GetDocument(_ context.Context, id string) (*records.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, records.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *Store) FindDocumentByHash(_ context.Context, hash string) (*records.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, records.ErrNotFound
	}
	cp := *s.documents[id]
	return &cp, nil
}

func (s *Store) ListDocuments(_ context.Context) ([]*records.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*records.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		cp := *doc
		docs = append(docs, &cp)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs, nil
}

func (s *Store) UpdateDocument(_ context.Context, id string, upd records.DocumentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return records.ErrNotFound
	}
	if upd.WordCount != nil {
		doc.WordCount = *upd.WordCount
	}
	if upd.Status != nil {
		doc.Status = *upd.Status
	}
	if upd.Summary != nil {
		doc.Summary = *upd.Summary
	}
	if upd.Summarizing != nil {
		doc.Summarizing = *upd.Summarizing
	}
	return nil
}

// DeleteDocument checks references and deletes under one lock, so no
// conversation can attach the document in between.
func (s *Store) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return records.ErrNotFound
	}
	if len(s.referencing(id)) > 0 {
		return records.ErrReferenced
	}
	delete(s.byHash, doc.Hash)
	delete(s.documents, id)
	return nil
}

func (s *Store) InsertConversation(_ context.Context, conv *records.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = s.now().UTC()
	}
	if conv.History == nil {
		conv.History = []records.Message{}
	}
	if conv.Similarities == nil {
		conv.Similarities = []records.SimilarityScore{}
	}
	s.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

func (s *Store) GetConversation(_ context.Context, id string) (*records.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, records.ErrNotFound
	}
	return cloneConversation(conv), nil
}

// ListConversations returns conversations newest first.
func (s *Store) ListConversations(_ context.Context) ([]*records.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs := make([]*records.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		convs = append(convs, cloneConversation(conv))
	}
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].CreatedAt.Equal(convs[j].CreatedAt) {
			return convs[i].ID > convs[j].ID
		}
		return convs[i].CreatedAt.After(convs[j].CreatedAt)
	})
	return convs, nil
}

func (s *Store) UpdateConversation(_ context.Context, id string, upd records.ConversationUpdate) (*records.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, records.ErrNotFound
	}
	if upd.Label != nil {
		conv.Label = *upd.Label
	}
	if upd.DocumentIDs != nil {
		conv.DocumentIDs = slices.Clone(upd.DocumentIDs)
	}
	if upd.SimilarityComputing != nil {
		conv.SimilarityComputing = *upd.SimilarityComputing
	}
	if upd.Similarities != nil {
		conv.Similarities = slices.Clone(upd.Similarities)
	}
	if upd.ClearHistory {
		conv.History = []records.Message{}
	}
	return cloneConversation(conv), nil
}

func (s *Store) AppendMessages(_ context.Context, id string, msgs ...records.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return records.ErrNotFound
	}
	for _, m := range msgs {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.now().UTC()
		}
		conv.History = append(conv.History, m)
	}
	return nil
}

func (s *Store) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return records.ErrNotFound
	}
	delete(s.conversations, id)
	return nil
}

func (s *Store) ConversationsReferencing(_ context.Context, documentID string) ([]records.ConversationRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.referencing(documentID), nil
}

func (s *Store) Health(context.Context) error { return nil }

// referencing must be called with s.mu held.
func (s *Store) referencing(documentID string) []records.ConversationRef {
	var refs []records.ConversationRef
	for _, conv := range s.conversations {
		if slices.Contains(conv.DocumentIDs, documentID) {
			refs = append(refs, records.ConversationRef{ID: conv.ID, Label: conv.Label})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}

func cloneConversation(c *records.Conversation) *records.Conversation {
	cp := *c
	cp.DocumentIDs = slices.Clone(c.DocumentIDs)
	cp.History = slices.Clone(c.History)
	cp.Similarities = slices.Clone(c.Similarities)
	if cp.DocumentIDs == nil {
		cp.DocumentIDs = []string{}
	}
	if cp.History == nil {
		cp.History = []records.Message{}
	}
	if cp.Similarities == nil {
		cp.Similarities = []records.SimilarityScore{}
	}
	return &cp
}
