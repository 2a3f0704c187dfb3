package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/pdfchat-server/internal/records"
)

func TestInsertDocument_DuplicateHash(t *testing.T) {
	ctx := context.Background()
	s := New()

	first := &records.Document{Filename: "a.pdf", Hash: "abc", Status: records.StatusPending}
	require.NoError(t, s.InsertDocument(ctx, first))
	assert.NotEmpty(t, first.ID)

	err := s.InsertDocument(ctx, &records.Document{Filename: "b.pdf", Hash: "abc"})
	assert.ErrorIs(t, err, records.ErrDuplicateHash)

	found, err := s.FindDocumentByHash(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, "a.pdf", found.Filename)
}

func TestInsertDocument_ConcurrentSameHash(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.InsertDocument(ctx, &records.Document{Hash: "same"}); err == nil {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Len(t, docs, 1)
}

func TestUpdateDocument_Partial(t *testing.T) {
	ctx := context.Background()
	s := New()

	doc := &records.Document{Filename: "a.pdf", Hash: "h", Status: records.StatusPending, WordCount: 3}
	require.NoError(t, s.InsertDocument(ctx, doc))

	require.NoError(t, s.UpdateDocument(ctx, doc.ID, records.DocumentUpdate{
		Status: records.Ptr(records.StatusReady),
	}))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, records.StatusReady, got.Status)
	assert.Equal(t, 3, got.WordCount)

	err = s.UpdateDocument(ctx, "missing", records.DocumentUpdate{})
	assert.ErrorIs(t, err, records.ErrNotFound)
}

func TestDeleteDocument_ReferencedIsRejected(t *testing.T) {
	ctx := context.Background()
	s := New()

	doc := &records.Document{Filename: "a.pdf", Hash: "h"}
	require.NoError(t, s.InsertDocument(ctx, doc))
	conv := &records.Conversation{Label: "chat", DocumentIDs: []string{doc.ID}}
	require.NoError(t, s.InsertConversation(ctx, conv))

	refs, err := s.ConversationsReferencing(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []records.ConversationRef{{ID: conv.ID, Label: "chat"}}, refs)

	assert.ErrorIs(t, s.DeleteDocument(ctx, doc.ID), records.ErrReferenced)
	_, err = s.GetDocument(ctx, doc.ID)
	assert.NoError(t, err)

	require.NoError(t, s.DeleteConversation(ctx, conv.ID))
	require.NoError(t, s.DeleteDocument(ctx, doc.ID))

	_, err = s.FindDocumentByHash(ctx, "h")
	assert.ErrorIs(t, err, records.ErrNotFound)
}

func TestConversation_AppendAndClear(t *testing.T) {
	ctx := context.Background()
	s := New()

	conv := &records.Conversation{Label: "chat"}
	require.NoError(t, s.InsertConversation(ctx, conv))

	require.NoError(t, s.AppendMessages(ctx, conv.ID,
		records.Message{Role: records.RoleUser, Content: "hi"},
		records.Message{Role: records.RoleAssistant, Content: "hello"},
	))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.History, 2)
	assert.Equal(t, "hi", got.History[0].Content)
	assert.False(t, got.History[0].CreatedAt.IsZero())

	// Returned records are copies.
	got.History[0].Content = "mutated"
	again, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", again.History[0].Content)

	updated, err := s.UpdateConversation(ctx, conv.ID, records.ConversationUpdate{ClearHistory: true})
	require.NoError(t, err)
	assert.Empty(t, updated.History)
	assert.Equal(t, "chat", updated.Label)
}
