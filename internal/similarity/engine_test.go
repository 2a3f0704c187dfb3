package similarity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/pdfchat-server/internal/blob"
	"github.com/bull/pdfchat-server/internal/pdf/pdftest"
	"github.com/bull/pdfchat-server/internal/records"
	recmem "github.com/bull/pdfchat-server/internal/records/memory"
	"github.com/bull/pdfchat-server/internal/tasks"
)

type env struct {
	store *recmem.Store
	files *blob.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	files, err := blob.NewStore(t.TempDir())
	require.NoError(t, err)
	return &env{store: recmem.New(), files: files}
}

func (e *env) conversation(t *testing.T, docIDs ...string) string {
	t.Helper()
	conv := &records.Conversation{Label: "c", DocumentIDs: docIDs, SimilarityComputing: true}
	require.NoError(t, e.store.InsertConversation(context.Background(), conv))
	return conv.ID
}

func (e *env) file(t *testing.T, id string, pages ...string) {
	t.Helper()
	require.NoError(t, e.files.Put(context.Background(), id, pdftest.Build(pages...)))
}

func TestCompute_SingleAvailableDocument(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.file(t, "d1", "only this document has a file")
	id := e.conversation(t, "d1", "d2")

	engine := NewEngine(e.store, e.files, nil, nil, 0, nil)
	require.NoError(t, engine.Compute(ctx, id))

	conv, err := e.store.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.False(t, conv.SimilarityComputing)
	assert.NotNil(t, conv.Similarities)
	assert.Empty(t, conv.Similarities)
}

func TestCompute_AllPairs(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.file(t, "a", "foxes hunt rabbits in the meadow")
	e.file(t, "b", "foxes hunt rabbits in the meadow")
	e.file(t, "c", "databases store rows in tables")
	id := e.conversation(t, "a", "b", "c")

	engine := NewEngine(e.store, e.files, nil, nil, 0, nil)
	require.NoError(t, engine.Compute(ctx, id))

	conv, err := e.store.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.False(t, conv.SimilarityComputing)
	require.Len(t, conv.Similarities, 3)

	pairs := map[[2]string]float64{}
	for _, s := range conv.Similarities {
		pairs[[2]string{s.DocumentA, s.DocumentB}] = s.Score
	}
	assert.InDelta(t, 1.0, pairs[[2]string{"a", "b"}], 1e-9)
	assert.InDelta(t, 0.0, pairs[[2]string{"a", "c"}], 1e-9)
	assert.InDelta(t, 0.0, pairs[[2]string{"b", "c"}], 1e-9)
}

func TestCompute_IdenticalDocumentsScoreAtMostOne(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	text := "retrieval augmented generation pipelines chunk embed query rerank answer w8 x56 y104 w8"
	e.file(t, "a", text)
	e.file(t, "b", text)
	id := e.conversation(t, "a", "b")

	engine := NewEngine(e.store, e.files, nil, nil, 0, nil)
	require.NoError(t, engine.Compute(ctx, id))

	conv, err := e.store.GetConversation(ctx, id)
	require.NoError(t, err)
	require.Len(t, conv.Similarities, 1)
	assert.LessOrEqual(t, conv.Similarities[0].Score, 1.0)
	assert.GreaterOrEqual(t, conv.Similarities[0].Score, 0.0)
	assert.InDelta(t, 1.0, conv.Similarities[0].Score, 1e-9)
}

// flakyStore fails the first full update, as a write of the score list would.
type flakyStore struct {
	*recmem.Store
	failed bool
}

func (s *flakyStore) UpdateConversation(ctx context.Context, id string, upd records.ConversationUpdate) (*records.Conversation, error) {
	if upd.Similarities != nil && !s.failed {
		s.failed = true
		return nil, errors.New("write conflict")
	}
	return s.Store.UpdateConversation(ctx, id, upd)
}

func TestCompute_FailureClearsFlag(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.file(t, "a", "first document text here")
	e.file(t, "b", "second document text here")
	id := e.conversation(t, "a", "b")

	engine := NewEngine(&flakyStore{Store: e.store}, e.files, nil, nil, 0, nil)
	err := engine.Compute(ctx, id)
	require.ErrorContains(t, err, "write conflict")

	conv, err := e.store.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.False(t, conv.SimilarityComputing)
}

func TestSchedule_RunsInBackground(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.file(t, "a", "shared words appear in both")
	e.file(t, "b", "shared words appear here too")
	id := e.conversation(t, "a", "b")

	q := tasks.NewQueue(1, 4, nil)
	engine := NewEngine(e.store, e.files, nil, q, 10*time.Millisecond, nil)
	require.NoError(t, engine.Schedule(ctx, id))

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, q.Close(closeCtx))

	conv, err := e.store.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.False(t, conv.SimilarityComputing)
	require.Len(t, conv.Similarities, 1)
	assert.Greater(t, conv.Similarities[0].Score, 0.0)
}

func TestSchedule_QueueClosedClearsFlag(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.conversation(t, "a", "b")

	q := tasks.NewQueue(1, 1, nil)
	require.NoError(t, q.Close(ctx))

	engine := NewEngine(e.store, e.files, nil, q, 0, nil)
	assert.ErrorIs(t, engine.Schedule(ctx, id), tasks.ErrQueueClosed)

	conv, err := e.store.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.False(t, conv.SimilarityComputing)
}
