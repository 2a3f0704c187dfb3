package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/pdfchat-server/internal/blob"
	"github.com/bull/pdfchat-server/internal/indexer"
	"github.com/bull/pdfchat-server/internal/llm"
	"github.com/bull/pdfchat-server/internal/pdf"
	"github.com/bull/pdfchat-server/internal/pdf/pdftest"
	recmem "github.com/bull/pdfchat-server/internal/records/memory"
	"github.com/bull/pdfchat-server/internal/retrieval"
	"github.com/bull/pdfchat-server/internal/service"
	"github.com/bull/pdfchat-server/internal/storage"
	"github.com/bull/pdfchat-server/internal/storage/memory"
	"github.com/bull/pdfchat-server/internal/storage/storagetest"
)

type stubGateway struct {
	err error
}

func (g *stubGateway) Send(context.Context, string, []llm.Message) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "answer", nil
}

func (g *stubGateway) Supports(model string) bool { return model == "llama-test" }

func (g *stubGateway) Models() []llm.ModelInfo {
	return []llm.ModelInfo{{Model: "llama-test", Group: llm.GroupLlama}}
}

type noopScheduler struct{}

func (noopScheduler) Schedule(context.Context, string) error { return nil }

type checker struct{ err error }

func (c checker) Health(context.Context) error { return c.err }

func newTestServer(t *testing.T, gw *stubGateway) http.Handler {
	t.Helper()
	blobs, err := blob.NewStore(t.TempDir())
	require.NoError(t, err)
	store := recmem.New()
	chunks := storage.NewChunkStore(memory.New(), storagetest.NewBagOfWords())
	filter := retrieval.NewFilter(chunks, retrieval.FilterOptions{}, nil)

	svc := service.New(service.Deps{
		Store:      store,
		Blobs:      blobs,
		Chunks:     chunks,
		Ingestor:   indexer.NewPipeline(store, blobs, chunks, indexer.NewSplitter(0, 0, 0), pdf.Extractor{}, nil, nil),
		Filter:     filter,
		Assembler:  retrieval.NewAssembler(filter, store, blobs, nil, nil),
		Gateway:    gw,
		Similarity: noopScheduler{},
	}, service.Options{DefaultModel: "llama-test"}, nil)

	return NewServer(svc, Options{VectorStore: checker{}, MetadataStore: store}, nil).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, h http.Handler, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func uploadReport(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := upload(t, h, "report.pdf", pdftest.Build("The quick brown fox jumps over the lazy dog"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[uploadResponse](t, rec).ID
}

func createConversation(t *testing.T, h http.Handler, label string, ids ...string) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/conversations", map[string]any{"label": label, "document_ids": ids})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[map[string]any](t, rec)["id"].(string)
}

func TestUpload(t *testing.T) {
	h := newTestServer(t, &stubGateway{})
	data := pdftest.Build("The quick brown fox jumps over the lazy dog")

	rec := upload(t, h, "report.pdf", data)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[uploadResponse](t, rec)
	assert.False(t, first.Existed)
	assert.Equal(t, "report.pdf", first.Filename)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = upload(t, h, "copy.pdf", data)
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decode[uploadResponse](t, rec)
	assert.True(t, second.Existed)
	assert.Equal(t, first.ID, second.ID)

	rec = upload(t, h, "notes.txt", []byte("not a pdf"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Error, "not a PDF")

	rec = do(t, h, http.MethodPost, "/api/documents", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentReads(t *testing.T) {
	h := newTestServer(t, &stubGateway{})
	id := uploadReport(t, h)

	rec := do(t, h, http.MethodGet, "/api/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/documents/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[map[string]any](t, rec)["status"])

	rec = do(t, h, http.MethodGet, "/api/documents/"+id+"/file", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, pdf.IsPDF(rec.Body.Bytes()))

	rec = do(t, h, http.MethodGet, "/api/documents/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteReferencedDocument(t *testing.T) {
	h := newTestServer(t, &stubGateway{})
	id := uploadReport(t, h)
	convID := createConversation(t, h, "wildlife", id)

	rec := do(t, h, http.MethodDelete, "/api/documents/"+id, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[errorResponse](t, rec)
	require.Len(t, body.LinkedConversations, 1)
	assert.Equal(t, convID, body.LinkedConversations[0].ID)

	rec = do(t, h, http.MethodDelete, "/api/conversations/"+convID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/documents/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decode[deletedResponse](t, rec).DeletedID)
}

func TestConversationValidation(t *testing.T) {
	h := newTestServer(t, &stubGateway{})
	id := uploadReport(t, h)
	convID := createConversation(t, h, "wildlife", id)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"empty patch", http.MethodPatch, "/api/conversations/" + convID, map[string]any{}},
		{"unknown field", http.MethodPost, "/api/conversations", map[string]any{"label": "x", "pdfMeta": []string{}}},
		{"unknown document", http.MethodPost, "/api/conversations", map[string]any{"label": "x", "document_ids": []string{"nope"}}},
		{"no documents to chat with", http.MethodPost, "/api/conversations/" + createConversation(t, h, "empty") + "/messages", map[string]any{"text": "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	rec := do(t, h, http.MethodPatch, "/api/conversations/"+convID, map[string]any{"label": "renamed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "renamed", decode[map[string]any](t, rec)["label"])
}

func TestSendMessage(t *testing.T) {
	gw := &stubGateway{}
	h := newTestServer(t, gw)
	convID := createConversation(t, h, "wildlife", uploadReport(t, h))

	rec := do(t, h, http.MethodPost, "/api/conversations/"+convID+"/messages", map[string]any{"text": "where is the fox"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	msgs := decode[messagesResponse](t, rec).Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "answer", msgs[1].Content)

	gw.err = errors.New("quota exceeded")
	rec = do(t, h, http.MethodPost, "/api/conversations/"+convID+"/messages", map[string]any{"text": "again"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode[errorResponse](t, rec)
	require.Len(t, body.Messages, 2)
	assert.True(t, strings.HasPrefix(body.Messages[1].Content, "Error: "))
	assert.Contains(t, body.Error, "quota exceeded")

	rec = do(t, h, http.MethodGet, "/api/conversations/"+convID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string]any](t, rec)["history"], 4)

	rec = do(t, h, http.MethodPost, "/api/conversations/"+convID+"/clear-history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[map[string]any](t, rec)["history"])
}

func TestSearch(t *testing.T) {
	h := newTestServer(t, &stubGateway{})
	id := uploadReport(t, h)

	rec := do(t, h, http.MethodPost, "/api/search", map[string]any{"query": "quick brown fox", "document_ids": []string{id}})
	require.Equal(t, http.StatusOK, rec.Code)
	matches := decode[searchResponse](t, rec).Matches
	require.Len(t, matches, 1)
	assert.Equal(t, 1, matches[0].Page)

	rec = do(t, h, http.MethodPost, "/api/search", map[string]any{"query": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpeechUnavailable(t *testing.T) {
	h := newTestServer(t, &stubGateway{})
	rec := do(t, h, http.MethodPost, "/api/tts", map[string]any{"text": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestModels(t *testing.T) {
	h := newTestServer(t, &stubGateway{})
	rec := do(t, h, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"model":"llama-test","group":"llama"}]`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		vectors    HealthChecker
		wantStatus int
		wantVector string
	}{
		{"healthy", checker{}, http.StatusOK, "connected"},
		{"vector store down", checker{err: errors.New("dial")}, http.StatusServiceUnavailable, "disconnected"},
		{"vector store missing", nil, http.StatusServiceUnavailable, "not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.vectors, checker{})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decode[HealthResponse](t, rec)
			assert.Equal(t, tt.wantVector, body.VectorStore)
			assert.Equal(t, "connected", body.MetadataStore)
		})
	}
}
