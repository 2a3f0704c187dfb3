// Package api serves the JSON HTTP surface over service.Service.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bull/pdfchat-server/internal/service"
)

// DefaultMaxUploadBytes bounds a multipart upload.
const DefaultMaxUploadBytes = 50 << 20

type Options struct {
	MaxUploadBytes int64
	VectorStore    HealthChecker
	MetadataStore  HealthChecker
	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}

type Server struct {
	svc    *service.Service
	opts   Options
	logger *slog.Logger
}

func NewServer(svc *service.Service, opts Options, logger *slog.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, opts: opts, logger: logger}
}

// Handler returns the routed handler wrapped in the access log.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/documents", s.uploadDocument)
	mux.HandleFunc("GET /api/documents", s.listDocuments)
	mux.HandleFunc("GET /api/documents/{id}", s.getDocument)
	mux.HandleFunc("GET /api/documents/{id}/file", s.documentFile)
	mux.HandleFunc("DELETE /api/documents/{id}", s.deleteDocument)

	mux.HandleFunc("GET /api/conversations", s.listConversations)
	mux.HandleFunc("POST /api/conversations", s.createConversation)
	mux.HandleFunc("GET /api/conversations/{id}", s.getConversation)
	mux.HandleFunc("PATCH /api/conversations/{id}", s.updateConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.deleteConversation)
	mux.HandleFunc("POST /api/conversations/{id}/messages", s.sendMessage)
	mux.HandleFunc("POST /api/conversations/{id}/clear-history", s.clearHistory)
	mux.HandleFunc("POST /api/conversations/{id}/summarize-documents", s.summarizeDocuments)

	mux.HandleFunc("POST /api/search", s.search)
	mux.HandleFunc("POST /api/tts", s.speak)
	mux.HandleFunc("GET /api/models", s.models)
	mux.HandleFunc("GET /health", NewHealthHandler(s.opts.VectorStore, s.opts.MetadataStore))
	mux.HandleFunc("GET /{$}", landing)

	if s.opts.MCP != nil {
		mux.Handle("/mcp", s.opts.MCP)
	}

	return s.accessLog(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming MCP responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		s.logger.Info("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", requestID,
		)
	})
}
