package api

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status        string `json:"status"`
	VectorStore   string `json:"vector_store"`
	MetadataStore string `json:"metadata_store"`
	Timestamp     string `json:"timestamp"`
}

// HealthChecker is implemented by the vector backends and record stores.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
// Either store failing its check within 3 seconds yields 503.
func NewHealthHandler(vectors, metadata HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		response := HealthResponse{
			Status:        "healthy",
			VectorStore:   checkStore(ctx, vectors),
			MetadataStore: checkStore(ctx, metadata),
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		}

		status := http.StatusOK
		if response.VectorStore != "connected" || response.MetadataStore != "connected" {
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	}
}

func checkStore(ctx context.Context, c HealthChecker) string {
	if c == nil {
		return "not configured"
	}
	if err := c.Health(ctx); err != nil {
		return "disconnected"
	}
	return "connected"
}
