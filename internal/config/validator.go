package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate reports every problem found rather than stopping at the first.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format", "unknown format %q (want text or json)", c.Log.Format)
	}

	switch c.Metadata.Backend {
	case BackendMongo:
		if _, err := url.Parse(c.Metadata.MongoURI); err != nil || c.Metadata.MongoURI == "" {
			add("metadata.mongo_uri", "invalid MongoDB URI")
		}
	case BackendMemory:
	default:
		add("metadata.backend", "unknown backend %q", c.Metadata.Backend)
	}

	switch c.Storage.Backend {
	case BackendQdrant:
		if c.Storage.Qdrant.Port < 1 || c.Storage.Qdrant.Port > 65535 {
			add("storage.qdrant.port", "port must be between 1 and 65535")
		}
	case BackendPgvector:
		if c.Storage.Postgres.URL == "" {
			add("storage.postgres.url", "postgres URL is required for the pgvector backend")
		}
	case BackendMemory:
	default:
		add("storage.backend", "unknown backend %q", c.Storage.Backend)
	}

	if c.Storage.VectorDim < 1 {
		add("storage.vector_dim", "vector_dim must be positive")
	}

	if c.Chunking.Size < 1 {
		add("chunking.size", "size must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		add("chunking.overlap", "overlap must be non-negative and less than size")
	}
	if c.Chunking.MinWords < 1 {
		add("chunking.min_words", "min_words must be positive")
	}

	if c.Retrieval.K < 1 {
		add("retrieval.k", "k must be positive")
	}
	if c.Retrieval.MaxDistance <= 0 {
		add("retrieval.max_distance", "max_distance must be positive")
	}

	if c.Limits.MaxDocuments < 1 {
		add("limits.max_documents", "max_documents must be positive")
	}
	if c.Limits.MaxWords < 1 {
		add("limits.max_words", "max_words must be positive")
	}

	known := DefaultGroups()
	names := make([]string, 0, len(c.LLM.Groups))
	for name := range c.LLM.Groups {
		names = append(names, name)
	}
	sort.Strings(names)

	models := map[string]string{}
	for _, name := range names {
		g := c.LLM.Groups[name]
		field := "llm.groups." + name
		if _, ok := known[name]; !ok {
			add(field, "unknown provider group (known: llama, gemini, deepseek)")
			continue
		}
		if u, err := url.Parse(g.BaseURL); err != nil || u.Scheme == "" {
			add(field+".base_url", "invalid base URL %q", g.BaseURL)
		}
		if g.RequestsPerSecond < 0 {
			add(field+".requests_per_second", "requests_per_second must not be negative")
		}
		for _, m := range g.Models {
			if prev, dup := models[m]; dup {
				add(field+".models", "model %q is already mapped to group %s", m, prev)
				continue
			}
			models[m] = name
		}
	}
	if _, ok := models[c.LLM.DefaultModel]; !ok {
		add("llm.default_model", "model %q is not mapped to any provider group", c.LLM.DefaultModel)
	}
	if _, ok := models[c.Summary.Model]; !ok {
		add("summary.model", "model %q is not mapped to any provider group", c.Summary.Model)
	}

	if c.Tasks.Workers < 1 {
		add("tasks.workers", "workers must be positive")
	}
	if c.Tasks.QueueSize < 1 {
		add("tasks.queue_size", "queue_size must be positive")
	}

	if c.TTS.Enabled && strings.TrimSpace(c.TTS.Model) == "" {
		add("tts.model", "model is required when TTS is enabled")
	}

	return errs
}
