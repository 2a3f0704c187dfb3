// Package config loads server configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Vector and metadata backend names.
const (
	BackendQdrant   = "qdrant"
	BackendPgvector = "pgvector"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

// Config is the full server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Metadata   MetadataConfig   `yaml:"metadata"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Limits     LimitsConfig     `yaml:"limits"`
	LLM        LLMConfig        `yaml:"llm"`
	Summary    SummaryConfig    `yaml:"summary"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Tasks      TasksConfig      `yaml:"tasks"`
	TTS        TTSConfig        `yaml:"tts"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	MCPEnabled     bool          `yaml:"mcp_enabled"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// MetadataConfig selects where document and conversation records live.
type MetadataConfig struct {
	Backend  string `yaml:"backend"`
	MongoURI string `yaml:"mongo_uri"`
	Database string `yaml:"database"`
}

// StorageConfig covers the vector index and the raw upload directory.
type StorageConfig struct {
	Backend   string         `yaml:"backend"`
	VectorDim int            `yaml:"vector_dim"`
	UploadDir string         `yaml:"upload_dir"`
	Qdrant    QdrantConfig   `yaml:"qdrant"`
	Postgres  PostgresConfig `yaml:"postgres"`
}

type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

type PostgresConfig struct {
	URL   string `yaml:"url"`
	Table string `yaml:"table"`
}

type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BatchSize int    `yaml:"batch_size"`
}

type ChunkingConfig struct {
	Size     int `yaml:"size"`
	Overlap  int `yaml:"overlap"`
	MinWords int `yaml:"min_words"`
}

type RetrievalConfig struct {
	K           int           `yaml:"k"`
	MaxDistance float64       `yaml:"max_distance"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LimitsConfig bounds what a single conversation may attach.
type LimitsConfig struct {
	MaxDocuments int `yaml:"max_documents"`
	MaxWords     int `yaml:"max_words"`
}

type LLMConfig struct {
	DefaultModel string                 `yaml:"default_model"`
	Timeout      time.Duration          `yaml:"timeout"`
	Groups       map[string]GroupConfig `yaml:"groups"`
}

// GroupConfig describes one provider group. Credentials are referenced by
// environment variable name and tried in the listed order.
type GroupConfig struct {
	BaseURL           string   `yaml:"base_url"`
	Models            []string `yaml:"models"`
	CredentialEnv     []string `yaml:"credential_env"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
}

// Credentials resolves the group's credential env vars, skipping unset ones.
func (g GroupConfig) Credentials() []string {
	keys := make([]string, 0, len(g.CredentialEnv))
	for _, name := range g.CredentialEnv {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			keys = append(keys, v)
		}
	}
	return keys
}

type SummaryConfig struct {
	Model    string `yaml:"model"`
	MaxChars int    `yaml:"max_chars"`
}

type SimilarityConfig struct {
	Delay time.Duration `yaml:"delay"`
}

type TasksConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type TTSConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	Voice     string `yaml:"voice"`
}

// DefaultGroups mirrors the reference deployment: three provider groups with
// three credentials each.
func DefaultGroups() map[string]GroupConfig {
	return map[string]GroupConfig{
		"llama": {
			BaseURL:       "https://api.groq.com/openai/v1",
			Models:        []string{"llama3-70b-8192"},
			CredentialEnv: []string{"LLY_GROQ_LLAMA", "HUIYEE_GROQ_LLAMA", "WUKANG_GROQ_LLAMA"},
		},
		"gemini": {
			BaseURL:       "https://generativelanguage.googleapis.com/v1beta/openai/",
			Models:        []string{"gemini-2.0-flash"},
			CredentialEnv: []string{"LLY_GEMINI_API_KEY", "HUIYEE_GEMINI_API_KEY", "WUKANG_GEMINI_API_KEY"},
		},
		"deepseek": {
			BaseURL:       "https://openrouter.ai/api/v1",
			Models:        []string{"deepseek/deepseek-chat-v3-0324:free"},
			CredentialEnv: []string{"LLY_OPEN_ROUTER_DEEPSEEK", "HUIYEE_OPEN_ROUTER_DEEPSEEK", "WUKANG_OPEN_ROUTER_DEEPSEEK"},
		},
	}
}

// Load reads configuration. An empty path falls back to $PDFCHAT_CONFIG and
// then ./config.yaml; if neither exists only defaults and environment apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("PDFCHAT_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	mergeWithEnv(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// Default returns a configuration built from defaults only.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(c *Config) {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 50 << 20
	}
	if c.Server.ShutdownGrace == 0 {
		c.Server.ShutdownGrace = 15 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Metadata.Backend == "" {
		c.Metadata.Backend = BackendMongo
	}
	if c.Metadata.MongoURI == "" {
		c.Metadata.MongoURI = "mongodb://localhost:27017"
	}
	if c.Metadata.Database == "" {
		c.Metadata.Database = "chad_pdf"
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendQdrant
	}
	if c.Storage.VectorDim == 0 {
		c.Storage.VectorDim = 1536
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = "uploads"
	}
	if c.Storage.Qdrant.Host == "" {
		c.Storage.Qdrant.Host = "localhost"
	}
	if c.Storage.Qdrant.Port == 0 {
		c.Storage.Qdrant.Port = 6334
	}
	if c.Storage.Qdrant.Collection == "" {
		c.Storage.Qdrant.Collection = "pdf_chunks"
	}
	if c.Storage.Postgres.Table == "" {
		c.Storage.Postgres.Table = "pdf_chunks"
	}

	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.APIKeyEnv == "" {
		c.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 500
	}

	if c.Chunking.Size == 0 {
		c.Chunking.Size = 1000
	}
	if c.Chunking.Overlap == 0 {
		c.Chunking.Overlap = 200
	}
	if c.Chunking.MinWords == 0 {
		c.Chunking.MinWords = 5
	}

	if c.Retrieval.K == 0 {
		c.Retrieval.K = 5
	}
	if c.Retrieval.MaxDistance == 0 {
		c.Retrieval.MaxDistance = 1.5
	}
	if c.Retrieval.Timeout == 0 {
		c.Retrieval.Timeout = 10 * time.Second
	}

	if c.Limits.MaxDocuments == 0 {
		c.Limits.MaxDocuments = 20
	}
	if c.Limits.MaxWords == 0 {
		c.Limits.MaxWords = 50000
	}

	if c.LLM.DefaultModel == "" {
		c.LLM.DefaultModel = "llama3-70b-8192"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.LLM.Groups == nil {
		c.LLM.Groups = map[string]GroupConfig{}
	}
	for name, def := range DefaultGroups() {
		g, ok := c.LLM.Groups[name]
		if !ok {
			c.LLM.Groups[name] = def
			continue
		}
		if g.BaseURL == "" {
			g.BaseURL = def.BaseURL
		}
		if len(g.Models) == 0 {
			g.Models = def.Models
		}
		if len(g.CredentialEnv) == 0 {
			g.CredentialEnv = def.CredentialEnv
		}
		c.LLM.Groups[name] = g
	}

	if c.Summary.Model == "" {
		c.Summary.Model = "gemini-2.0-flash"
	}
	if c.Summary.MaxChars == 0 {
		c.Summary.MaxChars = 64000
	}

	if c.Similarity.Delay == 0 {
		c.Similarity.Delay = 2 * time.Second
	}

	if c.Tasks.Workers == 0 {
		c.Tasks.Workers = 4
	}
	if c.Tasks.QueueSize == 0 {
		c.Tasks.QueueSize = 256
	}

	if c.TTS.APIKeyEnv == "" {
		c.TTS.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.TTS.Model == "" {
		c.TTS.Model = "tts-1"
	}
	if c.TTS.Voice == "" {
		c.TTS.Voice = "alloy"
	}
}

func mergeWithEnv(c *Config) {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("METADATA_BACKEND"); v != "" {
		c.Metadata.Backend = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.Metadata.MongoURI = v
	}
	if v := os.Getenv("MONGO_DATABASE"); v != "" {
		c.Metadata.Database = v
	}
	if v := os.Getenv("VECTOR_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		c.Storage.UploadDir = v
	}
	if v := os.Getenv("QDRANT_HOST"); v != "" {
		c.Storage.Qdrant.Host = v
	}
	if v := getEnvInt("QDRANT_PORT", 0); v != 0 {
		c.Storage.Qdrant.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.Postgres.URL = v
	}
	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("DEFAULT_MODEL"); v != "" {
		c.LLM.DefaultModel = v
	}
	if v := os.Getenv("TTS_ENABLED"); v != "" {
		c.TTS.Enabled, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("MCP_ENABLED"); v != "" {
		c.Server.MCPEnabled, _ = strconv.ParseBool(v)
	}
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}
