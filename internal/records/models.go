// Package records defines the document and conversation records kept in the
// metadata store, and the store contract both backends implement.
package records

import "time"

// DocumentStatus tracks background ingestion of a document.
type DocumentStatus string

const (
	StatusPending DocumentStatus = "pending"
	StatusReady   DocumentStatus = "ready"
	StatusFailed  DocumentStatus = "failed"
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Document is an uploaded PDF. Hash is unique across documents.
type Document struct {
	ID          string         `json:"id"`
	Filename    string         `json:"filename"`
	Hash        string         `json:"hash"`
	WordCount   int            `json:"word_count"`
	Status      DocumentStatus `json:"status"`
	Summary     string         `json:"summary,omitempty"`
	Summarizing bool           `json:"summarizing"`
	CreatedAt   time.Time      `json:"created_at"`
}

// DisplayName is the name shown to users and the model.
func (d *Document) DisplayName() string {
	if d.Filename != "" {
		return d.Filename
	}
	return d.ID
}

// Message is one entry in a conversation history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SimilarityScore relates an unordered pair of documents.
type SimilarityScore struct {
	DocumentA string  `json:"document_a"`
	DocumentB string  `json:"document_b"`
	Score     float64 `json:"score"`
}

// Conversation holds a chat and the documents it is grounded on.
type Conversation struct {
	ID                  string            `json:"id"`
	Label               string            `json:"label"`
	DocumentIDs         []string          `json:"document_ids"`
	History             []Message         `json:"history"`
	SimilarityComputing bool              `json:"similarity_computing"`
	Similarities        []SimilarityScore `json:"similarities"`
	CreatedAt           time.Time         `json:"created_at"`
}

// ConversationRef identifies a conversation in conflict reports.
type ConversationRef struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// DocumentUpdate is a partial update; nil fields are left unchanged.
type DocumentUpdate struct {
	WordCount   *int
	Status      *DocumentStatus
	Summary     *string
	Summarizing *bool
}

// ConversationUpdate is a partial update; nil fields are left unchanged.
type ConversationUpdate struct {
	Label               *string
	DocumentIDs         []string // replaced when non-nil
	SimilarityComputing *bool
	Similarities        []SimilarityScore // replaced when non-nil
	ClearHistory        bool
}

// Ptr returns a pointer to v, for building partial updates.
func Ptr[T any](v T) *T { return &v }
