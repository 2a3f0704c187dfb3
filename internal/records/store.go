package records

import "context"

// Store is the document and conversation metadata store.
//
// InsertDocument returns ErrDuplicateHash when another document already
// holds the same content hash. DeleteDocument re-checks conversation
// references at delete time and returns ErrReferenced if any exist.
type Store interface {
	InsertDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	FindDocumentByHash(ctx context.Context, hash string) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	UpdateDocument(ctx context.Context, id string, upd DocumentUpdate) error
	DeleteDocument(ctx context.Context, id string) error

	InsertConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) (*Conversation, error)
	AppendMessages(ctx context.Context, id string, msgs ...Message) error
	DeleteConversation(ctx context.Context, id string) error
	ConversationsReferencing(ctx context.Context, documentID string) ([]ConversationRef, error)

	Health(ctx context.Context) error
}
