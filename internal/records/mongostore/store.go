// Package mongostore implements records.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/bull/pdfchat-server/internal/records"
)

const (
	documentsCollection     = "pdf_files"
	conversationsCollection = "conversations"
)

type documentDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Filename    string             `bson:"filename"`
	Hash        string             `bson:"hash"`
	WordCount   int                `bson:"word_count"`
	Status      string             `bson:"status"`
	Summary     string             `bson:"summary,omitempty"`
	Summarizing bool               `bson:"is_summarizing"`
	CreatedAt   time.Time          `bson:"createdAt"`
}

type pdfRef struct {
	ID string `bson:"id"`
}

type messageDoc struct {
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"createdAt"`
}

type similarityDoc struct {
	DocumentA string  `bson:"pdf_a"`
	DocumentB string  `bson:"pdf_b"`
	Score     float64 `bson:"score"`
}

type conversationDoc struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty"`
	Label               string             `bson:"label"`
	PDFMeta             []pdfRef           `bson:"pdfMeta"`
	History             []messageDoc       `bson:"history"`
	SimilarityComputing bool               `bson:"similarity_computing"`
	Similarities        []similarityDoc    `bson:"similarities"`
	CreatedAt           time.Time          `bson:"createdAt"`
}

// Store keeps documents and conversations in two collections.
type Store struct {
	client        *mongo.Client
	documents     *mongo.Collection
	conversations *mongo.Collection
}

var _ records.Store = (*Store)(nil)

// New connects to MongoDB, waits for it to answer pings and ensures the
// unique content-hash index exists.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	ping := func() error { return client.Ping(ctx, readpref.Primary()) }
	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:        client,
		documents:     db.Collection(documentsCollection),
		conversations: db.Collection(conversationsCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.documents.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "hash", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("hash_unique"),
	})
	if err != nil {
		return fmt.Errorf("create hash index: %w", err)
	}
	_, err = s.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "pdfMeta.id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create pdfMeta index: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}
	return nil
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", records.ErrInvalidID, id)
	}
	return oid, nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return records.ErrNotFound
	}
	return err
}

// InsertDocument relies on the unique hash index: when two uploads of the
// same content race, the second insert fails with ErrDuplicateHash.
func (s *Store) InsertDocument(ctx context.Context, doc *records.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	d := documentDoc{
		Filename:    doc.Filename,
		Hash:        doc.Hash,
		WordCount:   doc.WordCount,
		Status:      string(doc.Status),
		Summary:     doc.Summary,
		Summarizing: doc.Summarizing,
		CreatedAt:   doc.CreatedAt,
	}
	res, err := s.documents.InsertOne(ctx, d)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return records.ErrDuplicateHash
		}
		return fmt.Errorf("insert document: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid.Hex()
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*records.Document, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var d documentDoc
	if err := s.documents.FindOne(ctx, bson.M{"_id": oid}).Decode(&d); err != nil {
		return nil, notFound(err)
	}
	return d.toRecord(), nil
}

func (s *Store) FindDocumentByHash(ctx context.Context, hash string) (*records.Document, error) {
	var d documentDoc
	if err := s.documents.FindOne(ctx, bson.M{"hash": hash}).Decode(&d); err != nil {
		return nil, notFound(err)
	}
	return d.toRecord(), nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]*records.Document, error) {
	cur, err := s.documents.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	var docs []documentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	out := make([]*records.Document, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toRecord())
	}
	return out, nil
}

func (s *Store) UpdateDocument(ctx context.Context, id string, upd records.DocumentUpdate) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	set := bson.M{}
	if upd.WordCount != nil {
		set["word_count"] = *upd.WordCount
	}
	if upd.Status != nil {
		set["status"] = string(*upd.Status)
	}
	if upd.Summary != nil {
		set["summary"] = *upd.Summary
	}
	if upd.Summarizing != nil {
		set["is_summarizing"] = *upd.Summarizing
	}
	if len(set) == 0 {
		return nil
	}
	res, err := s.documents.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if res.MatchedCount == 0 {
		return records.ErrNotFound
	}
	return nil
}

// DeleteDocument re-checks references immediately before deleting. A
// conversation attaching the document between the check and the delete is
// not prevented; MongoDB offers no cross-collection constraint without a
// transaction.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	n, err := s.conversations.CountDocuments(ctx, bson.M{"pdfMeta.id": id})
	if err != nil {
		return fmt.Errorf("count references: %w", err)
	}
	if n > 0 {
		return records.ErrReferenced
	}
	res, err := s.documents.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return records.ErrNotFound
	}
	return nil
}

func (s *Store) InsertConversation(ctx context.Context, conv *records.Conversation) error {
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	d := fromConversation(conv)
	d.ID = primitive.NilObjectID
	res, err := s.conversations.InsertOne(ctx, d)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		conv.ID = oid.Hex()
	}
	if conv.History == nil {
		conv.History = []records.Message{}
	}
	if conv.Similarities == nil {
		conv.Similarities = []records.SimilarityScore{}
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*records.Conversation, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var d conversationDoc
	if err := s.conversations.FindOne(ctx, bson.M{"_id": oid}).Decode(&d); err != nil {
		return nil, notFound(err)
	}
	return d.toRecord(), nil
}

func (s *Store) ListConversations(ctx context.Context) ([]*records.Conversation, error) {
	cur, err := s.conversations.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	var docs []conversationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	out := make([]*records.Conversation, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toRecord())
	}
	return out, nil
}

func (s *Store) UpdateConversation(ctx context.Context, id string, upd records.ConversationUpdate) (*records.Conversation, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{}
	if upd.Label != nil {
		set["label"] = *upd.Label
	}
	if upd.DocumentIDs != nil {
		set["pdfMeta"] = toRefs(upd.DocumentIDs)
	}
	if upd.SimilarityComputing != nil {
		set["similarity_computing"] = *upd.SimilarityComputing
	}
	if upd.Similarities != nil {
		set["similarities"] = toSimilarityDocs(upd.Similarities)
	}
	if upd.ClearHistory {
		set["history"] = bson.A{}
	}
	if len(set) == 0 {
		return s.GetConversation(ctx, id)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d conversationDoc
	err = s.conversations.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts).Decode(&d)
	if err != nil {
		return nil, notFound(err)
	}
	return d.toRecord(), nil
}

func (s *Store) AppendMessages(ctx context.Context, id string, msgs ...records.Message) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	docs := make(bson.A, 0, len(msgs))
	for _, m := range msgs {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		docs = append(docs, messageDoc{Role: string(m.Role), Content: m.Content, CreatedAt: m.CreatedAt})
	}
	res, err := s.conversations.UpdateOne(ctx, bson.M{"_id": oid},
		bson.M{"$push": bson.M{"history": bson.M{"$each": docs}}})
	if err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	if res.MatchedCount == 0 {
		return records.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := s.conversations.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if res.DeletedCount == 0 {
		return records.ErrNotFound
	}
	return nil
}

func (s *Store) ConversationsReferencing(ctx context.Context, documentID string) ([]records.ConversationRef, error) {
	cur, err := s.conversations.Find(ctx, bson.M{"pdfMeta.id": documentID},
		options.Find().SetProjection(bson.M{"_id": 1, "label": 1}))
	if err != nil {
		return nil, fmt.Errorf("find references: %w", err)
	}
	var docs []conversationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode references: %w", err)
	}
	refs := make([]records.ConversationRef, 0, len(docs))
	for _, d := range docs {
		refs = append(refs, records.ConversationRef{ID: d.ID.Hex(), Label: d.Label})
	}
	return refs, nil
}

func (d *documentDoc) toRecord() *records.Document {
	return &records.Document{
		ID:          d.ID.Hex(),
		Filename:    d.Filename,
		Hash:        d.Hash,
		WordCount:   d.WordCount,
		Status:      records.DocumentStatus(d.Status),
		Summary:     d.Summary,
		Summarizing: d.Summarizing,
		CreatedAt:   d.CreatedAt,
	}
}

func fromConversation(c *records.Conversation) conversationDoc {
	d := conversationDoc{
		Label:               c.Label,
		PDFMeta:             toRefs(c.DocumentIDs),
		History:             make([]messageDoc, 0, len(c.History)),
		SimilarityComputing: c.SimilarityComputing,
		Similarities:        toSimilarityDocs(c.Similarities),
		CreatedAt:           c.CreatedAt,
	}
	for _, m := range c.History {
		d.History = append(d.History, messageDoc{Role: string(m.Role), Content: m.Content, CreatedAt: m.CreatedAt})
	}
	return d
}

func (d *conversationDoc) toRecord() *records.Conversation {
	c := &records.Conversation{
		ID:                  d.ID.Hex(),
		Label:               d.Label,
		DocumentIDs:         make([]string, 0, len(d.PDFMeta)),
		History:             make([]records.Message, 0, len(d.History)),
		SimilarityComputing: d.SimilarityComputing,
		Similarities:        make([]records.SimilarityScore, 0, len(d.Similarities)),
		CreatedAt:           d.CreatedAt,
	}
	for _, ref := range d.PDFMeta {
		c.DocumentIDs = append(c.DocumentIDs, ref.ID)
	}
	for _, m := range d.History {
		c.History = append(c.History, records.Message{Role: records.Role(m.Role), Content: m.Content, CreatedAt: m.CreatedAt})
	}
	for _, sc := range d.Similarities {
		c.Similarities = append(c.Similarities, records.SimilarityScore{DocumentA: sc.DocumentA, DocumentB: sc.DocumentB, Score: sc.Score})
	}
	return c
}

func toRefs(ids []string) []pdfRef {
	refs := make([]pdfRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, pdfRef{ID: id})
	}
	return refs
}

func toSimilarityDocs(scores []records.SimilarityScore) []similarityDoc {
	out := make([]similarityDoc, 0, len(scores))
	for _, sc := range scores {
		out = append(out, similarityDoc{DocumentA: sc.DocumentA, DocumentB: sc.DocumentB, Score: sc.Score})
	}
	return out
}
