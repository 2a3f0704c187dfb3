package storage

// Chunk is an indexed text window from one page of a document.
type Chunk struct {
	ID         string    // UUID
	DocumentID string    // Owning document; chunks are found by this tag, never by foreign key
	Page       int       // 1-based source page
	Index      int       // Position within the document (0, 1, 2...)
	Content    string    // Chunk text
	Embedding  []float32 // Not returned by searches
}

// ScoredChunk is a search hit. Distance is squared-L2 between unit vectors,
// 2 - 2*cosine, so it ranges over [0, 4] and smaller is closer.
type ScoredChunk struct {
	Chunk
	Distance float64
}

// TextChunk is a chunk before embedding.
type TextChunk struct {
	Page    int
	Content string
}

// DefaultCollection is the Qdrant collection holding every document's chunks.
const DefaultCollection = "pdf_chunks"

// DefaultVectorDimension is the embedding size for text-embedding-3-small.
const DefaultVectorDimension = 1536

// DistanceFromCosine maps a cosine similarity onto squared-L2 distance
// between unit vectors.
func DistanceFromCosine(cos float64) float64 {
	return 2 - 2*cos
}
