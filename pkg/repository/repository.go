package repository

import (
	"context"

	"github.com/m-mizutani/recall/pkg/model"
)

// DocumentInput is one item of a batch insert.
type DocumentInput struct {
	Text      string
	Embedding []float32
}

// BatchResult is the per-item outcome of a batch insert. Items are
// independent: a failed item never rolls back the ones inserted before it.
type BatchResult struct {
	Index int
	ID    model.DocumentID
	Err   error
}

// SearchResult is one nearest-neighbor hit, ranked by descending similarity.
type SearchResult struct {
	ID    model.DocumentID
	Text  string
	Score float64
}

// Repository defines the interface for knowledge store persistence
type Repository interface {
	// InsertDocument persists one document. The embedding length must match
	// the store's configured dimensionality; otherwise the insert fails with
	// model.ErrDimensionMismatch and nothing is persisted.
	InsertDocument(ctx context.Context, text string, embedding []float32) (model.DocumentID, error)

	// BatchInsertDocuments applies InsertDocument to each item and returns a
	// per-item outcome. The batch is not transactional.
	BatchInsertDocuments(ctx context.Context, items []DocumentInput) []BatchResult

	// SearchSimilarDocuments performs nearest-neighbor search over stored
	// embeddings. It returns at most limit results ordered by descending
	// similarity, and an empty slice when the store holds nothing relevant.
	SearchSimilarDocuments(ctx context.Context, embedding []float32, limit int) ([]*SearchResult, error)

	// GetDocument retrieves a document by ID
	GetDocument(ctx context.Context, id model.DocumentID) (*model.Document, error)

	// ListDocuments retrieves documents ordered by ingestion time, newest
	// first
	ListDocuments(ctx context.Context, offset, limit int) ([]*model.Document, error)

	// Dimension returns the configured embedding dimensionality
	Dimension() int
}
