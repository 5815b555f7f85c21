package repository

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
)

// Memory implements Repository with an in-process brute-force cosine scan.
// It backs tests and the --memory mode of chat and serve. Unlike the
// Firestore index it is exact: results are fully deterministic, ties broken
// by ingestion order.
type Memory struct {
	mu        sync.RWMutex
	docs      map[model.DocumentID]*model.Document
	order     []model.DocumentID
	dimension int
}

// NewMemory creates a new in-memory knowledge store with the given
// embedding dimensionality.
func NewMemory(dimension int) *Memory {
	return &Memory{
		docs:      make(map[model.DocumentID]*model.Document),
		dimension: dimension,
	}
}

func (r *Memory) Dimension() int {
	return r.dimension
}

func (r *Memory) InsertDocument(ctx context.Context, text string, embedding []float32) (model.DocumentID, error) {
	if err := validateDocument(text, embedding, r.dimension); err != nil {
		return "", err
	}

	doc := &model.Document{
		ID:         model.NewDocumentID(),
		Text:       text,
		Embedding:  firestore.Vector32(append([]float32(nil), embedding...)),
		IngestedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
	r.order = append(r.order, doc.ID)

	return doc.ID, nil
}

func (r *Memory) BatchInsertDocuments(ctx context.Context, items []DocumentInput) []BatchResult {
	results := make([]BatchResult, len(items))
	for i, item := range items {
		id, err := r.InsertDocument(ctx, item.Text, item.Embedding)
		results[i] = BatchResult{Index: i, ID: id, Err: err}
	}
	return results
}

func (r *Memory) GetDocument(ctx context.Context, id model.DocumentID) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrDocumentNotFound, "document not found", goerr.V("document_id", id))
	}
	return doc, nil
}

func (r *Memory) ListDocuments(ctx context.Context, offset, limit int) ([]*model.Document, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// order holds IDs oldest first; list newest first
	docs := make([]*model.Document, 0, limit)
	for i := len(r.order) - 1 - offset; i >= 0 && len(docs) < limit; i-- {
		docs = append(docs, r.docs[r.order[i]])
	}
	return docs, nil
}

func (r *Memory) SearchSimilarDocuments(ctx context.Context, embedding []float32, limit int) ([]*SearchResult, error) {
	if len(embedding) != r.dimension {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "query embedding dimension mismatch",
			goerr.V("want", r.dimension), goerr.V("got", len(embedding)))
	}
	if limit <= 0 {
		return nil, goerr.New("limit must be positive", goerr.V("limit", limit))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]*SearchResult, 0, len(r.order))
	for _, id := range r.order {
		doc := r.docs[id]
		results = append(results, &SearchResult{
			ID:    doc.ID,
			Text:  doc.Text,
			Score: cosineSimilarity(embedding, doc.Embedding),
		})
	}

	// Stable sort keeps ingestion order on equal scores
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
