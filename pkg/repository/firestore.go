package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	documentCollection = "documents"

	// Firestore attaches the cosine distance of each hit under this field
	distanceField = "vector_distance"
)

// Firestore implements Repository using Firestore with a vector index over
// the Embedding field. The index must be created with the same
// dimensionality the store is configured with.
type Firestore struct {
	client    *firestore.Client
	dimension int
}

// NewFirestore creates a new Firestore knowledge store. dimension is the
// embedding dimensionality every stored document must have.
func NewFirestore(ctx context.Context, projectID, databaseID string, dimension int) (*Firestore, error) {
	if dimension <= 0 {
		return nil, goerr.New("dimension must be positive", goerr.V("dimension", dimension))
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client")
	}

	return &Firestore{
		client:    client,
		dimension: dimension,
	}, nil
}

func (r *Firestore) Dimension() int {
	return r.dimension
}

// Close releases the underlying Firestore client
func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) InsertDocument(ctx context.Context, text string, embedding []float32) (model.DocumentID, error) {
	if err := validateDocument(text, embedding, r.dimension); err != nil {
		return "", err
	}

	doc := &model.Document{
		ID:         model.NewDocumentID(),
		Text:       text,
		Embedding:  firestore.Vector32(embedding),
		IngestedAt: time.Now().UTC(),
	}

	if _, err := r.client.Collection(documentCollection).Doc(string(doc.ID)).Create(ctx, doc); err != nil {
		return "", goerr.Wrap(err, "failed to insert document", goerr.V("document_id", doc.ID))
	}

	return doc.ID, nil
}

func (r *Firestore) BatchInsertDocuments(ctx context.Context, items []DocumentInput) []BatchResult {
	results := make([]BatchResult, len(items))
	for i, item := range items {
		id, err := r.InsertDocument(ctx, item.Text, item.Embedding)
		results[i] = BatchResult{Index: i, ID: id, Err: err}
	}
	return results
}

func (r *Firestore) GetDocument(ctx context.Context, id model.DocumentID) (*model.Document, error) {
	snap, err := r.client.Collection(documentCollection).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrDocumentNotFound, "document not found", goerr.V("document_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get document", goerr.V("document_id", id))
	}

	var doc model.Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode document", goerr.V("document_id", id))
	}

	return &doc, nil
}

func (r *Firestore) ListDocuments(ctx context.Context, offset, limit int) ([]*model.Document, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}

	iter := r.client.Collection(documentCollection).
		OrderBy("IngestedAt", firestore.Desc).
		Offset(offset).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var docs []*model.Document
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list documents")
		}

		var doc model.Document
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode document", goerr.V("ref", snap.Ref.ID))
		}
		docs = append(docs, &doc)
	}

	return docs, nil
}

// SearchSimilarDocuments runs Firestore FindNearest over the vector index.
// Scores are cosine similarities (1 - cosine distance). Ordering of exact
// ties is index-defined; everything else is deterministic.
func (r *Firestore) SearchSimilarDocuments(ctx context.Context, embedding []float32, limit int) ([]*SearchResult, error) {
	if len(embedding) != r.dimension {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "query embedding dimension mismatch",
			goerr.V("want", r.dimension), goerr.V("got", len(embedding)))
	}
	if limit <= 0 {
		return nil, goerr.New("limit must be positive", goerr.V("limit", limit))
	}

	query := r.client.Collection(documentCollection).FindNearest(
		"Embedding",
		firestore.Vector32(embedding),
		limit,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{
			DistanceResultField: distanceField,
		},
	)

	iter := query.Documents(ctx)
	defer iter.Stop()

	results := make([]*SearchResult, 0, limit)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to search similar documents")
		}

		var doc model.Document
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode document", goerr.V("ref", snap.Ref.ID))
		}

		distance, _ := snap.Data()[distanceField].(float64)
		results = append(results, &SearchResult{
			ID:    doc.ID,
			Text:  doc.Text,
			Score: 1 - distance,
		})
	}

	return results, nil
}

func validateDocument(text string, embedding []float32, dimension int) error {
	if text == "" {
		return goerr.Wrap(model.ErrEmptyText, "cannot insert empty document")
	}
	if len(embedding) != dimension {
		return goerr.Wrap(model.ErrDimensionMismatch, "embedding dimension mismatch",
			goerr.V("want", dimension), goerr.V("got", len(embedding)))
	}
	return nil
}
