package model

import (
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
)

type DocumentID string

// NewDocumentID generates a new unique DocumentID
func NewDocumentID() DocumentID {
	return DocumentID(uuid.New().String())
}

// Document represents a single knowledge base record. Text and Embedding are
// immutable after ingestion: there is no update or delete path.
type Document struct {
	ID         DocumentID
	Text       string
	Embedding  firestore.Vector32
	IngestedAt time.Time
}
