package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrDimensionMismatch is returned when an embedding does not match the
	// dimensionality the knowledge store was configured with. The record is
	// rejected before anything is persisted.
	ErrDimensionMismatch = goerr.New("embedding dimension mismatch")

	// ErrEmptyText is returned when a document with empty text is inserted
	ErrEmptyText = goerr.New("document text is empty")

	// ErrDocumentNotFound is returned when a document ID does not exist
	ErrDocumentNotFound = goerr.New("document not found")

	// ErrToolNotFound is returned when the model requests an unregistered tool
	ErrToolNotFound = goerr.New("tool not found")

	// ErrToolInputInvalid is returned when model-supplied tool arguments do
	// not decode into the tool's input type
	ErrToolInputInvalid = goerr.New("invalid tool input")
)
