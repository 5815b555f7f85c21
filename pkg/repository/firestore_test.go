package repository_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/repository"
)

func setupFirestore(t *testing.T) *repository.Firestore {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")

	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	repo, err := repository.NewFirestore(context.Background(), projectID, databaseID, testDimension)
	gt.NoError(t, err)
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})

	return repo
}

func randomEmbedding() []float32 {
	v := make([]float32, testDimension)
	for i := range v {
		v[i] = rand.Float32()
	}
	return v
}

func TestFirestoreInsertAndGet(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	text := fmt.Sprintf("integration doc %d", rand.Int())
	id, err := repo.InsertDocument(ctx, text, randomEmbedding())
	gt.NoError(t, err)

	doc, err := repo.GetDocument(ctx, id)
	gt.NoError(t, err)
	gt.Equal(t, doc.ID, id)
	gt.Equal(t, doc.Text, text)
	gt.False(t, doc.IngestedAt.IsZero())
}

func TestFirestoreGetNotFound(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	_, err := repo.GetDocument(ctx, model.NewDocumentID())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrDocumentNotFound))
}

func TestFirestoreInsertDimensionMismatch(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	_, err := repo.InsertDocument(ctx, "bad vector", []float32{0.1})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrDimensionMismatch))
}

func TestFirestoreNearestSearch(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	anchor := randomEmbedding()
	text := fmt.Sprintf("nearest doc %d", rand.Int())
	id, err := repo.InsertDocument(ctx, text, anchor)
	gt.NoError(t, err)

	results, err := repo.SearchSimilarDocuments(ctx, anchor, 3)
	gt.NoError(t, err)
	gt.A(t, results).Longer(0)

	found := false
	for _, r := range results {
		if r.ID == id {
			found = true
			gt.Equal(t, r.Text, text)
			gt.Number(t, r.Score).Greater(0.99)
		}
	}
	gt.True(t, found)
}

func TestFirestoreList(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	_, err := repo.InsertDocument(ctx, fmt.Sprintf("list doc %d", rand.Int()), randomEmbedding())
	gt.NoError(t, err)

	docs, err := repo.ListDocuments(ctx, 0, 5)
	gt.NoError(t, err)
	gt.A(t, docs).Longer(0)
}
