package ingest

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/utils/logging"
)

// embedBatchSize is the number of texts sent to the embedding model per call
const embedBatchSize = 32

// UseCase ingests a document corpus into the knowledge store outside the
// chat loop, one document per non-empty line of the source.
type UseCase struct {
	repo    repository.Repository
	gemini  adapter.Gemini
	storage adapter.Storage
}

// NewInput contains dependencies for the ingest use case
type NewInput struct {
	Repo   repository.Repository
	Gemini adapter.Gemini

	// Storage is required only for bucket sources
	Storage adapter.Storage
}

func New(input NewInput) (*UseCase, error) {
	if input.Repo == nil {
		return nil, goerr.New("repository is required")
	}
	if input.Gemini == nil {
		return nil, goerr.New("gemini adapter is required")
	}

	return &UseCase{
		repo:    input.Repo,
		gemini:  input.Gemini,
		storage: input.Storage,
	}, nil
}

// Result summarizes an ingestion run. Items are independent: failures are
// reported per item and never roll back earlier inserts.
type Result struct {
	Inserted int
	Failed   int
	Outcomes []repository.BatchResult
}

// Run ingests every non-empty line of r as one document.
func (u *UseCase) Run(ctx context.Context, r io.Reader) (*Result, error) {
	logger := logging.From(ctx)

	var texts []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		texts = append(texts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to read corpus")
	}

	result := &Result{}
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		batch := texts[start:end]

		vectors, err := u.gemini.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to embed corpus batch",
				goerr.V("offset", start), goerr.V("size", len(batch)))
		}

		items := make([]repository.DocumentInput, len(batch))
		for i, text := range batch {
			items[i] = repository.DocumentInput{Text: text, Embedding: vectors[i]}
		}

		for _, outcome := range u.repo.BatchInsertDocuments(ctx, items) {
			outcome.Index += start
			result.Outcomes = append(result.Outcomes, outcome)
			if outcome.Err != nil {
				result.Failed++
				logger.Warn("failed to ingest document", "index", outcome.Index, "error", outcome.Err)
			} else {
				result.Inserted++
			}
		}
	}

	logger.Info("ingestion completed", "inserted", result.Inserted, "failed", result.Failed)
	return result, nil
}

// RunObject ingests a corpus object from the configured storage bucket.
func (u *UseCase) RunObject(ctx context.Context, key string) (*Result, error) {
	if u.storage == nil {
		return nil, goerr.New("storage is not configured")
	}

	reader, err := u.storage.Get(ctx, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open corpus object", goerr.V("key", key))
	}
	defer reader.Close()

	return u.Run(ctx, reader)
}
