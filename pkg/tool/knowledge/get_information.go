package knowledge

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/tool"
	"github.com/m-mizutani/recall/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

// NoRelevantDocuments is returned to the model when retrieval finds
// nothing. An empty result is a normal outcome, not an error.
const NoRelevantDocuments = "No relevant documents found."

// topK is the fixed number of nearest neighbors fetched per question
const topK = 3

type getInformationInput struct {
	Question string `json:"question"`
}

// GetInformation retrieves knowledge base entries relevant to a question.
type GetInformation struct {
	repo   repository.Repository
	gemini adapter.Gemini
}

// NewGetInformation creates a new get_information tool
func NewGetInformation(repo repository.Repository, gemini adapter.Gemini) *GetInformation {
	return &GetInformation{
		repo:   repo,
		gemini: gemini,
	}
}

func (t *GetInformation) Spec() *genai.Tool {
	params := tool.MustSchemaFor[getInformationInput]()
	params.Properties["question"].Description = "The user's question to look up in the knowledge base"

	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name: "get_information",
				Description: "Get information from your knowledge base to answer questions. " +
					"Always check the knowledge base before answering.",
				Parameters: params,
			},
		},
	}
}

func (t *GetInformation) Prompt(ctx context.Context) string {
	return ""
}

func (t *GetInformation) Flags() []cli.Flag {
	return nil
}

func (t *GetInformation) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	var input getInformationInput
	if err := tool.DecodeArgs(fc.Args, &input); err != nil {
		return nil, err
	}

	embedding, err := t.gemini.Embed(ctx, input.Question)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed question")
	}

	results, err := t.repo.SearchSimilarDocuments(ctx, embedding, topK)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search documents")
	}

	logging.From(ctx).Info("searched knowledge base",
		"question", input.Question, "hits", len(results))

	result := NoRelevantDocuments
	if len(results) > 0 {
		texts := make([]string, len(results))
		for i, r := range results {
			texts[i] = r.Text
		}
		result = strings.Join(texts, "\n\n")
	}

	return &genai.FunctionResponse{
		ID:   fc.ID,
		Name: fc.Name,
		Response: map[string]any{
			"result": result,
		},
	}, nil
}
