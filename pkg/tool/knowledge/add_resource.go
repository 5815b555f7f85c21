package knowledge

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/tool"
	"github.com/m-mizutani/recall/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

type addResourceInput struct {
	Content string `json:"content"`
}

// AddResource ingests a fact into the knowledge base. The description tells
// the model to call it immediately when the user volunteers information, so
// ingestion stays a single round trip with no confirmation turn.
type AddResource struct {
	repo   repository.Repository
	gemini adapter.Gemini
}

// NewAddResource creates a new add_resource tool
func NewAddResource(repo repository.Repository, gemini adapter.Gemini) *AddResource {
	return &AddResource{
		repo:   repo,
		gemini: gemini,
	}
}

func (t *AddResource) Spec() *genai.Tool {
	params := tool.MustSchemaFor[addResourceInput]()
	params.Properties["content"].Description = "The content or resource to add to the knowledge base"

	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name: "add_resource",
				Description: "Add a resource to your knowledge base. " +
					"If the user provides a random piece of knowledge unprompted, " +
					"use this tool without asking for confirmation.",
				Parameters: params,
			},
		},
	}
}

func (t *AddResource) Prompt(ctx context.Context) string {
	return ""
}

func (t *AddResource) Flags() []cli.Flag {
	return nil
}

func (t *AddResource) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	var input addResourceInput
	if err := tool.DecodeArgs(fc.Args, &input); err != nil {
		return nil, err
	}

	embedding, err := t.gemini.Embed(ctx, input.Content)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content")
	}

	id, err := t.repo.InsertDocument(ctx, input.Content, embedding)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to insert document")
	}

	logging.From(ctx).Info("added resource to knowledge base", "document_id", id)

	return &genai.FunctionResponse{
		ID:   fc.ID,
		Name: fc.Name,
		Response: map[string]any{
			"result": "Resource added to the knowledge base.",
		},
	}, nil
}
