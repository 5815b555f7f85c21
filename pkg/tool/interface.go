package tool

import (
	"context"

	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

// Tool represents an external capability that can be called by the LLM
type Tool interface {
	// Spec returns the tool specification for Gemini function calling. The
	// declaration's description is model-facing contract text: the model,
	// not a human, decides applicability from it.
	Spec() *genai.Tool

	// Execute runs the tool with the given function call and returns the
	// response. Implementations return plain, model-consumable values and
	// report argument problems via model.ErrToolInputInvalid so the caller
	// can feed a structured error back to the model.
	Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error)

	// Prompt returns additional information to be added to the system prompt
	// Returns empty string if no additional prompt is needed
	Prompt(ctx context.Context) string

	// Flags returns CLI flags for this tool
	// Returns nil if no flags are needed
	Flags() []cli.Flag
}
