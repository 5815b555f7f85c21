package model

import (
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Message is one turn of an inbound conversation as received over the API.
// User and assistant turns carry plain text; tool turns replay a prior tool
// result so a client can resend a full transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// Tool and CallID identify the tool invocation a tool-role turn belongs
	// to. Ignored for other roles.
	Tool   string `json:"tool,omitempty"`
	CallID string `json:"call_id,omitempty"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToContents converts API messages into genai contents. Assistant turns are
// mapped to the model role per the genai SDK convention; tool turns become
// user-role function responses, mirroring how the session folds tool results
// back into its working history.
func ToContents(messages []Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		case RoleTool:
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.CallID,
						Name:     msg.Tool,
						Response: map[string]any{"result": msg.Content},
					},
				}},
			})
		default:
			return nil, goerr.New("unknown message role",
				goerr.V("role", msg.Role), goerr.V("index", i))
		}
	}
	return contents, nil
}
