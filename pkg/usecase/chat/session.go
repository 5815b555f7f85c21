package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/tool"
	"github.com/m-mizutani/recall/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

// MaxSteps caps model invocations per inbound request. Tool-call cycles
// terminate here no matter what the model asks for.
const MaxSteps = 5

const systemPrompt = `You are a helpful assistant. Check your knowledge base before answering any questions.
Only respond to questions using information from tool calls.
If no relevant information is found in the tool calls, respond, "Sorry, I don't know."`

// Handler receives stream events in order. Returning an error stops the
// session; the error propagates out of Stream.
type Handler func(event *model.ChatEvent) error

// Session drives one conversation: it owns the working history for the
// duration of a request and runs the bounded model/tool loop.
type Session struct {
	gemini   adapter.Gemini
	registry *tool.Registry
	history  []*genai.Content
}

// NewInput contains parameters for creating a chat session
type NewInput struct {
	Gemini   adapter.Gemini
	Registry *tool.Registry

	// History is the caller-supplied prior conversation, may be nil
	History []*genai.Content
}

func New(input NewInput) (*Session, error) {
	if input.Gemini == nil {
		return nil, goerr.New("gemini adapter is required")
	}
	if input.Registry == nil {
		return nil, goerr.New("tool registry is required")
	}

	return &Session{
		gemini:   input.Gemini,
		registry: input.Registry,
		history:  input.History,
	}, nil
}

// History returns the working conversation including tool turns. The slice
// is owned by the session; callers must not mutate it.
func (s *Session) History() []*genai.Content {
	return s.history
}

// Stream appends the user message and runs the model/tool loop, emitting
// events to onEvent as they are produced. Text deltas are emitted in
// arrival order; tool results are merged back into history in call-ID order
// so repeated runs see a deterministic transcript. The loop ends when the
// model answers without requesting tools, or unconditionally after MaxSteps
// model invocations.
func (s *Session) Stream(ctx context.Context, message string, onEvent Handler) error {
	logger := logging.From(ctx)

	s.history = append(s.history, genai.NewContentFromText(message, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, ""),
		Tools:             s.registry.Specs(),
	}
	if prompts := s.registry.Prompts(ctx); prompts != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt+"\n\n"+prompts, "")
	}

	reason := model.DoneReasonStepLimit

	for step := 1; step <= MaxSteps; step++ {
		calls, err := s.runStep(ctx, step, config, onEvent)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				// The wall-clock budget ran out. Whatever has been streamed
				// so far stands as the final output.
				reason = model.DoneReasonTimeout
				break
			}
			event := &model.ChatEvent{Type: model.ChatEventError, Message: "model request failed"}
			if evErr := onEvent(event); evErr != nil {
				return evErr
			}
			return goerr.Wrap(err, "chat step failed", goerr.V("step", step))
		}

		if len(calls) == 0 {
			reason = model.DoneReasonCompleted
			break
		}

		if err := s.executeTools(ctx, calls, onEvent); err != nil {
			return err
		}

		logger.Debug("chat step completed", "step", step, "tool_calls", len(calls))
	}

	return onEvent(&model.ChatEvent{Type: model.ChatEventDone, Reason: reason})
}

// runStep performs one model invocation. It streams text deltas out as they
// arrive, accumulates the model turn into history, and returns any function
// calls the model requested in that turn.
func (s *Session) runStep(ctx context.Context, step int, config *genai.GenerateContentConfig, onEvent Handler) ([]*genai.FunctionCall, error) {
	var text strings.Builder
	var calls []*genai.FunctionCall

	for resp, err := range s.gemini.GenerateStream(ctx, s.history, config) {
		if err != nil {
			return nil, err
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}

		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
				if err := onEvent(&model.ChatEvent{Type: model.ChatEventText, Text: part.Text}); err != nil {
					return nil, err
				}
			}

			if part.FunctionCall != nil {
				fc := *part.FunctionCall
				if fc.ID == "" {
					// Gemini may omit call IDs; synthesized IDs keep them
					// unique within the conversation
					fc.ID = fmt.Sprintf("call_%d_%d", step, len(calls))
				}
				calls = append(calls, &fc)

				event := &model.ChatEvent{
					Type:   model.ChatEventToolCall,
					CallID: fc.ID,
					Tool:   fc.Name,
					Args:   fc.Args,
				}
				if err := onEvent(event); err != nil {
					return nil, err
				}
			}
		}
	}

	// Record the full model turn, text and calls together
	parts := make([]*genai.Part, 0, len(calls)+1)
	if text.Len() > 0 {
		parts = append(parts, &genai.Part{Text: text.String()})
	}
	for _, fc := range calls {
		parts = append(parts, &genai.Part{FunctionCall: fc})
	}
	if len(parts) > 0 {
		s.history = append(s.history, &genai.Content{Role: genai.RoleModel, Parts: parts})
	}

	return calls, nil
}

// executeTools runs the requested tool calls concurrently. Completion order
// is not guaranteed, so results are collected per call and folded into
// history in call-ID order as a single tool-result turn.
func (s *Session) executeTools(ctx context.Context, calls []*genai.FunctionCall, onEvent Handler) error {
	responses := make([]*genai.FunctionResponse, len(calls))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, fc := range calls {
		eg.Go(func() error {
			responses[i] = s.executeOne(egCtx, fc)
			return nil
		})
	}
	// Tool faults are contained into responses, never returned
	_ = eg.Wait()

	parts := make([]*genai.Part, 0, len(responses))
	for _, resp := range responses {
		parts = append(parts, &genai.Part{FunctionResponse: resp})

		result, ok := resp.Response["result"].(string)
		if !ok {
			if errMsg, ok := resp.Response["error"].(string); ok {
				result = errMsg
			}
		}
		event := &model.ChatEvent{
			Type:   model.ChatEventToolResult,
			CallID: resp.ID,
			Tool:   resp.Name,
			Result: result,
			IsErr:  resp.Response["error"] != nil,
		}
		if err := onEvent(event); err != nil {
			return err
		}
	}

	s.history = append(s.history, &genai.Content{Role: genai.RoleUser, Parts: parts})
	return nil
}

// executeOne runs a single tool call. Failures never cross the tool
// boundary as faults: they become structured error payloads the model can
// read and correct on the next step.
func (s *Session) executeOne(ctx context.Context, fc *genai.FunctionCall) *genai.FunctionResponse {
	resp, err := s.registry.Execute(ctx, *fc)
	if err == nil {
		if resp.ID == "" {
			resp.ID = fc.ID
		}
		return resp
	}

	logging.From(ctx).Warn("tool execution failed", "tool", fc.Name, "call_id", fc.ID, "error", err)

	msg := "tool execution failed"
	switch {
	case errors.Is(err, model.ErrToolInputInvalid):
		// Detail helps the model fix its arguments
		msg = err.Error()
	case errors.Is(err, model.ErrToolNotFound):
		msg = fmt.Sprintf("unknown tool: %s", fc.Name)
	}

	return &genai.FunctionResponse{
		ID:   fc.ID,
		Name: fc.Name,
		Response: map[string]any{
			"error": msg,
		},
	}
}
