package chat_test

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/tool"
	"github.com/m-mizutani/recall/pkg/tool/knowledge"
	"github.com/m-mizutani/recall/pkg/usecase/chat"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

const testDimension = 3

// mockGemini scripts one stream response per model invocation. The step
// counter starts at 1 so scripts read like conversation turns.
type mockGemini struct {
	calls   int
	stream  func(step int, contents []*genai.Content) ([]*genai.GenerateContentResponse, error)
	vectors map[string][]float32
}

func (m *mockGemini) GenerateStream(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	m.calls++
	step := m.calls
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		resps, err := m.stream(step, contents)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, r := range resps {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func (m *mockGemini) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (m *mockGemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *mockGemini) Dimension() int {
	return testDimension
}

func textResp(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func callResp(calls ...*genai.FunctionCall) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, len(calls))
	for i, fc := range calls {
		parts[i] = &genai.Part{FunctionCall: fc}
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: genai.RoleModel, Parts: parts}},
		},
	}
}

func collector() (chat.Handler, *[]*model.ChatEvent) {
	events := &[]*model.ChatEvent{}
	return func(event *model.ChatEvent) error {
		*events = append(*events, event)
		return nil
	}, events
}

func eventsOfType(events []*model.ChatEvent, t model.ChatEventType) []*model.ChatEvent {
	var out []*model.ChatEvent
	for _, ev := range events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func joinText(events []*model.ChatEvent) string {
	var b strings.Builder
	for _, ev := range eventsOfType(events, model.ChatEventText) {
		b.WriteString(ev.Text)
	}
	return b.String()
}

func knowledgeSession(t *testing.T, gemini *mockGemini) (*chat.Session, *repository.Memory) {
	repo := repository.NewMemory(testDimension)
	registry := tool.New(
		knowledge.NewAddResource(repo, gemini),
		knowledge.NewGetInformation(repo, gemini),
	)

	session, err := chat.New(chat.NewInput{Gemini: gemini, Registry: registry})
	gt.NoError(t, err)
	return session, repo
}

func TestNewValidation(t *testing.T) {
	registry := tool.New()

	_, err := chat.New(chat.NewInput{Registry: registry})
	gt.Error(t, err)

	_, err = chat.New(chat.NewInput{Gemini: &mockGemini{}})
	gt.Error(t, err)
}

func TestStreamDirectAnswer(t *testing.T) {
	gemini := &mockGemini{
		stream: func(step int, contents []*genai.Content) ([]*genai.GenerateContentResponse, error) {
			return []*genai.GenerateContentResponse{textResp("Hello"), textResp(" there.")}, nil
		},
	}
	session, _ := knowledgeSession(t, gemini)
	onEvent, events := collector()

	gt.NoError(t, session.Stream(context.Background(), "hi", onEvent))

	gt.Equal(t, gemini.calls, 1)
	gt.Equal(t, joinText(*events), "Hello there.")

	last := (*events)[len(*events)-1]
	gt.Equal(t, last.Type, model.ChatEventDone)
	gt.Equal(t, last.Reason, model.DoneReasonCompleted)

	// History holds the user turn and the assembled model turn
	history := session.History()
	gt.A(t, history).Length(2)
	gt.Equal(t, history[0].Role, genai.RoleUser)
	gt.Equal(t, history[1].Role, genai.RoleModel)
	gt.Equal(t, history[1].Parts[0].Text, "Hello there.")
}

func TestStreamStepLimit(t *testing.T) {
	gemini := &mockGemini{
		stream: func(step int, contents []*genai.Content) ([]*genai.GenerateContentResponse, error) {
			// The model never stops asking for retrieval
			return []*genai.GenerateContentResponse{callResp(&genai.FunctionCall{
				Name: "get_information",
				Args: map[string]any{"question": "more context please"},
			})}, nil
		},
	}
	session, _ := knowledgeSession(t, gemini)
	onEvent, events := collector()

	gt.NoError(t, session.Stream(context.Background(), "keep digging", onEvent))

	gt.Equal(t, gemini.calls, chat.MaxSteps)
	gt.A(t, eventsOfType(*events, model.ChatEventToolCall)).Length(chat.MaxSteps)
	gt.A(t, eventsOfType(*events, model.ChatEventToolResult)).Length(chat.MaxSteps)

	last := (*events)[len(*events)-1]
	gt.Equal(t, last.Type, model.ChatEventDone)
	gt.Equal(t, last.Reason, model.DoneReasonStepLimit)
}

func TestStreamKnowledgeGrounding(t *testing.T) {
	gemini := &mockGemini{
		vectors: map[string][]float32{
			"The sky is blue.":       {1, 0, 0},
			"What color is the sky?": {1, 0, 0},
		},
		stream: func(step int, contents []*genai.Content) ([]*genai.GenerateContentResponse, error) {
			switch step {
			case 1:
				return []*genai.GenerateContentResponse{callResp(&genai.FunctionCall{
					Name: "get_information",
					Args: map[string]any{"question": "What color is the sky?"},
				})}, nil
			default:
				// The retrieved text must be on the second request
				last := contents[len(contents)-1]
				fr := last.Parts[0].FunctionResponse
				if fr == nil || fr.Response["result"] != "The sky is blue." {
					return nil, errors.New("expected retrieval result in transcript")
				}
				return []*genai.GenerateContentResponse{textResp("The sky is blue.")}, nil
			}
		},
	}
	session, repo := knowledgeSession(t, gemini)

	_, err := repo.InsertDocument(context.Background(), "The sky is blue.", []float32{1, 0, 0})
	gt.NoError(t, err)

	onEvent, events := collector()
	gt.NoError(t, session.Stream(context.Background(), "What color is the sky?", onEvent))

	gt.Equal(t, gemini.calls, 2)
	gt.Equal(t, joinText(*events), "The sky is blue.")

	results := eventsOfType(*events, model.ChatEventToolResult)
	gt.A(t, results).Length(1)
	gt.False(t, results[0].IsErr)
	gt.Equal(t, results[0].Result, "The sky is blue.")
}

func TestStreamRefusalOnEmptyStore(t *testing.T) {
	gemini := &mockGemini{
		stream: func(step int, contents []*genai.Content) ([]*genai.GenerateContentResponse, error) {
			if step == 1 {
				return []*genai.GenerateContentResponse{callResp(&genai.FunctionCall{
					Name: "get_information",
					Args: map[string]any{"question": "What color is the sky?"},
				})}, nil
			}
			return []*genai.GenerateContentResponse{textResp("Sorry, I don't know.")}, nil
		},
	}
	session, _ := knowledgeSession(t, gemini)
	onEvent, events := collector()

	gt.NoError(t, session.Stream(context.Background(), "What color is the sky?", onEvent))

	results := eventsOfType(*events, model.ChatEventToolResult)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Result, knowledge.NoRelevantDocuments)
	gt.Equal(t, joinText(*events), "Sorry, I don't know.")
}

func TestStreamUnpromptedFact(t *testing.T) {
	gemini := &mockGemini{
		vectors: map[string][]float32{
			"My cat is named Mochi.": {0, 1, 0},
		},
		stream: func(step int, contents []*genai.Content) ([]*genai.GenerateContentResponse, error) {
			if step == 1 {
				return []*genai.GenerateContentResponse{callResp(&genai.FunctionCall{
					Name: "add_resource",
					Args: map[string]any{"content": "My cat is named Mochi."},
				})}, nil
			}
			return []*genai.GenerateContentResponse{textResp("Noted!")}, nil
		},
	}
	session, repo := knowledgeSession(t, gemini)
	onEvent, events := collector()

	gt.NoError(t, session.Stream(context.Background(), "My cat is named Mochi.", onEvent))

	results := eventsOfType(*events, model.ChatEventToolResult)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Result, "Resource added to the knowledge base.")

	docs, err := repo.ListDocuments(context.Background(), 0, 10)
	gt.NoError(t, err)
	gt.A(t, docs).Length(1)
	gt.Equal(t, docs[0].Text, "My cat is named Mochi.")
}

func TestStreamToolErrorContained(t *testing.T) {
	gemini := &mockGemini{
		stream: func(step int, contents []*genai.Content) ([]*genai.GenerateContentResponse, error) {
			if step == 1 {
				return []*genai.GenerateContentResponse{callResp(&genai.FunctionCall{
					Name: "get_information",
					Args: map[string]any{"wrong_field": "oops"},
				})}, nil
			}
			return []*genai.GenerateContentResponse{textResp("Sorry, I don't know.")}, nil
		},
	}
	session, _ := knowledgeSession(t, gemini)
	onEvent, events := collector()

	// A failing tool call does not fail the session
	gt.NoError(t, session.Stream(context.Background(), "anything", onEvent))
	gt.Equal(t, gemini.calls, 2)

	results := eventsOfType(*events, model.ChatEventToolResult)
	gt.A(t, results).Length(1)
	gt.True(t, results[0].IsErr)
	gt.S(t, results[0].Result).Contains("decode")

	last := (*events)[len(*events)-1]
	gt.Equal(t, last.Reason, model.DoneReasonCompleted)
}

func TestStreamGenerateFailure(t *testing.T) {
	boom := errors.New("backend unavailable")
	gemini := &mockGemini{
		stream: func(step int, contents []*genai.Content) ([]*genai.GenerateContentResponse, error) {
			return nil, boom
		},
	}
	session, _ := knowledgeSession(t, gemini)
	onEvent, events := collector()

	err := session.Stream(context.Background(), "hello", onEvent)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, boom))

	errs := eventsOfType(*events, model.ChatEventError)
	gt.A(t, errs).Length(1)
	gt.A(t, eventsOfType(*events, model.ChatEventDone)).Length(0)
}

func TestStreamTimeout(t *testing.T) {
	gemini := &mockGemini{
		stream: func(step int, contents []*genai.Content) ([]*genai.GenerateContentResponse, error) {
			if step == 1 {
				return []*genai.GenerateContentResponse{
					textResp("Partial answer"),
					callResp(&genai.FunctionCall{
						Name: "get_information",
						Args: map[string]any{"question": "more"},
					}),
				}, nil
			}
			return nil, context.DeadlineExceeded
		},
	}
	session, _ := knowledgeSession(t, gemini)
	onEvent, events := collector()

	// The budget expiring mid-loop is a normal end of stream
	gt.NoError(t, session.Stream(context.Background(), "hello", onEvent))

	gt.Equal(t, joinText(*events), "Partial answer")
	last := (*events)[len(*events)-1]
	gt.Equal(t, last.Type, model.ChatEventDone)
	gt.Equal(t, last.Reason, model.DoneReasonTimeout)
}

// slowTool answers after a delay so concurrent execution can be observed.
type slowTool struct {
	name  string
	delay time.Duration
	runs  atomic.Int32
}

func (t *slowTool) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{Name: t.name, Description: "slow tool for tests"},
		},
	}
}

func (t *slowTool) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	time.Sleep(t.delay)
	t.runs.Add(1)
	return &genai.FunctionResponse{
		ID:       fc.ID,
		Name:     fc.Name,
		Response: map[string]any{"result": "done: " + t.name},
	}, nil
}

func (t *slowTool) Prompt(ctx context.Context) string { return "" }
func (t *slowTool) Flags() []cli.Flag                 { return nil }

func TestStreamParallelToolResultOrder(t *testing.T) {
	slow := &slowTool{name: "slow_lookup", delay: 50 * time.Millisecond}
	fast := &slowTool{name: "fast_lookup"}

	gemini := &mockGemini{
		stream: func(step int, contents []*genai.Content) ([]*genai.GenerateContentResponse, error) {
			if step == 1 {
				return []*genai.GenerateContentResponse{callResp(
					&genai.FunctionCall{Name: "slow_lookup", Args: map[string]any{}},
					&genai.FunctionCall{Name: "fast_lookup", Args: map[string]any{}},
				)}, nil
			}
			return []*genai.GenerateContentResponse{textResp("both done")}, nil
		},
	}

	registry := tool.New(slow, fast)
	session, err := chat.New(chat.NewInput{Gemini: gemini, Registry: registry})
	gt.NoError(t, err)

	onEvent, events := collector()
	gt.NoError(t, session.Stream(context.Background(), "run both", onEvent))

	gt.Equal(t, slow.runs.Load(), int32(1))
	gt.Equal(t, fast.runs.Load(), int32(1))

	// The fast tool finishes first, but results fold back in call order
	results := eventsOfType(*events, model.ChatEventToolResult)
	gt.A(t, results).Length(2)
	gt.Equal(t, results[0].Tool, "slow_lookup")
	gt.Equal(t, results[1].Tool, "fast_lookup")

	// The merged transcript turn mirrors the same order
	history := session.History()
	toolTurn := history[len(history)-2]
	gt.Equal(t, toolTurn.Role, genai.RoleUser)
	gt.A(t, toolTurn.Parts).Length(2)
	gt.Equal(t, toolTurn.Parts[0].FunctionResponse.Name, "slow_lookup")
	gt.Equal(t, toolTurn.Parts[1].FunctionResponse.Name, "fast_lookup")
}
