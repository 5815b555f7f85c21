package model

// ChatEventType identifies a single event in a chat response stream.
type ChatEventType string

const (
	// ChatEventText carries an incremental chunk of model text
	ChatEventText ChatEventType = "text"
	// ChatEventToolCall reports that the model requested a tool invocation
	ChatEventToolCall ChatEventType = "tool_call"
	// ChatEventToolResult reports the outcome of a tool invocation
	ChatEventToolResult ChatEventType = "tool_result"
	// ChatEventDone terminates the stream
	ChatEventDone ChatEventType = "done"
	// ChatEventError reports a stream-level failure; the stream ends after it
	ChatEventError ChatEventType = "error"
)

// Done reasons. A step-limited session is a normal completion, not an error.
const (
	DoneReasonCompleted = "completed"
	DoneReasonStepLimit = "step_limit"
	DoneReasonTimeout   = "timeout"
)

// ChatEvent is a single event in a chat response stream. Fields other than
// Type are populated depending on the event type.
type ChatEvent struct {
	Type ChatEventType `json:"type"`

	// Text delta (ChatEventText)
	Text string `json:"text,omitempty"`

	// Tool call / result correlation (ChatEventToolCall, ChatEventToolResult)
	CallID string         `json:"call_id,omitempty"`
	Tool   string         `json:"tool,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
	Result string         `json:"result,omitempty"`
	IsErr  bool           `json:"is_error,omitempty"`

	// Terminal state (ChatEventDone, ChatEventError)
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}
