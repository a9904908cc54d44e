package engine

// EventKind tags one discrete orchestration event. Events are ephemeral:
// they exist on the live stream only, the transcript store persists the
// outcome of a turn rather than every delta.
type EventKind string

const (
	EventTurnStarted    EventKind = "turn_started"
	EventTextDelta      EventKind = "text_delta"
	EventToolStarted    EventKind = "tool_started"
	EventToolInputReady EventKind = "tool_input_ready"
	EventToolExecuting  EventKind = "tool_executing"
	EventToolFinished   EventKind = "tool_finished"
	EventContinuation   EventKind = "continuation"
	EventTurnComplete   EventKind = "turn_complete"
	EventTurnFailed     EventKind = "turn_failed"
)

// ToolInput is the parsed tool invocation payload supplied by the model.
type ToolInput struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ToolResult is the live tool outcome. Data carries the exportable file
// variant when one could be produced; its absence never downgrades an
// otherwise successful render.
type ToolResult struct {
	Success  bool
	Pages    []string
	Data     string
	MimeType string
	Error    string
}

// StreamEvent is one event on a turn's live sequence. ToolCallID is a
// provisional correlation id valid only within this turn; it is never
// persisted.
type StreamEvent struct {
	Kind           EventKind
	ConversationID string
	Text           string
	ToolCallID     string
	ToolName       string
	Input          *ToolInput
	Result         *ToolResult
	Err            string
}
