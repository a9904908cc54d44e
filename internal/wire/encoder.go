// Package wire serializes orchestration events into SSE frames.
//
// A frame is `event: <kind>\ndata: <json>\n\n`. The body is a single JSON
// document, so the blank-line delimiter can never legally occur inside a
// frame: encoding/json escapes newlines inside string values.
package wire

import (
	"encoding/json"
	"fmt"

	"doc-chatter/internal/engine"
)

type Kind string

const (
	KindConversationID    Kind = "conversation_id"
	KindText              Kind = "text"
	KindToolStart         Kind = "tool_start"
	KindToolInput         Kind = "tool_input"
	KindToolExecuting     Kind = "tool_executing"
	KindToolResult        Kind = "tool_result"
	KindAssistantContinue Kind = "assistant_continue"
	KindDone              Kind = "done"
	KindError             Kind = "error"
)

type conversationIDPayload struct {
	ConversationID string `json:"conversation_id"`
}

type textPayload struct {
	Text string `json:"text"`
}

type toolStartPayload struct {
	ID   string `json:"id"`
	Tool string `json:"tool"`
}

type toolInputPayload struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

type toolExecutingPayload struct {
	ID string `json:"id"`
}

type toolResultPayload struct {
	ID       string   `json:"id"`
	Success  bool     `json:"success"`
	Pages    []string `json:"pages,omitempty"`
	Data     string   `json:"data,omitempty"`
	MimeType string   `json:"mime_type,omitempty"`
	Error    string   `json:"error,omitempty"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// Encode maps one orchestration event to one self-describing wire frame.
// Emission order is the caller's responsibility; Encode is pure.
func Encode(ev engine.StreamEvent) ([]byte, error) {
	kind, payload, err := framePayload(ev)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", kind, err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", kind, data)), nil
}

func framePayload(ev engine.StreamEvent) (Kind, any, error) {
	switch ev.Kind {
	case engine.EventTurnStarted:
		return KindConversationID, conversationIDPayload{ConversationID: ev.ConversationID}, nil
	case engine.EventTextDelta:
		return KindText, textPayload{Text: ev.Text}, nil
	case engine.EventToolStarted:
		return KindToolStart, toolStartPayload{ID: ev.ToolCallID, Tool: ev.ToolName}, nil
	case engine.EventToolInputReady:
		p := toolInputPayload{ID: ev.ToolCallID}
		if ev.Input != nil {
			p.Code = ev.Input.Code
			p.Description = ev.Input.Description
		}
		return KindToolInput, p, nil
	case engine.EventToolExecuting:
		return KindToolExecuting, toolExecutingPayload{ID: ev.ToolCallID}, nil
	case engine.EventToolFinished:
		p := toolResultPayload{ID: ev.ToolCallID}
		if ev.Result != nil {
			p.Success = ev.Result.Success
			p.Pages = ev.Result.Pages
			p.Data = ev.Result.Data
			p.MimeType = ev.Result.MimeType
			p.Error = ev.Result.Error
		}
		return KindToolResult, p, nil
	case engine.EventContinuation:
		return KindAssistantContinue, struct{}{}, nil
	case engine.EventTurnComplete:
		return KindDone, textPayload{Text: ev.Text}, nil
	case engine.EventTurnFailed:
		return KindError, errorPayload{Error: ev.Err}, nil
	}
	return "", nil, fmt.Errorf("unknown event kind: %q", ev.Kind)
}
