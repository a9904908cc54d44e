// Package replay reconstructs UI transcript state from the persisted entry
// log. BuildTranscript is a pure function of its input: replaying the same
// log twice yields identical results, which is what lets a client reconnect
// mid-conversation and see exactly the state it would have streamed live.
package replay

import (
	"encoding/json"
	"log"

	"doc-chatter/internal/transcript"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type ToolStatus string

const (
	// StatusCalling marks an invocation whose outcome never arrived
	// (aborted turn). A permanent, acceptable terminal state.
	StatusCalling ToolStatus = "calling"
	StatusSuccess ToolStatus = "success"
	StatusError   ToolStatus = "error"
)

type Message struct {
	Role        Role       `json:"role"`
	Text        string     `json:"text,omitempty"`
	HasArtifact bool       `json:"has_artifact,omitempty"`
	Status      ToolStatus `json:"status,omitempty"`
	Code        string     `json:"code,omitempty"`
	Description string     `json:"description,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Artifact is the last successfully rendered document of a conversation.
type Artifact struct {
	Code  string   `json:"code"`
	Pages []string `json:"pages"`
}

type Transcript struct {
	Messages []Message `json:"messages"`
	Artifact *Artifact `json:"artifact,omitempty"`
}

// BuildTranscript scans entries in log order. Invocations and outcomes are
// paired positionally: an outcome closes the most recently opened still
// unresolved tool message. The artifact tracks the last successful outcome
// regardless of later failures. Malformed rows are skipped, never fatal.
func BuildTranscript(entries []transcript.Entry) Transcript {
	var out Transcript
	var unresolved []int // indexes into out.Messages, innermost last

	for _, e := range entries {
		switch e.Source {
		case transcript.SourceUser:
			var p transcript.UserPayload
			if !decode(e, &p) {
				continue
			}
			out.Messages = append(out.Messages, Message{Role: RoleUser, Text: p.Text})

		case transcript.SourceAssistant:
			var p transcript.AssistantPayload
			if !decode(e, &p) {
				continue
			}
			out.Messages = append(out.Messages, Message{Role: RoleAssistant, Text: p.Text, HasArtifact: p.HasArtifact})

		case transcript.SourceToolInvocation:
			var p transcript.InvocationPayload
			if !decode(e, &p) {
				continue
			}
			out.Messages = append(out.Messages, Message{
				Role:        RoleTool,
				Status:      StatusCalling,
				Code:        p.Code,
				Description: p.Description,
			})
			unresolved = append(unresolved, len(out.Messages)-1)

		case transcript.SourceToolOutcome:
			var p transcript.OutcomePayload
			if !decode(e, &p) {
				continue
			}
			if len(unresolved) == 0 {
				// outcome with no open invocation: log corruption we
				// tolerate rather than propagate
				log.Printf("replay: dangling tool outcome in conversation %s (entry %d)", e.ConversationID, e.ID)
				continue
			}
			idx := unresolved[len(unresolved)-1]
			unresolved = unresolved[:len(unresolved)-1]
			if p.Success {
				out.Messages[idx].Status = StatusSuccess
				out.Artifact = &Artifact{Code: p.Code, Pages: p.Pages}
			} else {
				out.Messages[idx].Status = StatusError
				out.Messages[idx].Error = p.Error
			}
		}
	}
	return out
}

// PriorTurns shapes a transcript back into model conversation history:
// user/assistant text only, tool turns reduced to their resolved textual
// effect (the assistant message already carries it).
func PriorTurns(tr Transcript) []Message {
	var out []Message
	for _, m := range tr.Messages {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}

func decode(e transcript.Entry, dst any) bool {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		log.Printf("replay: skipping malformed %s entry %d: %v", e.Source, e.ID, err)
		return false
	}
	return true
}
