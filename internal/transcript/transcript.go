package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Source discriminates the payload shape of an Entry.
type Source string

const (
	SourceUser           Source = "user"
	SourceAssistant      Source = "assistant"
	SourceToolInvocation Source = "tool_invocation"
	SourceToolOutcome    Source = "tool_outcome"
)

var ErrNotFound = errors.New("conversation not found")

// Entry is one append-only transcript row. Entries of one conversation,
// ordered by (Timestamp, ID), replay into one coherent transcript.
//
// Structural invariant: a tool outcome resolves the most recent still
// unresolved tool invocation of its conversation. The pairing is
// positional; invocation ids live only on the wire and are not persisted.
type Entry struct {
	ID             int64           `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Timestamp      time.Time       `json:"timestamp"`
	Source         Source          `json:"source"`
	Payload        json.RawMessage `json:"payload"`
}

type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LatestMarkup string    `json:"latest_markup,omitempty"`
	LatestPages  []string  `json:"latest_pages,omitempty"`
}

// Payload shapes, keyed by Source.

type UserPayload struct {
	Text string `json:"text"`
}

type AssistantPayload struct {
	Text        string `json:"text"`
	HasArtifact bool   `json:"has_artifact"`
}

type InvocationPayload struct {
	Tool        string `json:"tool"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// OutcomePayload persists what a turn produced, not the live wire payload:
// the exportable file variant is never logged, it is re-rendered from the
// markup on demand.
type OutcomePayload struct {
	Success bool     `json:"success"`
	Code    string   `json:"code,omitempty"`
	Pages   []string `json:"pages,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Store abstracts the append-only conversation log. Implementations must be
// safe for concurrent use; entries must come back in append order.
type Store interface {
	Append(ctx context.Context, conversationID string, source Source, payload any) (Entry, error)
	ReadAll(ctx context.Context, conversationID string) ([]Entry, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)
	ListConversations(ctx context.Context, limit, offset int) ([]Conversation, error)
	SetLatestArtifact(ctx context.Context, id, markup string, pages []string) error
	SetTitle(ctx context.Context, id, title string) error
}
