package llm

import "context"

type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a fully assembled tool invocation attached to an assistant
// message when it is replayed back to the backend on a continuation call.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type Tool struct {
	Type     string
	Function Function
}

type Function struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ChunkKind discriminates incremental stream payloads.
type ChunkKind int

const (
	ChunkText ChunkKind = iota
	ChunkToolCall
	ChunkFinish
)

// Chunk is one incremental piece of a backend response stream.
// For ChunkToolCall the Name/ID fields are set only on the fragment that
// opens the call; Arguments arrives piecewise across fragments.
type Chunk struct {
	Kind         ChunkKind
	Text         string
	ToolIndex    int
	ToolID       string
	ToolName     string
	ToolArgs     string
	FinishReason string
}

// Stream yields Chunks until io.EOF.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

type StreamClient interface {
	StreamChat(ctx context.Context, messages []Message, tools []Tool) (Stream, error)
}
