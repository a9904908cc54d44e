package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"doc-chatter/internal/llm"
	"doc-chatter/internal/render"
	"doc-chatter/internal/transcript"
)

// turn owns all mutable state of one conversation turn. It runs on a single
// goroutine; nothing here needs locking.
type turn struct {
	store        transcript.Store
	backend      llm.StreamClient
	renderer     render.Renderer
	systemPrompt string

	conversationID string
	priorTurns     []llm.Message
	userMessage    string
	out            chan<- StreamEvent

	state turnState
	acc   strings.Builder

	// tool lifecycle, at most one per turn
	toolOpen       bool
	toolRan        bool
	toolIndex      int
	toolID         string
	toolName       string
	toolArgs       strings.Builder
	toolInput      ToolInput
	toolResult     ToolResult
	hasArtifact    bool
	secondToolSeen bool
}

func (t *turn) run(ctx context.Context) {
	// Persistence and rendering outlive a client abort on purpose: a logged
	// invocation must keep a path to its outcome.
	persistCtx := context.WithoutCancel(ctx)

	if _, err := t.store.Append(persistCtx, t.conversationID, transcript.SourceUser,
		transcript.UserPayload{Text: t.userMessage}); err != nil {
		t.fail(ctx, fmt.Errorf("failed to persist user message: %w", err))
		return
	}
	t.emit(ctx, StreamEvent{Kind: EventTurnStarted, ConversationID: t.conversationID})

	if err := t.streamModel(ctx, t.baseMessages()); err != nil {
		if ctx.Err() != nil {
			return // aborted mid-stream
		}
		t.fail(ctx, err)
		return
	}

	if t.toolOpen {
		if err := t.serviceTool(ctx, persistCtx); err != nil {
			t.fail(ctx, err)
			return
		}
		if ctx.Err() != nil {
			return // aborted: the outcome is logged, nobody is listening
		}
		if err := t.continueTurn(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			t.fail(ctx, err)
			return
		}
	}

	if ctx.Err() != nil {
		return // aborted: no assistant entry, no terminal event
	}
	if err := t.state.to(phaseComplete); err != nil {
		t.fail(ctx, err)
		return
	}
	if _, err := t.store.Append(persistCtx, t.conversationID, transcript.SourceAssistant,
		transcript.AssistantPayload{Text: t.acc.String(), HasArtifact: t.hasArtifact}); err != nil {
		t.fail(ctx, fmt.Errorf("failed to persist assistant message: %w", err))
		return
	}
	t.emit(ctx, StreamEvent{Kind: EventTurnComplete, Text: t.acc.String()})
}

// streamModel consumes one backend stream, accumulating text and buffering
// at most one tool invocation. Used for both the initial call and the
// continuation call.
func (t *turn) streamModel(ctx context.Context, messages []llm.Message) error {
	stream, err := t.backend.StreamChat(ctx, messages, llm.GetDocumentTools())
	if err != nil {
		return fmt.Errorf("failed to open model stream: %w", err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("model stream broken: %w", err)
		}
		switch chunk.Kind {
		case llm.ChunkText:
			t.acc.WriteString(chunk.Text)
			t.emit(ctx, StreamEvent{Kind: EventTextDelta, Text: chunk.Text})
		case llm.ChunkToolCall:
			t.onToolChunk(ctx, chunk)
		case llm.ChunkFinish:
			// finish reason precedes EOF; the buffered invocation is
			// serviced once the stream is drained
		}
	}
}

func (t *turn) onToolChunk(ctx context.Context, chunk llm.Chunk) {
	if !t.toolOpen {
		if t.toolRan {
			t.rejectToolCall(chunk)
			return
		}
		if err := t.state.to(phaseToolPending); err != nil {
			t.rejectToolCall(chunk)
			return
		}
		t.toolOpen = true
		t.toolIndex = chunk.ToolIndex
		t.toolID = chunk.ToolID
		if t.toolID == "" {
			t.toolID = fmt.Sprintf("call_%d", chunk.ToolIndex)
		}
		t.toolName = chunk.ToolName
		t.emit(ctx, StreamEvent{Kind: EventToolStarted, ToolCallID: t.toolID, ToolName: t.toolName})
		t.toolArgs.WriteString(chunk.ToolArgs)
		return
	}
	if chunk.ToolIndex != t.toolIndex || (chunk.ToolID != "" && chunk.ToolID != t.toolID) {
		t.rejectToolCall(chunk)
		return
	}
	t.toolArgs.WriteString(chunk.ToolArgs)
}

// rejectToolCall enforces the single-tool-per-turn contract: the extra
// invocation never reaches the wire or the log.
func (t *turn) rejectToolCall(chunk llm.Chunk) {
	if t.secondToolSeen {
		return
	}
	t.secondToolSeen = true
	log.Printf("⚠️ conversation %s: %v (tool %q dropped)", t.conversationID, ErrSecondToolCall, chunk.ToolName)
}

// serviceTool runs the buffered invocation to its outcome. Steps and their
// order are load-bearing: input parse, tool_input_ready, invocation entry,
// tool_executing, render, outcome entry, artifact cache, export variant,
// tool_finished.
func (t *turn) serviceTool(ctx, persistCtx context.Context) error {
	t.toolInput = t.parseToolInput()
	t.toolOpen = false
	t.emit(ctx, StreamEvent{Kind: EventToolInputReady, ToolCallID: t.toolID, ToolName: t.toolName, Input: &t.toolInput})

	if _, err := t.store.Append(persistCtx, t.conversationID, transcript.SourceToolInvocation,
		transcript.InvocationPayload{Tool: t.toolName, Code: t.toolInput.Code, Description: t.toolInput.Description}); err != nil {
		return fmt.Errorf("failed to persist tool invocation: %w", err)
	}
	if err := t.state.to(phaseToolExecuting); err != nil {
		return err
	}
	t.emit(ctx, StreamEvent{Kind: EventToolExecuting, ToolCallID: t.toolID})

	result := t.renderPages(persistCtx)

	outcome := transcript.OutcomePayload{Success: result.Success, Error: result.Error}
	if result.Success {
		outcome.Code = t.toolInput.Code
		outcome.Pages = result.Pages
	}
	if _, err := t.store.Append(persistCtx, t.conversationID, transcript.SourceToolOutcome, outcome); err != nil {
		return fmt.Errorf("failed to persist tool outcome: %w", err)
	}

	if result.Success {
		if err := t.store.SetLatestArtifact(persistCtx, t.conversationID, t.toolInput.Code, result.Pages); err != nil {
			return fmt.Errorf("failed to cache latest artifact: %w", err)
		}
		t.hasArtifact = true
		// The export variant is fetched before the success event goes out,
		// so the client never sees a success with the download missing.
		// A failed export does not downgrade the render.
		t.attachExport(persistCtx, &result)
	}

	t.toolResult = result
	t.toolRan = true
	t.emit(ctx, StreamEvent{Kind: EventToolFinished, ToolCallID: t.toolID, Result: &result})
	return nil
}

func (t *turn) renderPages(ctx context.Context) ToolResult {
	res, err := t.renderer.Render(ctx, render.Request{Code: t.toolInput.Code, Format: render.FormatPNG})
	if err != nil {
		// Collaborator failures are outcomes, not turn failures.
		return ToolResult{Success: false, Error: err.Error()}
	}
	if !res.Success {
		return ToolResult{Success: false, Error: res.Error}
	}
	return ToolResult{Success: true, Pages: res.Pages}
}

func (t *turn) attachExport(ctx context.Context, result *ToolResult) {
	export, err := t.renderer.Render(ctx, render.Request{Code: t.toolInput.Code, Format: render.FormatPDF})
	switch {
	case err != nil:
		log.Printf("export render failed for conversation %s: %v", t.conversationID, err)
	case !export.Success:
		log.Printf("export render rejected for conversation %s: %s", t.conversationID, export.Error)
	default:
		result.Data = export.Data
		result.MimeType = export.MimeType
	}
}

// parseToolInput decodes the buffered invocation block. Malformed input from
// the model substitutes an empty input instead of failing the turn.
func (t *turn) parseToolInput() ToolInput {
	var input ToolInput
	if err := json.Unmarshal([]byte(t.toolArgs.String()), &input); err != nil {
		log.Printf("⚠️ malformed tool input for conversation %s, substituting empty input: %v", t.conversationID, err)
		return ToolInput{}
	}
	return input
}

// continueTurn fires the single follow-up model call after a tool outcome.
// The model sees its partial text, the invocation block, and a short
// human-readable result note, never the rendered artifact itself.
func (t *turn) continueTurn(ctx context.Context) error {
	if err := t.state.to(phaseContinuing); err != nil {
		return err
	}
	t.emit(ctx, StreamEvent{Kind: EventContinuation})

	messages := t.baseMessages()
	messages = append(messages, llm.Message{
		Role:      "assistant",
		Content:   t.acc.String(),
		ToolCalls: []llm.ToolCall{{ID: t.toolID, Name: t.toolName, Arguments: t.toolArgs.String()}},
	})
	messages = append(messages, llm.Message{
		Role:       "tool",
		ToolCallID: t.toolID,
		Content:    toolResultNote(t.toolResult),
	})
	return t.streamModel(ctx, messages)
}

func (t *turn) baseMessages() []llm.Message {
	var messages []llm.Message
	if t.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: t.systemPrompt})
	}
	messages = append(messages, t.priorTurns...)
	messages = append(messages, llm.Message{Role: "user", Content: t.userMessage})
	return messages
}

func (t *turn) fail(ctx context.Context, err error) {
	_ = t.state.to(phaseFailed)
	log.Printf("❌ turn failed for conversation %s: %v", t.conversationID, err)
	t.emit(ctx, StreamEvent{Kind: EventTurnFailed, Err: err.Error()})
}

// emit delivers one live event; after an abort it drops events silently so
// the turn can keep settling its persistent state.
func (t *turn) emit(ctx context.Context, ev StreamEvent) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case t.out <- ev:
		return true
	}
}

func toolResultNote(r ToolResult) string {
	if r.Success {
		return fmt.Sprintf("The document compiled successfully (%d pages). The user already sees the preview and the download link.", len(r.Pages))
	}
	return fmt.Sprintf("Compilation failed: %s. Explain the problem to the user and offer a fix.", r.Error)
}
