package engine

import (
	"context"
	"errors"
	"sync"

	"doc-chatter/internal/llm"
	"doc-chatter/internal/render"
	"doc-chatter/internal/transcript"
)

var (
	// ErrTurnInFlight rejects a second concurrent turn for one conversation.
	// Callers surface it as a conflict rather than queueing.
	ErrTurnInFlight = errors.New("a turn is already in flight for this conversation")
	// ErrSecondToolCall marks a model attempting a second tool invocation
	// within one turn; the extra invocation is ignored, the turn continues.
	ErrSecondToolCall = errors.New("model attempted a second tool call within one turn")
)

// Engine drives conversation turns. All collaborators are injected
// capabilities; the engine holds no ambient state beyond the per-conversation
// in-flight latch.
type Engine struct {
	store        transcript.Store
	backend      llm.StreamClient
	renderer     render.Renderer
	systemPrompt string

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(store transcript.Store, backend llm.StreamClient, renderer render.Renderer, systemPrompt string) *Engine {
	return &Engine{
		store:        store,
		backend:      backend,
		renderer:     renderer,
		systemPrompt: systemPrompt,
		inflight:     make(map[string]struct{}),
	}
}

// RunTurn executes one conversation turn and returns its live event
// sequence. The channel is closed when the turn ends; a turn that was not
// aborted terminates with exactly one EventTurnComplete or EventTurnFailed.
//
// priorTurns must contain only user/assistant messages, in order. Cancelling
// ctx aborts the live sequence: no further events are delivered and no
// assistant entry is persisted, but an in-flight render still runs to
// completion and its outcome is still logged.
func (e *Engine) RunTurn(ctx context.Context, conversationID string, priorTurns []llm.Message, userMessage string) (<-chan StreamEvent, error) {
	if err := e.acquire(conversationID); err != nil {
		return nil, err
	}
	out := make(chan StreamEvent, 16)
	t := &turn{
		store:          e.store,
		backend:        e.backend,
		renderer:       e.renderer,
		systemPrompt:   e.systemPrompt,
		conversationID: conversationID,
		priorTurns:     priorTurns,
		userMessage:    userMessage,
		out:            out,
	}
	go func() {
		defer e.release(conversationID)
		defer close(out)
		t.run(ctx)
	}()
	return out, nil
}

func (e *Engine) acquire(conversationID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[conversationID]; busy {
		return ErrTurnInFlight
	}
	e.inflight[conversationID] = struct{}{}
	return nil
}

func (e *Engine) release(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, conversationID)
}
