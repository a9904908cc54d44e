package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"doc-chatter/internal/engine"
	"doc-chatter/internal/llm"
	"doc-chatter/internal/render"
	"doc-chatter/internal/replay"
	"doc-chatter/internal/transcript"
	"doc-chatter/internal/wire"
)

// Server exposes the conversation API: one SSE connection per turn, plus
// transcript/list/artifact endpoints backed by the replay builder.
type Server struct {
	store     transcript.Store
	engine    *engine.Engine
	renderer  render.Renderer
	server    *http.Server
	port      int
	startTime time.Time
}

func NewServer(store transcript.Store, eng *engine.Engine, renderer render.Renderer, port int) *Server {
	return &Server{
		store:     store,
		engine:    eng,
		renderer:  renderer,
		port:      port,
		startTime: time.Now(),
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.port),
		Handler:     s.handler(),
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: turn streams stay open for as long as the
		// model talks
		IdleTimeout: 60 * time.Second,
	}

	log.Printf("🌐 Starting doc-chatter web server on http://localhost:%d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/conversations", s.handleConversations)
	mux.HandleFunc("/api/conversations/", s.handleConversation)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

// handleConversations serves GET (list) and POST (new conversation, first
// turn streamed on the same connection).
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listConversations(w, r)
	case http.MethodPost:
		s.streamTurn(w, r, transcript.NewConversationID())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleConversation routes /api/conversations/{id}[/messages|/artifact].
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		http.Error(w, "Conversation id is required", http.StatusBadRequest)
		return
	}

	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}
	switch {
	case sub == "" && r.Method == http.MethodGet:
		s.getTranscript(w, r, id)
	case sub == "messages" && r.Method == http.MethodPost:
		s.streamTurn(w, r, id)
	case sub == "artifact" && r.Method == http.MethodGet:
		s.downloadArtifact(w, r, id)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	convs, err := s.store.ListConversations(r.Context(), limit, offset)
	if err != nil {
		log.Printf("❌ Failed to list conversations: %v", err)
		http.Error(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}
	if convs == nil {
		convs = []transcript.Conversation{}
	}
	writeJSON(w, map[string]any{"conversations": convs})
}

// streamTurn runs one turn and relays its live events as SSE frames.
func (s *Server) streamTurn(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Message) == "" {
		http.Error(w, "A non-empty message is required", http.StatusBadRequest)
		return
	}

	entries, err := s.store.ReadAll(r.Context(), id)
	if err != nil {
		log.Printf("❌ Failed to load transcript for %s: %v", id, err)
		http.Error(w, "Failed to load conversation", http.StatusInternalServerError)
		return
	}
	firstTurn := len(entries) == 0
	prior := priorMessages(replay.BuildTranscript(entries))

	events, err := s.engine.RunTurn(r.Context(), id, prior, body.Message)
	if errors.Is(err, engine.ErrTurnInFlight) {
		http.Error(w, "A turn is already in flight for this conversation", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, "Failed to start turn", http.StatusInternalServerError)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for ev := range events {
		frame, err := wire.Encode(ev)
		if err != nil {
			log.Printf("failed to encode %s frame: %v", ev.Kind, err)
			continue
		}
		if _, err := w.Write(frame); err != nil {
			// client went away; keep draining so the turn can settle
			continue
		}
		flusher.Flush()
	}

	if firstTurn {
		// a fresh conversation gets its title from the opening message
		if err := s.store.SetTitle(context.Background(), id, deriveTitle(body.Message)); err != nil {
			log.Printf("failed to set title for %s: %v", id, err)
		}
	}
}

func (s *Server) getTranscript(w http.ResponseWriter, r *http.Request, id string) {
	conv, err := s.store.GetConversation(r.Context(), id)
	if errors.Is(err, transcript.ErrNotFound) {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("❌ Failed to load conversation %s: %v", id, err)
		http.Error(w, "Failed to load conversation", http.StatusInternalServerError)
		return
	}
	entries, err := s.store.ReadAll(r.Context(), id)
	if err != nil {
		log.Printf("❌ Failed to load transcript for %s: %v", id, err)
		http.Error(w, "Failed to load transcript", http.StatusInternalServerError)
		return
	}
	tr := replay.BuildTranscript(entries)
	writeJSON(w, map[string]any{
		"conversation": conv,
		"messages":     tr.Messages,
		"artifact":     tr.Artifact,
	})
}

// downloadArtifact re-renders the conversation's cached markup as the
// exportable file. The export variant is never persisted, only the markup.
func (s *Server) downloadArtifact(w http.ResponseWriter, r *http.Request, id string) {
	conv, err := s.store.GetConversation(r.Context(), id)
	if errors.Is(err, transcript.ErrNotFound) {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load conversation", http.StatusInternalServerError)
		return
	}
	if conv.LatestMarkup == "" {
		http.Error(w, "No rendered artifact yet", http.StatusNotFound)
		return
	}

	res, err := s.renderer.Render(r.Context(), render.Request{Code: conv.LatestMarkup, Format: render.FormatPDF})
	if err != nil || !res.Success {
		log.Printf("❌ Export render failed for %s: err=%v result=%q", id, err, res.Error)
		http.Error(w, "Failed to produce export file", http.StatusBadGateway)
		return
	}
	data, err := base64.StdEncoding.DecodeString(res.Data)
	if err != nil {
		http.Error(w, "Failed to decode export file", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", res.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="document.pdf"`)
	w.Write(data)
}

func priorMessages(tr replay.Transcript) []llm.Message {
	var out []llm.Message
	for _, m := range replay.PriorTurns(tr) {
		out = append(out, llm.Message{Role: string(m.Role), Content: m.Text})
	}
	return out
}

func deriveTitle(message string) string {
	title := strings.TrimSpace(message)
	if runes := []rune(title); len(runes) > 80 {
		title = string(runes[:80])
	}
	return title
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}
