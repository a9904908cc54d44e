package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"doc-chatter/internal/cleanup"
	"doc-chatter/internal/config"
	"doc-chatter/internal/engine"
	"doc-chatter/internal/llm"
	"doc-chatter/internal/render"
	"doc-chatter/internal/transcript"
	"doc-chatter/internal/web"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	store, err := transcript.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open transcript store: %v", err)
	}
	defer store.Close()

	llmClient := llm.NewFactory(cfg).CreateClient(cfg.OpenAIModel)

	renderer, err := render.NewTypst(cfg.TypstBinPath, cfg.RenderDir)
	if err != nil {
		log.Fatalf("failed to init renderer: %v", err)
	}

	systemPrompt := readSystemPrompt(cfg.SystemPromptPath)

	eng := engine.New(store, llmClient, renderer, systemPrompt)
	server := web.NewServer(store, eng, renderer, cfg.ListenPort)

	janitor := cleanup.New(cfg.RenderDir, time.Duration(cfg.RenderRetention)*time.Hour, cfg.CleanupCronSpec)
	if err := janitor.Start(); err != nil {
		log.Printf("failed to start cleanup scheduler: %v", err)
	}
	defer janitor.Stop()

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("web server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("shutting down")
	if err := server.Stop(); err != nil {
		log.Printf("failed to stop web server: %v", err)
	}
}

func readSystemPrompt(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("system prompt file not found or unreadable at %s: %v", path, err)
		return ""
	}
	return string(data)
}
