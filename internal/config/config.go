package config

import (
	"log"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	ListenPort int `env:"LISTEN_PORT" envDefault:"8080"`

	// LLM settings
	OpenAIAPIKey  string `env:"OPENAI_API_KEY,required"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Prompts
	SystemPromptPath string `env:"SYSTEM_PROMPT_PATH" envDefault:"prompts/system_prompt.txt"`

	// Storage
	DBPath string `env:"DB_PATH" envDefault:"data/conversations.db"`

	// Rendering
	TypstBinPath    string `env:"TYPST_BIN" envDefault:"typst"`
	RenderDir       string `env:"RENDER_DIR" envDefault:"data/render"`
	RenderRetention int    `env:"RENDER_RETENTION_HOURS" envDefault:"24"`
	CleanupCronSpec string `env:"CLEANUP_CRON" envDefault:"0 4 * * *"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}
