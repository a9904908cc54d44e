package llm

import (
	"doc-chatter/internal/config"
)

// Factory creates LLM clients with consistent logic
type Factory struct {
	APIKey             string
	BaseURL            string
	OpenRouterReferrer string
	OpenRouterTitle    string
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		APIKey:             cfg.OpenAIAPIKey,
		BaseURL:            cfg.OpenAIBaseURL,
		OpenRouterReferrer: cfg.OpenRouterReferrer,
		OpenRouterTitle:    cfg.OpenRouterTitle,
	}
}

func (f *Factory) CreateClient(model string) StreamClient {
	return NewOpenAI(f.APIKey, f.BaseURL, model, f.OpenRouterReferrer, f.OpenRouterTitle)
}
