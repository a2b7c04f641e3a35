package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"alfredoptarigan/cv-eval-pipeline/internal/config"
)

const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
)

// defaultRequestTimeout bounds a provider call when LLM_REQUEST_TIMEOUT is unset.
const defaultRequestTimeout = 60 * time.Second

// GenerationParams are the sampling parameters for one call.
type GenerationParams struct {
	Temperature     float32
	MaxOutputTokens int32
	JSONOutput      bool
}

// Generator sends a prompt to a text-generation provider and returns raw text.
type Generator interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Provider() string
	Model() string
	Close() error
}

type EmbeddingIntent string

const (
	IntentDocument EmbeddingIntent = "document"
	IntentQuery    EmbeddingIntent = "query"
)

// EmbeddingClient turns text into a vector for the given intent.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string, intent EmbeddingIntent) ([]float32, error)
	Dimensions() int
	Close() error
}

// NewGenerator builds the adapter selected by cfg.Provider.
func NewGenerator(ctx context.Context, cfg config.LLMConfig, log *zap.Logger) (Generator, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.RequestTimeout, log)
	case ProviderOpenRouter:
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		return NewOpenRouterGenerator(OpenRouterOptions{
			APIKey:  cfg.OpenRouterAPIKey,
			Model:   cfg.OpenRouterModel,
			URL:     cfg.OpenRouterURL,
			Timeout: timeout,
		}, log), nil
	default:
		return nil, &ConfigurationError{Param: "llm provider", Reason: fmt.Sprintf("unsupported provider %q", cfg.Provider)}
	}
}
