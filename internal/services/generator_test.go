package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alfredoptarigan/cv-eval-pipeline/internal/config"
)

func TestNewGeneratorAppliesRequestTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      config.LLMConfig
		expected time.Duration
	}{
		{
			name:     "gemini configured",
			cfg:      config.LLMConfig{Provider: ProviderGemini, GeminiAPIKey: "key", GeminiModel: "gemini-test", RequestTimeout: 15 * time.Second},
			expected: 15 * time.Second,
		},
		{
			name:     "gemini default",
			cfg:      config.LLMConfig{Provider: ProviderGemini, GeminiAPIKey: "key", GeminiModel: "gemini-test"},
			expected: defaultRequestTimeout,
		},
		{
			name:     "openrouter configured",
			cfg:      config.LLMConfig{Provider: ProviderOpenRouter, OpenRouterAPIKey: "key", OpenRouterModel: "test/model", RequestTimeout: 20 * time.Second},
			expected: 20 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gen, err := NewGenerator(context.Background(), tt.cfg, zap.NewNop())
			require.NoError(t, err)
			defer gen.Close()

			switch g := gen.(type) {
			case *geminiGenerator:
				timeout := g.client.ClientConfig().HTTPOptions.Timeout
				require.NotNil(t, timeout)
				assert.Equal(t, tt.expected, *timeout)
			case *openRouterGenerator:
				assert.Equal(t, tt.expected, g.client.GetClient().Timeout)
			default:
				t.Fatalf("unexpected generator %T", gen)
			}
		})
	}
}

func TestGeminiEmbedderAppliesRequestTimeout(t *testing.T) {
	t.Parallel()

	emb, err := NewGeminiEmbedder(context.Background(), "key", "embedding-test", 768, 5*time.Second)
	require.NoError(t, err)
	defer emb.Close()

	timeout := emb.(*geminiEmbedder).client.ClientConfig().HTTPOptions.Timeout
	require.NotNil(t, timeout)
	assert.Equal(t, 5*time.Second, *timeout)
}

func TestNewGeneratorRejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	_, err := NewGenerator(context.Background(), config.LLMConfig{Provider: "mystery"}, zap.NewNop())

	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
