package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"alfredoptarigan/cv-eval-pipeline/internal/logger"
)

// Gemini embedding inputs beyond this many bytes are cut before sending.
const maxEmbeddingInput = 40000

type geminiGenerator struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

// newGeminiClient bounds every request by timeout; zero falls back to defaultRequestTimeout.
func newGeminiClient(ctx context.Context, apiKey string, timeout time.Duration) (*genai.Client, error) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{Timeout: &timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return client, nil
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string, timeout time.Duration, log *zap.Logger) (Generator, error) {
	client, err := newGeminiClient(ctx, apiKey, timeout)
	if err != nil {
		return nil, err
	}

	return &geminiGenerator{
		client: client,
		model:  model,
		log:    logger.WithFields(log, logger.CommonFields(ProviderGemini, model)...),
	}, nil
}

func (g *geminiGenerator) Provider() string { return ProviderGemini }
func (g *geminiGenerator) Model() string    { return g.model }

// Close is a no-op; the genai client holds no connections of its own.
func (g *geminiGenerator) Close() error { return nil }

// Generate implements Generator.
func (g *geminiGenerator) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	temperature := params.Temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: params.MaxOutputTokens,
	}
	if params.JSONOutput {
		cfg.ResponseMIMEType = "application/json"
	}

	g.log.Debug("sending generation request",
		zap.Int("prompt_length", len(prompt)),
		zap.Float32("temperature", temperature),
	)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	if resp == nil {
		return "", &GenerationError{Provider: ProviderGemini, Err: errors.New("nil response")}
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &GenerationError{Provider: ProviderGemini, Err: errors.New("no text content in response")}
	}

	g.log.Debug("generation response received",
		zap.Int("response_length", len(text)),
		zap.String("response_preview", logger.TruncateForLog(text, 200)),
	)

	return text, nil
}

type geminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimensions int, timeout time.Duration) (EmbeddingClient, error) {
	client, err := newGeminiClient(ctx, apiKey, timeout)
	if err != nil {
		return nil, err
	}

	return &geminiEmbedder{client: client, model: model, dimensions: dimensions}, nil
}

func (e *geminiEmbedder) Dimensions() int { return e.dimensions }
func (e *geminiEmbedder) Close() error    { return nil }

// Embed implements EmbeddingClient.
func (e *geminiEmbedder) Embed(ctx context.Context, text string, intent EmbeddingIntent) ([]float32, error) {
	if len(text) > maxEmbeddingInput {
		text = strings.ToValidUTF8(text[:maxEmbeddingInput], "")
	}

	cfg := &genai.EmbedContentConfig{TaskType: geminiTaskType(intent)}
	if e.dimensions > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(e.dimensions))
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), cfg)
	if err != nil {
		embErr := &EmbeddingError{Model: e.model, Err: err}
		if geminiStatusPermanent(geminiStatus(err)) {
			return nil, Permanent(embErr)
		}
		return nil, embErr
	}

	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, &EmbeddingError{Model: e.model, Err: errors.New("empty embedding result")}
	}

	return result.Embeddings[0].Values, nil
}

func geminiTaskType(intent EmbeddingIntent) string {
	if intent == IntentQuery {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}

func classifyGeminiError(err error) error {
	status := geminiStatus(err)
	genErr := &GenerationError{Provider: ProviderGemini, StatusCode: status, Err: err}
	if geminiStatusPermanent(status) {
		return Permanent(genErr)
	}
	return genErr
}

func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}

// geminiStatusPermanent is true for request errors that will fail the same way again.
func geminiStatusPermanent(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	default:
		return false
	}
}
