package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"alfredoptarigan/cv-eval-pipeline/internal/logger"
)

const defaultOpenRouterURL = "https://openrouter.ai/api/v1/chat/completions"

type OpenRouterOptions struct {
	APIKey  string
	Model   string
	URL     string
	Timeout time.Duration
}

type openRouterGenerator struct {
	client *resty.Client
	url    string
	model  string
	log    *zap.Logger
}

func NewOpenRouterGenerator(opts OpenRouterOptions, log *zap.Logger) Generator {
	url := opts.URL
	if url == "" {
		url = defaultOpenRouterURL
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetAuthToken(opts.APIKey).
		SetHeader("Content-Type", "application/json")

	return &openRouterGenerator{
		client: client,
		url:    url,
		model:  opts.Model,
		log:    logger.WithFields(log, logger.CommonFields(ProviderOpenRouter, opts.Model)...),
	}
}

func (o *openRouterGenerator) Provider() string { return ProviderOpenRouter }
func (o *openRouterGenerator) Model() string    { return o.model }

func (o *openRouterGenerator) Close() error {
	o.client.GetClient().CloseIdleConnections()
	return nil
}

// Generate implements Generator.
func (o *openRouterGenerator) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	body := map[string]any{
		"model": o.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": params.Temperature,
		"max_tokens":  params.MaxOutputTokens,
	}
	if params.JSONOutput {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	o.log.Debug("sending generation request", zap.Int("prompt_length", len(prompt)))

	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(o.url)
	if err != nil {
		return "", &GenerationError{Provider: ProviderOpenRouter, Err: err}
	}

	if resp.IsError() {
		msg := gjson.Get(resp.String(), "error.message").String()
		if msg == "" {
			msg = logger.TruncateForLog(resp.String(), 200)
		}
		genErr := &GenerationError{
			Provider:   ProviderOpenRouter,
			StatusCode: resp.StatusCode(),
			Err:        errors.New(msg),
		}
		if openRouterStatusPermanent(resp.StatusCode()) {
			return "", Permanent(genErr)
		}
		return "", genErr
	}

	content := gjson.Get(resp.String(), "choices.0.message.content")
	if !content.Exists() || strings.TrimSpace(content.String()) == "" {
		return "", &GenerationError{
			Provider:   ProviderOpenRouter,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("no message content in response"),
		}
	}

	return content.String(), nil
}

func openRouterStatusPermanent(status int) bool {
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return false
	}
	return status >= 400 && status < 500
}
