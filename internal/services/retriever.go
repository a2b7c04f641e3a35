package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Retriever turns query text into reference context from the knowledge store.
type Retriever interface {
	RetrieveContext(ctx context.Context, query string, k int, documentTypes ...string) (string, error)
}

type retriever struct {
	embedder EmbeddingClient
	store    KnowledgeStore
	retry    RetryPolicy
	log      *zap.Logger
}

func NewRetriever(embedder EmbeddingClient, store KnowledgeStore, retry RetryPolicy, log *zap.Logger) Retriever {
	return &retriever{
		embedder: embedder,
		store:    store,
		retry:    retry,
		log:      log,
	}
}

// RetrieveContext returns the top k chunks joined in descending similarity.
// An empty store yields "" and no error.
func (r *retriever) RetrieveContext(ctx context.Context, query string, k int, documentTypes ...string) (string, error) {
	if strings.TrimSpace(query) == "" || k <= 0 {
		return "", nil
	}

	policy := r.retry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		r.log.Warn("⚠️ query embedding failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	embedding, err := WithRetry(ctx, policy, func(ctx context.Context) ([]float32, error) {
		return r.embedder.Embed(ctx, query, IntentQuery)
	})
	if err != nil {
		return "", err
	}

	results, err := r.store.Search(ctx, embedding, documentTypes, k)
	if err != nil {
		return "", fmt.Errorf("failed to search knowledge store: %w", err)
	}

	r.log.Debug("🔍 retrieved context",
		zap.Int("results", len(results)),
		zap.Strings("document_types", documentTypes),
	)

	return FormatRAGContext(results), nil
}
