package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
)

// IndexOptions controls how source texts are cut and embedded.
type IndexOptions struct {
	ChunkSize    int
	ChunkOverlap int
	// Parallelism bounds concurrent embedding calls.
	Parallelism int
}

// Indexer rebuilds the chunk set of one document type from source texts.
type Indexer interface {
	Index(ctx context.Context, documentType string, texts []string, opts IndexOptions) (int, error)
}

type indexer struct {
	chunker  TextChunker
	embedder EmbeddingClient
	store    KnowledgeStore
	retry    RetryPolicy
	log      *zap.Logger
}

func NewIndexer(chunker TextChunker, embedder EmbeddingClient, store KnowledgeStore, retry RetryPolicy, log *zap.Logger) Indexer {
	return &indexer{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		retry:    retry,
		log:      log,
	}
}

// Index chunks every text, embeds the chunks with document intent and swaps
// them in as the document type's whole set. Chunk order follows input order.
// Nothing is written unless every chunk embeds.
func (ix *indexer) Index(ctx context.Context, documentType string, texts []string, opts IndexOptions) (int, error) {
	var pieces []string
	for _, text := range texts {
		split, err := ix.chunker.Split(text, opts.ChunkSize, opts.ChunkOverlap)
		if err != nil {
			return 0, err
		}
		pieces = append(pieces, split...)
	}

	log := ix.log.With(zap.String("document_type", documentType))
	log.Info("✂️ chunked sources", zap.Int("sources", len(texts)), zap.Int("chunks", len(pieces)))

	chunks := make([]models.DocumentChunk, len(pieces))

	policy := ix.retry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("⚠️ chunk embedding failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Parallelism, 1))

	for i, piece := range pieces {
		g.Go(func() error {
			vector, err := WithRetry(gctx, policy, func(ctx context.Context) ([]float32, error) {
				return ix.embedder.Embed(ctx, piece, IntentDocument)
			})
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}

			chunks[i] = models.DocumentChunk{
				DocumentType: documentType,
				Content:      piece,
				Embedding:    vector,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := ix.store.ReplaceChunks(ctx, documentType, chunks); err != nil {
		return 0, err
	}

	log.Info("✅ document type indexed", zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}
