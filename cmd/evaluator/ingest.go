package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alfredoptarigan/cv-eval-pipeline/internal/services"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files or s3://bucket/key ...]",
	Short: "Rebuild the knowledge base for one document type",
	Long:  "Extract text from the given sources, chunk and embed it, and replace the document type's chunk set in one step.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var (
	ingestType        string
	ingestChunkSize   int
	ingestOverlap     int
	ingestParallelism int
)

func init() {
	ingestCmd.Flags().StringVarP(&ingestType, "type", "t", "", "Document type to replace (default from DOCUMENT_TYPE)")
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 0, "Chunk size in characters (default from CHUNK_SIZE)")
	ingestCmd.Flags().IntVar(&ingestOverlap, "overlap", -1, "Chunk overlap in characters (default from CHUNK_OVERLAP)")
	ingestCmd.Flags().IntVar(&ingestParallelism, "parallelism", 4, "Concurrent embedding requests")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.closers.close()

	docType := ingestType
	if docType == "" {
		docType = a.cfg.Chunking.DocumentType
	}
	chunkSize := ingestChunkSize
	if chunkSize <= 0 {
		chunkSize = a.cfg.Chunking.ChunkSize
	}
	overlap := ingestOverlap
	if overlap < 0 {
		overlap = a.cfg.Chunking.ChunkOverlap
	}

	embedder, err := a.embedder(ctx)
	if err != nil {
		return err
	}
	store, err := a.knowledgeStore(ctx)
	if err != nil {
		return err
	}

	var objects services.ObjectReader
	reader := services.NewDocumentReader()

	texts := make([]string, 0, len(args))
	for _, src := range args {
		log := a.log.With(zap.String("source", src))
		log.Info("📄 Processing source")

		data, err := readSource(ctx, a, &objects, src)
		if err != nil {
			return err
		}

		mimeType, err := reader.DetectType(src, "")
		if err != nil {
			return fmt.Errorf("%s: %w", src, err)
		}

		text, err := reader.ExtractText(mimeType, data)
		if err != nil {
			return fmt.Errorf("%s: %w", src, err)
		}

		log.Info("✅ Extracted text", zap.Int("characters", len(text)))
		texts = append(texts, text)
	}

	indexer := services.NewIndexer(services.NewTextChunker(), embedder, store, a.retryPolicy(), a.log)
	count, err := indexer.Index(ctx, docType, texts, services.IndexOptions{
		ChunkSize:    chunkSize,
		ChunkOverlap: overlap,
		Parallelism:  ingestParallelism,
	})
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", docType, err)
	}

	a.log.Info("📊 Ingestion summary",
		zap.String("document_type", docType),
		zap.Int("sources", len(texts)),
		zap.Int("chunks", count),
	)
	return nil
}

// readSource loads a local path or an s3://bucket/key object.
func readSource(ctx context.Context, a *app, objects *services.ObjectReader, src string) ([]byte, error) {
	rest, ok := strings.CutPrefix(src, "s3://")
	if !ok {
		data, err := os.ReadFile(filepath.Clean(src))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", src, err)
		}
		return data, nil
	}

	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return nil, fmt.Errorf("invalid s3 source %q, want s3://bucket/key", src)
	}

	if *objects == nil {
		cfg := a.cfg.Storage
		cfg.Driver = services.StorageDriverS3
		cfg.S3Bucket = bucket
		storage, err := services.NewS3Storage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		*objects = storage.(services.ObjectReader)
	}

	return (*objects).ReadObject(ctx, bucket, key)
}
