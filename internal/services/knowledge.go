package services

import (
	"context"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
)

type SearchResult struct {
	Content      string
	DocumentType string
	Score        float64
}

// KnowledgeStore holds indexed reference chunks. ReplaceChunks swaps a document
// type's whole chunk set so readers see either the old set or the new one.
type KnowledgeStore interface {
	ReplaceChunks(ctx context.Context, documentType string, chunks []models.DocumentChunk) error
	Search(ctx context.Context, embedding []float32, documentTypes []string, limit int) ([]SearchResult, error)
	Close() error
}
