package services

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
)

type pgvectorStore struct {
	pool       *pgxpool.Pool
	dimensions int
	log        *zap.Logger
}

func NewPgvectorStore(ctx context.Context, dsn string, dimensions int, log *zap.Logger) (KnowledgeStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach vector database: %w", err)
	}

	store := &pgvectorStore{pool: pool, dimensions: dimensions, log: log}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

func (s *pgvectorStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			id BIGSERIAL PRIMARY KEY,
			document_type TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dimensions),
		`CREATE INDEX IF NOT EXISTS document_chunks_type_idx ON document_chunks (document_type)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare document_chunks: %w", err)
		}
	}

	s.log.Info("✅ Vector store ready", zap.Int("dimensions", s.dimensions))
	return nil
}

// ReplaceChunks implements KnowledgeStore. Delete and insert share one transaction.
func (s *pgvectorStore) ReplaceChunks(ctx context.Context, documentType string, chunks []models.DocumentChunk) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_type = $1`, documentType); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}

		batch := &pgx.Batch{}
		for _, c := range chunks {
			batch.Queue(
				`INSERT INTO document_chunks (document_type, content, embedding) VALUES ($1, $2, $3)`,
				documentType, c.Content, pgvector.NewVector(c.Embedding),
			)
		}
		if batch.Len() == 0 {
			return nil
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace %s chunks: %w", documentType, err)
	}

	s.log.Info("📚 Knowledge chunks replaced",
		zap.String("document_type", documentType),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// Search implements KnowledgeStore. Similarity is 1 - cosine distance.
func (s *pgvectorStore) Search(ctx context.Context, embedding []float32, documentTypes []string, limit int) ([]SearchResult, error) {
	query := `SELECT content, document_type, 1 - (embedding <=> $1) AS similarity
		FROM document_chunks`
	args := []any{pgvector.NewVector(embedding)}

	if len(documentTypes) > 0 {
		query += ` WHERE document_type = ANY($2)`
		args = append(args, documentTypes)
	}
	query += fmt.Sprintf(` ORDER BY similarity DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SearchResult, error) {
		var r SearchResult
		err := row.Scan(&r.Content, &r.DocumentType, &r.Score)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}

	return results, nil
}

func (s *pgvectorStore) Close() error {
	s.pool.Close()
	return nil
}
