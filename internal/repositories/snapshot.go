package repositories

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
)

// SnapshotRepository records which chunk generation is live per document type.
type SnapshotRepository interface {
	Activate(ctx context.Context, documentType, generation string, chunkCount int) error
	ActiveGenerations(ctx context.Context, documentTypes []string) ([]string, error)
}

type snapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) SnapshotRepository {
	return &snapshotRepository{db: db}
}

func (r *snapshotRepository) Activate(ctx context.Context, documentType, generation string, chunkCount int) error {
	snap := models.KnowledgeSnapshot{
		DocumentType: documentType,
		Generation:   generation,
		ChunkCount:   chunkCount,
		UpdatedAt:    time.Now(),
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"generation", "chunk_count", "updated_at"}),
	}).Create(&snap).Error
	if err != nil {
		return fmt.Errorf("failed to activate snapshot: %w", err)
	}
	return nil
}

// ActiveGenerations returns live generations for the given types, or for all
// types when none are given. Empty snapshots are skipped.
func (r *snapshotRepository) ActiveGenerations(ctx context.Context, documentTypes []string) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&models.KnowledgeSnapshot{}).Where("chunk_count > 0")
	if len(documentTypes) > 0 {
		q = q.Where("document_type IN ?", documentTypes)
	}

	var generations []string
	if err := q.Pluck("generation", &generations).Error; err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}
	return generations, nil
}
