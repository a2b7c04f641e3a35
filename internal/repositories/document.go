package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
)

type DocumentRepository interface {
	FindByTaskID(ctx context.Context, taskID uuid.UUID) ([]models.ExtractedDocument, error)
}

type documentRepository struct {
	db *gorm.DB
}

// FindByTaskID implements DocumentRepository.
func (d *documentRepository) FindByTaskID(ctx context.Context, taskID uuid.UUID) ([]models.ExtractedDocument, error) {
	var docs []models.ExtractedDocument
	if err := d.db.WithContext(ctx).Where("task_id = ?", taskID).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to find documents: %w", err)
	}

	return docs, nil
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}
