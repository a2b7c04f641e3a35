package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
)

type ResultRepository interface {
	FindByTaskID(ctx context.Context, taskID uuid.UUID) (*models.EvaluationResult, error)
}

type resultRepository struct {
	db *gorm.DB
}

func NewResultRepository(db *gorm.DB) ResultRepository {
	return &resultRepository{db: db}
}

func (r *resultRepository) FindByTaskID(ctx context.Context, taskID uuid.UUID) (*models.EvaluationResult, error) {
	var res models.EvaluationResult
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).First(&res).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("result for task %s: %w", taskID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find result: %w", err)
	}
	return &res, nil
}
