package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
)

type TaskRepository interface {
	CreateWithDocuments(ctx context.Context, task *models.Task, docs []models.ExtractedDocument) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	Queue(ctx context.Context, id uuid.UUID, meta models.JobMeta) error
	Claim(ctx context.Context, id uuid.UUID) (int, error)
	Complete(ctx context.Context, attempt int, result *models.EvaluationResult) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempt int, errorMsg string) error
	FindQueued(ctx context.Context, olderThan time.Time, limit int) ([]models.Task, error)
	RequeueStale(ctx context.Context, olderThan time.Time, limit int) ([]uuid.UUID, error)
}

type taskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

// CreateWithDocuments writes the task and its extracted documents together.
func (r *taskRepository) CreateWithDocuments(ctx context.Context, task *models.Task, docs []models.ExtractedDocument) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(task).Error; err != nil {
			return err
		}
		for i := range docs {
			docs[i].TaskID = task.ID
		}
		if len(docs) > 0 {
			if err := tx.Create(&docs).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (r *taskRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return &task, nil
}

// Queue stores the job metadata and moves the task to queued. Tasks that are
// already queued or processing are left alone.
func (r *taskRepository) Queue(ctx context.Context, id uuid.UUID, meta models.JobMeta) error {
	result := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND status IN ?", id, models.RequeueableStatuses).
		Updates(map[string]interface{}{
			"status":        models.StatusQueued,
			"job_meta":      &meta,
			"error_message": nil,
			"updated_at":    time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to queue task: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return missingOr(r.db.WithContext(ctx), id, ErrNotClaimable)
	}

	return nil
}

// Claim moves a queued task to processing and returns the new attempt number.
func (r *taskRepository) Claim(ctx context.Context, id uuid.UUID) (int, error) {
	var claimed models.Task
	result := r.db.WithContext(ctx).Model(&claimed).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "attempt"}}}).
		Where("id = ? AND status = ?", id, models.StatusQueued).
		Updates(map[string]interface{}{
			"status":     models.StatusProcessing,
			"attempt":    gorm.Expr("attempt + 1"),
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to claim task: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return 0, missingOr(r.db.WithContext(ctx), id, ErrNotClaimable)
	}

	return claimed.Attempt, nil
}

// Complete marks the task completed and upserts the result keyed by task_id in
// one transaction. It returns ErrNotClaimable, writing nothing, when the task
// is no longer processing under attempt.
func (r *taskRepository) Complete(ctx context.Context, attempt int, res *models.EvaluationResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		update := tx.Model(&models.Task{}).
			Where("id = ? AND status = ? AND attempt = ?", res.TaskID, models.StatusProcessing, attempt).
			Updates(map[string]interface{}{
				"status":        models.StatusCompleted,
				"error_message": nil,
				"updated_at":    time.Now(),
			})
		if update.Error != nil {
			return fmt.Errorf("failed to mark task completed: %w", update.Error)
		}
		if update.RowsAffected == 0 {
			return missingOr(tx, res.TaskID, ErrNotClaimable)
		}

		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "task_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"cv_match_rate", "cv_feedback", "project_score", "project_feedback",
				"overall_summary", "raw_llm_outputs", "updated_at",
			}),
		}).Create(res).Error
		if err != nil {
			return fmt.Errorf("failed to upsert result: %w", err)
		}
		return nil
	})
}

// MarkFailed records the failure unless the task was requeued or reclaimed
// since attempt, in which case it returns ErrNotClaimable.
func (r *taskRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempt int, errorMsg string) error {
	result := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND status = ? AND attempt = ?", id, models.StatusProcessing, attempt).
		Updates(map[string]interface{}{
			"status":        models.StatusFailed,
			"error_message": errorMsg,
			"updated_at":    time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to mark task failed: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return missingOr(r.db.WithContext(ctx), id, ErrNotClaimable)
	}

	return nil
}

// FindQueued lists queued tasks last touched before olderThan, oldest first.
func (r *taskRepository) FindQueued(ctx context.Context, olderThan time.Time, limit int) ([]models.Task, error) {
	var tasks []models.Task
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.StatusQueued, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&tasks).Error

	if err != nil {
		return nil, fmt.Errorf("failed to find queued tasks: %w", err)
	}

	return tasks, nil
}

// RequeueStale moves processing tasks not updated since olderThan back to queued.
func (r *taskRepository) RequeueStale(ctx context.Context, olderThan time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stale []models.Task
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Select("id").
			Where("status = ? AND updated_at < ?", models.StatusProcessing, olderThan).
			Order("updated_at ASC").
			Limit(limit).
			Find(&stale).Error
		if err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}

		for _, t := range stale {
			ids = append(ids, t.ID)
		}

		return tx.Model(&models.Task{}).
			Where("id IN ? AND status = ?", ids, models.StatusProcessing).
			Updates(map[string]interface{}{
				"status":     models.StatusQueued,
				"updated_at": time.Now(),
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to requeue stale tasks: %w", err)
	}

	return ids, nil
}

func missingOr(db *gorm.DB, id uuid.UUID, fallback error) error {
	var count int64
	if err := db.Model(&models.Task{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check task: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("task %s: %w", id, fallback)
}
