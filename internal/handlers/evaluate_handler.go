package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
	"alfredoptarigan/cv-eval-pipeline/internal/repositories"
	"alfredoptarigan/cv-eval-pipeline/internal/services"
)

type EvaluationHandler struct {
	taskRepo repositories.TaskRepository
	worker   services.Worker
	validate *validator.Validate
	log      *zap.Logger
}

func NewEvaluationHandler(
	taskRepo repositories.TaskRepository,
	worker services.Worker,
	log *zap.Logger,
) *EvaluationHandler {
	return &EvaluationHandler{
		taskRepo: taskRepo,
		worker:   worker,
		validate: validator.New(),
		log:      log,
	}
}

// HandleEvaluate handles POST /evaluate
func (h *EvaluationHandler) HandleEvaluate(c *fiber.Ctx) error {
	var req models.EvaluateRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
		})
	}

	if err := h.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": describeValidation(err),
		})
	}

	if !gjson.ParseBytes(req.Rubric).IsObject() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "rubric must be a JSON object",
		})
	}

	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid task_id format",
		})
	}

	meta := models.JobMeta{
		JobTitle:       strings.TrimSpace(req.JobTitle),
		JobDescription: req.JobDescription,
		Rubric:         req.Rubric,
	}

	if err := h.taskRepo.Queue(c.UserContext(), taskID, meta); err != nil {
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Task not found",
			})
		case errors.Is(err, repositories.ErrNotClaimable):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Task is already queued or processing",
			})
		default:
			h.log.Error("❌ failed to queue task", zap.String("task_id", req.TaskID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to queue evaluation",
			})
		}
	}

	// The poller picks the task up if this enqueue is lost.
	_ = h.worker.EnqueueJob(c.UserContext(), taskID)

	return c.Status(fiber.StatusAccepted).JSON(models.EvaluateResponse{
		ID:     taskID.String(),
		Status: string(models.StatusQueued),
	})
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
