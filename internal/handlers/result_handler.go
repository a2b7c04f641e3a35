package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
	"alfredoptarigan/cv-eval-pipeline/internal/repositories"
)

type ResultHandler struct {
	taskRepo   repositories.TaskRepository
	resultRepo repositories.ResultRepository
	log        *zap.Logger
}

func NewResultHandler(taskRepo repositories.TaskRepository, resultRepo repositories.ResultRepository, log *zap.Logger) *ResultHandler {
	return &ResultHandler{
		taskRepo:   taskRepo,
		resultRepo: resultRepo,
		log:        log,
	}
}

// HandleGetResult handles GET /result/:id
func (h *ResultHandler) HandleGetResult(c *fiber.Ctx) error {
	taskID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid task ID format",
		})
	}

	task, err := h.taskRepo.FindByID(c.UserContext(), taskID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Task not found",
			})
		}
		h.log.Error("❌ failed to load task", zap.String("task_id", taskID.String()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load task",
		})
	}

	response := models.ResultResponse{
		ID:     task.ID.String(),
		Status: string(task.Status),
	}

	switch task.Status {
	case models.StatusCompleted:
		result, err := h.resultRepo.FindByTaskID(c.UserContext(), taskID)
		if err != nil {
			h.log.Error("❌ completed task has no result", zap.String("task_id", taskID.String()), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to load result",
			})
		}
		response.Result = result
	case models.StatusFailed:
		response.ErrorMessage = task.ErrorMessage
	}

	return c.JSON(response)
}
