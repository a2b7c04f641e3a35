package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
	"alfredoptarigan/cv-eval-pipeline/internal/repositories"
	"alfredoptarigan/cv-eval-pipeline/internal/services"
)

// Multipart field names accepted by the upload endpoint.
const (
	FieldCV            = "cv"
	FieldProjectReport = "project_report"
)

type UploadHandler struct {
	taskRepo       repositories.TaskRepository
	storageService services.StorageService
	reader         services.DocumentReader
	maxFileSize    int64
	log            *zap.Logger
}

func NewUploadHandler(
	taskRepo repositories.TaskRepository,
	storageService services.StorageService,
	reader services.DocumentReader,
	maxFileSize int64,
	log *zap.Logger,
) *UploadHandler {
	return &UploadHandler{
		taskRepo:       taskRepo,
		storageService: storageService,
		reader:         reader,
		maxFileSize:    maxFileSize,
		log:            log,
	}
}

type uploadError struct {
	status  int
	message string
}

func (e *uploadError) Error() string { return e.message }

// HandleUpload handles POST /upload. It stores the raw files, extracts their
// text and creates a task in status uploaded.
func (h *UploadHandler) HandleUpload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to parse multipart form",
		})
	}

	task := &models.Task{
		ID:     uuid.New(),
		Status: models.StatusUploaded,
	}

	var (
		docs     []models.ExtractedDocument
		texts    []int
		savedKey []string
	)

	fields := []struct {
		name string
		role models.DocumentRole
	}{
		{FieldCV, models.RoleCV},
		{FieldProjectReport, models.RoleProject},
	}

	for _, f := range fields {
		files, exists := form.File[f.name]
		if !exists || len(files) == 0 {
			continue
		}

		doc, err := h.intake(c, task.ID, f.role, files[0])
		if err != nil {
			h.cleanup(c, savedKey)
			var ue *uploadError
			if errors.As(err, &ue) {
				return c.Status(ue.status).JSON(fiber.Map{"error": ue.message})
			}
			h.log.Error("❌ failed to store upload", zap.String("field", f.name), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": fmt.Sprintf("failed to store %s file", f.name),
			})
		}

		savedKey = append(savedKey, doc.StorageKey)
		texts = append(texts, len(doc.ExtractedText))
		docs = append(docs, *doc)
	}

	if len(docs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No valid files uploaded. Please upload 'cv' and/or 'project_report' as PDF, DOCX or plain text.",
		})
	}

	if err := h.taskRepo.CreateWithDocuments(c.UserContext(), task, docs); err != nil {
		h.cleanup(c, savedKey)
		h.log.Error("❌ failed to create task", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to save uploaded documents",
		})
	}

	resp := models.UploadResponse{
		TaskID: task.ID.String(),
		Status: string(models.StatusUploaded),
	}
	for i, doc := range docs {
		resp.Documents = append(resp.Documents, models.UploadedDocument{
			ID:           doc.ID.String(),
			Role:         string(doc.Role),
			OriginalName: doc.OriginalFileName,
			MimeType:     doc.MimeType,
			TextLength:   texts[i],
		})
	}

	h.log.Info("📥 documents uploaded",
		zap.String("task_id", resp.TaskID),
		zap.Int("documents", len(resp.Documents)),
	)

	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *UploadHandler) intake(c *fiber.Ctx, taskID uuid.UUID, role models.DocumentRole, file *multipart.FileHeader) (*models.ExtractedDocument, error) {
	if file.Size > h.maxFileSize {
		return nil, &uploadError{
			status:  fiber.StatusRequestEntityTooLarge,
			message: fmt.Sprintf("%s file too large. Max size: %d bytes", role, h.maxFileSize),
		}
	}

	mimeType, err := h.reader.DetectType(file.Filename, file.Header.Get(fiber.HeaderContentType))
	if err != nil {
		return nil, &uploadError{status: fiber.StatusUnsupportedMediaType, message: err.Error()}
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}

	text, err := h.reader.ExtractText(mimeType, data)
	if err != nil {
		return nil, &uploadError{
			status:  fiber.StatusUnprocessableEntity,
			message: fmt.Sprintf("failed to extract text from %s: %v", role, err),
		}
	}

	key := services.UploadKey(taskID, string(role), file.Filename)
	if err := h.storageService.Save(c.UserContext(), key, data, mimeType); err != nil {
		return nil, err
	}

	return &models.ExtractedDocument{
		ID:               uuid.New(),
		TaskID:           taskID,
		Role:             role,
		OriginalFileName: file.Filename,
		MimeType:         mimeType,
		StorageKey:       key,
		ExtractedText:    text,
	}, nil
}

func (h *UploadHandler) cleanup(c *fiber.Ctx, keys []string) {
	for _, key := range keys {
		if err := h.storageService.Delete(c.UserContext(), key); err != nil {
			h.log.Warn("⚠️ failed to remove stored file", zap.String("key", key), zap.Error(err))
		}
	}
}
