package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EvaluationResult is the single committed outcome of a task, unique per task_id.
type EvaluationResult struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"-"`
	TaskID          uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"-"`
	CVMatchRate     float64         `gorm:"type:numeric(5,1);not null;default:0" json:"cv_match_rate"`
	CVFeedback      *string         `gorm:"type:text" json:"cv_feedback"`
	ProjectScore    float64         `gorm:"type:numeric(4,1);not null;default:0" json:"project_score"`
	ProjectFeedback *string         `gorm:"type:text" json:"project_feedback"`
	OverallSummary  string          `gorm:"type:text" json:"overall_summary"`
	RawLLMOutputs   json.RawMessage `gorm:"type:jsonb;serializer:json" json:"raw_llm_outputs"`
	CreatedAt       time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt       time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"-"`
}

func (EvaluationResult) TableName() string {
	return "results"
}

type UploadResponse struct {
	TaskID    string             `json:"task_id"`
	Status    string             `json:"status"`
	Documents []UploadedDocument `json:"documents"`
}

type UploadedDocument struct {
	ID           string `json:"id"`
	Role         string `json:"role"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	TextLength   int    `json:"text_length"`
}

type EvaluateRequest struct {
	TaskID         string          `json:"task_id" validate:"required,uuid"`
	JobTitle       string          `json:"job_title" validate:"omitempty,max=200"`
	JobDescription string          `json:"job_description" validate:"required"`
	Rubric         json.RawMessage `json:"rubric" validate:"required"`
}

type EvaluateResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type ResultResponse struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Result       *EvaluationResult `json:"result,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
}
