package models

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	StatusUploaded   TaskStatus = "uploaded"
	StatusQueued     TaskStatus = "queued"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the worker is done with a task in this status.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// RequeueableStatuses are the statuses from which an evaluation may be requested.
var RequeueableStatuses = []TaskStatus{StatusUploaded, StatusCompleted, StatusFailed}

// Requeueable reports whether an evaluation may be requested for a task in this status.
func (s TaskStatus) Requeueable() bool {
	return slices.Contains(RequeueableStatuses, s)
}

// JobMeta is supplied when an evaluation is requested. Rubric is kept verbatim.
type JobMeta struct {
	JobTitle       string          `json:"job_title,omitempty"`
	JobDescription string          `json:"job_description"`
	Rubric         json.RawMessage `json:"rubric,omitempty"`
}

type Task struct {
	ID           uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Status       TaskStatus `gorm:"type:text;not null;default:'uploaded';index" json:"status"`
	JobMeta      *JobMeta   `gorm:"type:jsonb;serializer:json" json:"job_meta,omitempty"`
	ErrorMessage *string    `gorm:"type:text" json:"error_message,omitempty"`
	// Attempt counts claims; terminal writes must carry the attempt they were claimed with.
	Attempt int `gorm:"not null;default:0" json:"attempt"`
	CreatedAt    time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`

	Documents []ExtractedDocument `gorm:"foreignKey:TaskID" json:"-"`
}

func (Task) TableName() string {
	return "tasks"
}
