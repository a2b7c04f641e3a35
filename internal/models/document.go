package models

import (
	"time"

	"github.com/google/uuid"
)

type DocumentRole string

const (
	RoleCV      DocumentRole = "cv"
	RoleProject DocumentRole = "project"
)

// ExtractedDocument holds the decoded text of one uploaded file. Rows are
// written once at intake and never updated.
type ExtractedDocument struct {
	ID               uuid.UUID    `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TaskID           uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_task_role" json:"task_id"`
	Role             DocumentRole `gorm:"type:text;not null;uniqueIndex:idx_task_role" json:"role"`
	OriginalFileName string       `gorm:"type:text" json:"original_filename"`
	MimeType         string       `gorm:"type:text" json:"mime_type"`
	StorageKey       string       `gorm:"type:text" json:"storage_key"`
	ExtractedText    string       `gorm:"type:text" json:"-"`
	CreatedAt        time.Time    `gorm:"type:timestamp;default:now()" json:"created_at"`
}

func (ExtractedDocument) TableName() string {
	return "files"
}

// DocumentChunk is one retrieval unit of the knowledge base.
type DocumentChunk struct {
	DocumentType string
	Content      string
	Embedding    []float32
}

// KnowledgeSnapshot points a document type at its live chunk generation.
type KnowledgeSnapshot struct {
	DocumentType string    `gorm:"type:text;primary_key" json:"document_type"`
	Generation   string    `gorm:"type:text;not null" json:"generation"`
	ChunkCount   int       `gorm:"not null;default:0" json:"chunk_count"`
	UpdatedAt    time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (KnowledgeSnapshot) TableName() string {
	return "knowledge_snapshots"
}
