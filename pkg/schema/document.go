package schema

import (
	"encoding/json"
	"time"
)

// Document ingestion sources.
const (
	SourceConsume = "consume"
	SourceUpload  = "upload"
	SourceAPI     = "api"
)

// Validation statuses a document moves through.
const (
	ValidationPending  = "pending"
	ValidationApproved = "approved"
	ValidationRejected = "rejected"
)

// Document is the engine-facing view of a document. The document lifecycle
// (storage, OCR, thumbnails) lives with external collaborators; trigger
// matchers and node executors only read and mutate this projection.
type Document struct {
	ID               string          `json:"id"`
	Title            string          `json:"title,omitempty"`
	Filename         string          `json:"filename,omitempty"`
	DocumentTypeID   string          `json:"document_type_id,omitempty"`
	DocumentTypeCode string          `json:"document_type_code,omitempty"`
	CorrespondentID  string          `json:"correspondent_id,omitempty"`
	TagIDs           []string        `json:"tag_ids,omitempty"`
	TagNames         []string        `json:"tag_names,omitempty"`
	Amount           *float64        `json:"amount,omitempty"`
	Source           string          `json:"source,omitempty"`
	ValidationStatus string          `json:"validation_status,omitempty"`
	ValidationLevel  int             `json:"validation_level,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// HasTagID reports whether the document carries the given tag ID.
func (d *Document) HasTagID(id string) bool {
	for _, t := range d.TagIDs {
		if t == id {
			return true
		}
	}
	return false
}
