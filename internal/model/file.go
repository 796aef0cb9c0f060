// Package model contains the durable entities shared across packages: the
// struct definitions are deliberately plain, with persistence concerns
// living in internal/repository instead.
package model

import "time"

// File represents a named byte blob and its derived processing status.
type File struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	MimeType    string            `json:"mimeType"`
	SizeBytes   int64             `json:"sizeBytes"`
	ContentHash string            `json:"contentHash"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`

	// Status is derived from the file's jobs rather than stored directly;
	// repositories populate it from the latest job row when loading a file.
	Status string `json:"status"`
}
