package model

import "time"

// Chunk is a contiguous span of extracted text belonging to one file.
// Chunk indices are dense and 0-based within a file: for N chunks the set
// of indices is exactly {0, ..., N-1}.
type Chunk struct {
	ID          string    `json:"id"`
	FileID      string    `json:"fileId"`
	Text        string    `json:"text"`
	ChunkIndex  int       `json:"chunkIndex"`
	TokenCount  int       `json:"tokenCount"`
	PageNumber  *int      `json:"pageNumber,omitempty"`
	SectionPath *string   `json:"sectionPath,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
