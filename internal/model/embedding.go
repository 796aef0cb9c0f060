package model

import "time"

// Embedding is a dense vector produced by a named model for one chunk. At
// most one embedding exists per (chunk_id, model_name, model_version) in the
// active generation; repositories enforce this with an upsert.
type Embedding struct {
	ID            string         `json:"id"`
	ChunkID       string         `json:"chunkId"`
	Vector        []float32      `json:"vector"`
	ModelName     string         `json:"modelName"`
	ModelVersion  *string        `json:"modelVersion,omitempty"`
	GeneratedAt   time.Time      `json:"generatedAt"`
	GenerationParams map[string]string `json:"generationParams,omitempty"`
}
