package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/dharsanguruparan/ingestkit/internal/repository"
	"github.com/dharsanguruparan/ingestkit/internal/search"
)

// Stable error codes, per the error-handling design's taxonomy. Callers can
// match on these without parsing message text.
const (
	codeEmptyQuery       = "EMPTY_QUERY"
	codeInvalidRequest   = "INVALID_REQUEST"
	codeFileNotFound     = "FILE_NOT_FOUND"
	codeJobNotFound      = "JOB_NOT_FOUND"
	codeChunkNotFound    = "CHUNK_NOT_FOUND"
	codeEmbeddingNotFound = "EMBEDDING_NOT_FOUND"
	codeFileTooLarge     = "FILE_TOO_LARGE"
	codeSearchFailed     = "SEARCH_FAILED"
	codeInternalError    = "INTERNAL_ERROR"
)

// apiError is the structured error carried in a failed response's envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// envelope is the uniform JSON wrapper every response body uses.
type envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *apiError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := envelope{Success: status < 400, Data: data, Timestamp: time.Now().UTC()}
	if !body.Success {
		body.Data = nil
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, err error) {
	status, code, msg := classifyError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := envelope{Success: false, Error: &apiError{Code: code, Message: msg}, Timestamp: time.Now().UTC()}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		log.Printf("encode error response: %v", encErr)
	}
}

// classifyError maps the error taxonomy onto HTTP status codes and stable
// error codes.
func classifyError(err error) (status int, code string, message string) {
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		return http.StatusBadRequest, codeEmptyQuery, err.Error()
	case errors.Is(err, repository.ErrFileNotFound):
		return http.StatusNotFound, codeFileNotFound, err.Error()
	case errors.Is(err, repository.ErrJobNotFound):
		return http.StatusNotFound, codeJobNotFound, err.Error()
	case errors.Is(err, repository.ErrChunkNotFound):
		return http.StatusNotFound, codeChunkNotFound, err.Error()
	case errors.Is(err, repository.ErrEmbeddingNotFound):
		return http.StatusNotFound, codeEmbeddingNotFound, err.Error()
	case errors.Is(err, errPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, codeFileTooLarge, err.Error()
	case errors.Is(err, errUnsupportedMedia):
		return http.StatusUnsupportedMediaType, codeInvalidRequest, err.Error()
	case errors.Is(err, errValidation):
		return http.StatusBadRequest, codeInvalidRequest, err.Error()
	case errors.Is(err, search.ErrSearchFailed):
		return http.StatusInternalServerError, codeSearchFailed, err.Error()
	default:
		return http.StatusInternalServerError, codeInternalError, "internal error"
	}
}
