// Package httpapi exposes the HTTP surface described in the external
// interfaces section: upload, job orchestration, progress streaming and
// search, all wrapped in a uniform {success,data,error,timestamp} envelope.
package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/ingestkit/internal/blobstore"
	"github.com/dharsanguruparan/ingestkit/internal/config"
	"github.com/dharsanguruparan/ingestkit/internal/model"
	"github.com/dharsanguruparan/ingestkit/internal/pipeline"
	"github.com/dharsanguruparan/ingestkit/internal/progressbus"
	"github.com/dharsanguruparan/ingestkit/internal/repository"
	"github.com/dharsanguruparan/ingestkit/internal/search"
)

// Server exposes ingestkit's HTTP endpoints.
type Server struct {
	cfg        *config.Config
	files      *repository.FileRepository
	jobs       *repository.JobRepository
	chunks     *repository.ChunkRepository
	embeddings *repository.EmbeddingRepository
	blobs      *blobstore.Store
	bus        *progressbus.Bus
	searchEng  *search.Engine
	engine     *pipeline.Engine

	server *http.Server
	once   sync.Once
}

// Deps bundles the Server's dependencies.
type Deps struct {
	Config     *config.Config
	Files      *repository.FileRepository
	Jobs       *repository.JobRepository
	Chunks     *repository.ChunkRepository
	Embeddings *repository.EmbeddingRepository
	Blobs      *blobstore.Store
	Bus        *progressbus.Bus
	Search     *search.Engine
	Engine     *pipeline.Engine
}

func New(d Deps) *Server {
	return &Server{
		cfg:        d.Config,
		files:      d.Files,
		jobs:       d.Jobs,
		chunks:     d.Chunks,
		embeddings: d.Embeddings,
		blobs:      d.Blobs,
		bus:        d.Bus,
		searchEng:  d.Search,
		engine:     d.Engine,
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", s.handleHealth)
		mux.HandleFunc("/files", s.handleFiles)
		mux.HandleFunc("/files/", s.handleFileRoute)
		mux.HandleFunc("/jobs/process/file/", s.handleProcessFile)
		mux.HandleFunc("/jobs/process/url", s.handleProcessURL)
		mux.HandleFunc("/jobs/process/youtube", s.handleProcessYoutube)
		mux.HandleFunc("/jobs/active", s.handleActiveJobs)
		mux.HandleFunc("/jobs/stream", s.handleStreamAll)
		mux.HandleFunc("/jobs/file/", s.handleJobsByFile)
		mux.HandleFunc("/jobs/", s.handleJobRoute)
		mux.HandleFunc("/chunks/file/", s.handleChunksByFile)
		mux.HandleFunc("/search", s.handleSearch)

		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: corsMiddleware(loggingMiddleware(mux)),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	log.Printf("ingestkit api listening on %s", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- files -----------------------------------------------------------

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleUpload(w, r)
	case http.MethodGet:
		s.handleListFiles(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+1<<20)

	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, fmt.Errorf("%w: expecting multipart form", errValidation))
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", errValidation, err))
		return
	}
	defer part.Close()

	data, err := io.ReadAll(io.LimitReader(part, s.cfg.MaxFileSize+1))
	if err != nil {
		respondError(w, fmt.Errorf("read upload: %w", err))
		return
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		respondError(w, fmt.Errorf("%w: file exceeds %d bytes", errPayloadTooLarge, s.cfg.MaxFileSize))
		return
	}
	if len(data) == 0 {
		respondError(w, fmt.Errorf("%w: empty file", errValidation))
		return
	}

	mimeType := http.DetectContentType(data)
	if !allowedType(mimeType, s.cfg.AllowedTypes) {
		respondError(w, fmt.Errorf("%w: %s not supported", errUnsupportedMedia, mimeType))
		return
	}

	filename := part.FileName()
	if filename == "" {
		filename = "upload"
	}

	key, err := s.blobs.UploadRaw(ctx, data, mimeType)
	if err != nil {
		respondError(w, fmt.Errorf("store file: %w", err))
		return
	}

	file := &model.File{
		ID:          uuid.NewString(),
		Name:        filename,
		MimeType:    mimeType,
		SizeBytes:   int64(len(data)),
		ContentHash: key,
	}
	if err := s.files.Create(ctx, file); err != nil {
		respondError(w, fmt.Errorf("store file metadata: %w", err))
		return
	}

	shouldProcess := r.URL.Query().Get("process") == "true"
	var job *model.Job
	if shouldProcess {
		job, err = s.createJob(ctx, file.ID, model.JobFileProcessing, nil)
		if err != nil {
			respondError(w, err)
			return
		}
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{"file": file, "job": job})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	files, err := s.files.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, files)
}

func (s *Server) handleFileRoute(w http.ResponseWriter, r *http.Request) {
	id, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/files/"))
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if rest == "download" {
		s.handleFileDownload(w, r, id)
		return
	}
	if rest != "" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleGetFile(w, r, id)
	case http.MethodPut:
		s.handleUpdateFile(w, r, id)
	case http.MethodDelete:
		s.handleDeleteFile(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request, id string) {
	file, err := s.files.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, file)
}

type updateFileRequest struct {
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

func (s *Server) handleUpdateFile(w http.ResponseWriter, r *http.Request, id string) {
	var req updateFileRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid json body", errValidation))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, fmt.Errorf("%w: name is required", errValidation))
		return
	}
	file, err := s.files.Update(r.Context(), id, req.Name, req.Metadata)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, file)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.files.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleFileDownload(w http.ResponseWriter, r *http.Request, id string) {
	file, err := s.files.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	url, err := s.blobs.PresignRawURL(r.Context(), file.ContentHash, s.cfg.SignedURLTTL)
	if err != nil {
		respondError(w, fmt.Errorf("presign url: %w", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// --- jobs --------------------------------------------------------------

func (s *Server) createJob(ctx context.Context, fileID string, kind model.JobKind, payload map[string]string) (*model.Job, error) {
	job := &model.Job{
		ID:      uuid.NewString(),
		FileID:  fileID,
		Kind:    kind,
		Payload: payload,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

func (s *Server) handleProcessFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fileID := strings.TrimPrefix(r.URL.Path, "/jobs/process/file/")
	if fileID == "" {
		respondError(w, fmt.Errorf("%w: missing file id", errValidation))
		return
	}
	if _, err := s.files.Get(r.Context(), fileID); err != nil {
		respondError(w, err)
		return
	}
	job, err := s.createJob(r.Context(), fileID, model.JobFileProcessing, nil)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

type sourceRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleProcessURL(w http.ResponseWriter, r *http.Request) {
	s.handleProcessSource(w, r, model.JobURLExtraction, "text/html")
}

func (s *Server) handleProcessYoutube(w http.ResponseWriter, r *http.Request) {
	s.handleProcessSource(w, r, model.JobYoutubeExtraction, "text/plain")
}

// handleProcessSource creates a placeholder file row for a URL/YouTube
// source (these jobs have no uploaded bytes, but every job still hangs off
// a file_id) and then the job itself.
func (s *Server) handleProcessSource(w http.ResponseWriter, r *http.Request, kind model.JobKind, mimeType string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req sourceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid json body", errValidation))
		return
	}
	if req.URL == "" {
		respondError(w, fmt.Errorf("%w: url is required", errValidation))
		return
	}

	sum := sha256.Sum256([]byte(req.URL))
	file := &model.File{
		ID:          uuid.NewString(),
		Name:        req.URL,
		MimeType:    mimeType,
		SizeBytes:   0,
		ContentHash: hex.EncodeToString(sum[:]),
	}
	if err := s.files.Create(r.Context(), file); err != nil {
		respondError(w, fmt.Errorf("store file metadata: %w", err))
		return
	}

	job, err := s.createJob(r.Context(), file.ID, kind, map[string]string{"url": req.URL})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{"file": file, "job": job})
}

func (s *Server) handleJobRoute(w http.ResponseWriter, r *http.Request) {
	id, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/jobs/"))
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch rest {
	case "":
		s.handleGetJob(w, r, id)
	case "cancel":
		s.handleCancelJob(w, r, id)
	case "stream":
		s.handleStreamJob(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	job, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, jobView(job))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.engine.Cancel(id)
	job, err := s.jobs.Cancel(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, jobView(job))
}

func (s *Server) handleJobsByFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fileID := strings.TrimPrefix(r.URL.Path, "/jobs/file/")
	jobs, err := s.jobs.ListByFile(r.Context(), fileID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleActiveJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jobs, err := s.jobs.ListActive(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, jobs)
}

// jobView adds the derived estimated-completion field to a job response
// without persisting it.
func jobView(j *model.Job) map[string]interface{} {
	return map[string]interface{}{
		"job":                j,
		"estimatedCompletion": j.EstimatedCompletion(),
	}
}

// --- progress streaming (SSE) -------------------------------------------

const sseHeartbeatInterval = 15 * time.Second

func (s *Server) handleStreamJob(w http.ResponseWriter, r *http.Request, jobID string) {
	s.streamEvents(w, r, func() (<-chan model.ProgressEvent, func()) {
		return s.bus.Subscribe(jobID)
	})
}

func (s *Server) handleStreamAll(w http.ResponseWriter, r *http.Request) {
	s.streamEvents(w, r, s.bus.SubscribeAll)
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, subscribe func() (<-chan model.ProgressEvent, func())) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, unsubscribe := subscribe()
	defer unsubscribe()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case evt, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// --- chunks --------------------------------------------------------------

func (s *Server) handleChunksByFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fileID := strings.TrimPrefix(r.URL.Path, "/chunks/file/")
	chunks, err := s.chunks.ListByFile(r.Context(), fileID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, chunks)
}

// --- search --------------------------------------------------------------

type searchRequest struct {
	Query               string   `json:"query"`
	FileID              string   `json:"fileId"`
	Limit               int      `json:"limit"`
	SimilarityThreshold *float64 `json:"similarityThreshold"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req searchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid json body", errValidation))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, search.ErrEmptyQuery)
		return
	}
	if req.SimilarityThreshold != nil && (*req.SimilarityThreshold < 0 || *req.SimilarityThreshold > 1) {
		respondError(w, fmt.Errorf("%w: similarityThreshold must be in [0,1]", errValidation))
		return
	}
	if req.Limit > search.MaxLimit {
		req.Limit = search.MaxLimit
	}
	resp, err := s.searchEng.Query(r.Context(), req.Query, req.FileID, req.Limit, req.SimilarityThreshold)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// --- helpers --------------------------------------------------------------

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

func allowedType(mimeType string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), strings.Split(mimeType, ";")[0]) {
			return true
		}
	}
	return false
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// shiftPath splits "a/b/c" into ("a", "b/c").
func shiftPath(p string) (head, rest string) {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "", ""
	}
	idx := strings.IndexByte(p, '/')
	if idx < 0 {
		return p, ""
	}
	return p[:idx], p[idx+1:]
}
