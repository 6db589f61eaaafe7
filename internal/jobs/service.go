// Package jobs is the admission gate and read side of the queue: it
// validates submissions, bounds queue growth, and projects job records
// into client-facing views.
package jobs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"mesh3d/internal/domain"
	"mesh3d/internal/infra"
	"mesh3d/internal/jobstore"
	"mesh3d/internal/storage"
	"mesh3d/internal/worker"
)

// SubmitRequest is the wire payload for a generation submission. All knobs
// are optional; at least one image form is required.
type SubmitRequest struct {
	Image          string   `json:"image" validate:"omitempty,base64"`
	ImageURL       string   `json:"image_url" validate:"omitempty,url"`
	Seed           *int     `json:"seed" validate:"omitempty,gte=0"`
	OutputFormat   string   `json:"output_format" validate:"omitempty,oneof=glb ply"`
	WithTexture    *bool    `json:"with_texture"`
	TextureSize    *int     `json:"texture_size" validate:"omitempty,gte=256,lte=4096"`
	Simplify       *float64 `json:"simplify" validate:"omitempty,gte=0,lte=1"`
	InferenceSteps *int     `json:"inference_steps" validate:"omitempty,gte=1,lte=200"`
	NViews         *int     `json:"nviews" validate:"omitempty,gte=1,lte=1000"`
}

// Accepted is returned to the caller of a successful submission.
type Accepted struct {
	JobID    string
	Position int
}

// StatusView is the client-facing projection of one job record.
type StatusView struct {
	JobID             string
	Status            domain.JobStatus
	Position          int
	Message           string
	Error             string
	DownloadPath      string
	ProcessingSeconds float64
	CreatedAt         time.Time
}

// Download carries the artifact bytes and serving metadata.
type Download struct {
	Data        []byte
	ContentType string
	Filename    string
}

// QueueStats is the side-effect-free monitoring projection.
type QueueStats struct {
	Queued        int
	Processing    int
	MaxQueueDepth int
	MaxConcurrent int
}

// CapacityError reports a rejected submission with the observed and
// configured queue lengths. It unwraps to domain.ErrQueueFull.
type CapacityError struct {
	Queued int
	Limit  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("queue full: %d of %d slots taken", e.Queued, e.Limit)
}

func (e *CapacityError) Unwrap() error { return domain.ErrQueueFull }

// Config holds the admission limits and timings the service enforces.
type Config struct {
	MaxQueueDepth int
	MaxConcurrent int
	WaitTimeout   time.Duration
}

// Service wires the store, the supervisor's queue and the artifact files
// behind the request-facing operations.
type Service struct {
	cfg      Config
	store    *jobstore.Store
	sup      *worker.Supervisor
	files    *storage.FileStore
	validate *validator.Validate
	logger   infra.Logger
}

func NewService(cfg Config, store *jobstore.Store, sup *worker.Supervisor, files *storage.FileStore, logger infra.Logger) *Service {
	if cfg.MaxQueueDepth < 1 {
		cfg.MaxQueueDepth = 1
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 5 * time.Minute
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		sup:      sup,
		files:    files,
		validate: validator.New(),
		logger:   logger,
	}
}

// Submit validates the request, applies admission control and enqueues a
// new job. On rejection no record is created.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Accepted, error) {
	if err := s.validate.Struct(req); err != nil {
		return Accepted{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if req.Image == "" && req.ImageURL == "" {
		return Accepted{}, fmt.Errorf("%w: image or image_url is required", domain.ErrInvalidInput)
	}

	input := domain.GenerateInput{ImageURL: req.ImageURL}
	if input.ImageURL == "" {
		data, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			return Accepted{}, fmt.Errorf("%w: image is not valid base64", domain.ErrInvalidInput)
		}
		if len(data) == 0 {
			return Accepted{}, fmt.Errorf("%w: image payload is empty", domain.ErrInvalidInput)
		}
		input.ImageData = data
	}

	if stats := s.store.Stats(); stats.Queued >= s.cfg.MaxQueueDepth {
		return Accepted{}, &CapacityError{Queued: stats.Queued, Limit: s.cfg.MaxQueueDepth}
	}

	job := domain.Job{
		ID:     uuid.NewString(),
		Input:  input,
		Params: paramsFrom(req),
		Status: domain.StatusQueued,
	}
	if err := s.store.Insert(job); err != nil {
		return Accepted{}, err
	}
	if err := s.sup.Enqueue(job.ID); err != nil {
		// The capacity window closed between check and publish; undo
		// the record so rejection leaves no trace.
		if _, rmErr := s.store.Remove(job.ID); rmErr != nil {
			s.logger.Error().Err(rmErr).Str("job_id", job.ID).Msg("jobs: rollback after enqueue failure")
		}
		stats := s.store.Stats()
		return Accepted{}, &CapacityError{Queued: stats.Queued, Limit: s.cfg.MaxQueueDepth}
	}

	pos, err := s.store.PositionOf(job.ID)
	if err != nil {
		pos = 0
	}
	s.logger.Info().Str("job_id", job.ID).Int("position", pos).Msg("jobs: accepted")
	return Accepted{JobID: job.ID, Position: pos}, nil
}

func paramsFrom(req SubmitRequest) domain.GenerateParams {
	params := domain.GenerateParams{
		Seed:           domain.DefaultSeed,
		OutputFormat:   domain.FormatGLB,
		WithTexture:    true,
		TextureSize:    domain.DefaultTextureSize,
		Simplify:       domain.DefaultSimplify,
		InferenceSteps: domain.DefaultInferenceSteps,
		NViews:         domain.DefaultNViews,
	}
	if req.Seed != nil {
		params.Seed = *req.Seed
	}
	if req.OutputFormat != "" {
		params.OutputFormat = domain.OutputFormat(req.OutputFormat)
	}
	if req.WithTexture != nil {
		params.WithTexture = *req.WithTexture
	}
	if !params.WithTexture {
		params.Simplify = 0
	}
	if req.TextureSize != nil {
		params.TextureSize = *req.TextureSize
	}
	if req.Simplify != nil {
		params.Simplify = *req.Simplify
	}
	if req.InferenceSteps != nil {
		params.InferenceSteps = *req.InferenceSteps
	}
	if req.NViews != nil {
		params.NViews = *req.NViews
	}
	return params
}

// Status returns the projection for one job. Repeated reads of a terminal
// job return identical views until eviction.
func (s *Service) Status(id string) (StatusView, error) {
	job, err := s.store.Get(id)
	if err != nil {
		return StatusView{}, err
	}
	view := StatusView{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}
	switch job.Status {
	case domain.StatusQueued, domain.StatusProcessing:
		pos, err := s.store.PositionOf(id)
		if err != nil {
			return StatusView{}, err
		}
		view.Position = pos
		if job.Status == domain.StatusQueued {
			view.Message = fmt.Sprintf("waiting at position %d", pos)
		} else {
			view.Message = "generation in progress"
		}
	case domain.StatusCompleted:
		view.DownloadPath = fmt.Sprintf("/v1/jobs/%s/download", job.ID)
		view.ProcessingSeconds = math.Round(job.ProcessingDuration().Seconds()*10) / 10
	case domain.StatusFailed:
		view.Error = job.Error
	}
	return view, nil
}

// Wait blocks until the job reaches a terminal state or the timeout
// elapses. A timeout only abandons the wait; the job keeps running and
// stays pollable.
func (s *Service) Wait(ctx context.Context, id string, timeout time.Duration) (StatusView, error) {
	if timeout <= 0 {
		timeout = s.cfg.WaitTimeout
	}
	done, err := s.store.Done(id)
	if err != nil {
		return StatusView{}, err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return s.Status(id)
	case <-timer.C:
		return StatusView{}, fmt.Errorf("job %s still running after %s: %w", id, timeout, domain.ErrWaitTimeout)
	case <-ctx.Done():
		return StatusView{}, ctx.Err()
	}
}

// DownloadArtifact returns the artifact bytes for a completed job.
func (s *Service) DownloadArtifact(ctx context.Context, id string) (Download, error) {
	job, err := s.store.Get(id)
	if err != nil {
		return Download{}, err
	}
	if job.Status != domain.StatusCompleted || job.Artifact == nil {
		return Download{}, fmt.Errorf("job %s is %s: %w", id, job.Status, domain.ErrNotReady)
	}
	data, err := s.files.Read(ctx, job.Artifact.StorageKey)
	if err != nil {
		return Download{}, fmt.Errorf("artifact for job %s: %w", id, err)
	}
	return Download{
		Data:        data,
		ContentType: job.Artifact.Format.ContentType(),
		Filename:    "model." + string(job.Artifact.Format),
	}, nil
}

// Stats is the monitoring projection; it reads counters and nothing else.
func (s *Service) Stats() QueueStats {
	st := s.store.Stats()
	return QueueStats{
		Queued:        st.Queued,
		Processing:    st.Processing,
		MaxQueueDepth: s.cfg.MaxQueueDepth,
		MaxConcurrent: s.cfg.MaxConcurrent,
	}
}

// WaitTimeout exposes the configured synchronous-wait limit.
func (s *Service) WaitTimeout() time.Duration {
	return s.cfg.WaitTimeout
}

// IsCapacity reports whether err is a capacity rejection.
func IsCapacity(err error) bool {
	return errors.Is(err, domain.ErrQueueFull)
}
