package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// OutputFormat enumerates supported artifact formats.
type OutputFormat string

const (
	FormatGLB OutputFormat = "glb"
	FormatPLY OutputFormat = "ply"
)

// ContentType returns the MIME type served for the format.
func (f OutputFormat) ContentType() string {
	if f == FormatGLB {
		return "model/gltf-binary"
	}
	return "application/octet-stream"
}

// GenerateInput is the immutable snapshot of the caller's image payload.
// Exactly one of ImageData or ImageURL is set; when the caller supplies
// both, the reference wins and ImageData stays empty.
type GenerateInput struct {
	ImageData []byte
	ImageURL  string
}

// GenerateParams carries the generation knobs with defaults already applied.
type GenerateParams struct {
	Seed           int
	OutputFormat   OutputFormat
	WithTexture    bool
	TextureSize    int
	Simplify       float64
	InferenceSteps int
	NViews         int
}

// Parameter defaults mirror the inference pipeline's own defaults.
const (
	DefaultSeed           = 42
	DefaultTextureSize    = 2048
	DefaultSimplify       = 0.3
	DefaultInferenceSteps = 50
	DefaultNViews         = 200
)

// Artifact references the stored output of a completed job. The record owns
// the backing file until the sweeper evicts it.
type Artifact struct {
	StorageKey string
	Format     OutputFormat
	SizeBytes  int64
	Vertices   int
	Faces      int
}

// Job tracks one generation request end to end.
type Job struct {
	ID          string
	Input       GenerateInput
	Params      GenerateParams
	Status      JobStatus
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Artifact    *Artifact
	Error       string
}

// ProcessingDuration returns the wall time spent in processing, or zero if
// the job has not finished.
func (j *Job) ProcessingDuration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}
