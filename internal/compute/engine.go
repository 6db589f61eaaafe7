// Package compute abstracts the image-to-3D inference pipeline. The
// pipeline itself is an external collaborator; this package only knows how
// to hand it a prepared image and collect the produced scene bytes.
package compute

import (
	"context"
	"image"

	"mesh3d/internal/domain"
)

// Result is the raw output of one generation run.
type Result struct {
	Data     []byte
	Format   domain.OutputFormat
	Vertices int
	Faces    int
}

// Engine runs the generation pipeline. Generate may take minutes and is
// invoked by exactly one caller at a time; Release drops any transient
// accelerator allocations left behind by the previous run and must be
// called between jobs, success or failure.
type Engine interface {
	Generate(ctx context.Context, img *image.RGBA, params domain.GenerateParams) (Result, error)
	Loaded() bool
	Release()
}
