package compute

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"math/rand"

	"mesh3d/internal/domain"
)

// Synthetic is a deterministic stand-in engine used when no inference
// backend is configured. It emits a minimal but well-formed scene file so
// the rest of the service stays fully operational in local and CI
// environments.
type Synthetic struct{}

func NewSynthetic() *Synthetic {
	return &Synthetic{}
}

func (s *Synthetic) Generate(ctx context.Context, img *image.RGBA, params domain.GenerateParams) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if img == nil {
		return Result{}, fmt.Errorf("compute: no image provided")
	}
	rng := rand.New(rand.NewSource(int64(params.Seed)))
	if params.OutputFormat == domain.FormatPLY {
		data := syntheticPLY(rng)
		return Result{Data: data, Format: domain.FormatPLY, Vertices: 4, Faces: 0}, nil
	}
	data := syntheticGLB(rng)
	return Result{Data: data, Format: domain.FormatGLB, Vertices: 8, Faces: 12}, nil
}

func (s *Synthetic) Loaded() bool { return true }

func (s *Synthetic) Release() {}

// syntheticGLB builds an empty-but-valid binary glTF container: the
// 12-byte header followed by a single space-padded JSON chunk.
func syntheticGLB(rng *rand.Rand) []byte {
	doc := fmt.Sprintf(`{"asset":{"version":"2.0","generator":"mesh3d-synthetic-%08x"}}`, rng.Uint32())
	jsonChunk := []byte(doc)
	for len(jsonChunk)%4 != 0 {
		jsonChunk = append(jsonChunk, ' ')
	}

	var buf bytes.Buffer
	header := make([]byte, 12)
	binary.LittleEndian.PutUint32(header[0:], 0x46546C67) // "glTF"
	binary.LittleEndian.PutUint32(header[4:], 2)
	binary.LittleEndian.PutUint32(header[8:], uint32(12+8+len(jsonChunk)))
	buf.Write(header)

	chunkHeader := make([]byte, 8)
	binary.LittleEndian.PutUint32(chunkHeader[0:], uint32(len(jsonChunk)))
	binary.LittleEndian.PutUint32(chunkHeader[4:], 0x4E4F534A) // "JSON"
	buf.Write(chunkHeader)
	buf.Write(jsonChunk)
	return buf.Bytes()
}

func syntheticPLY(rng *rand.Rand) []byte {
	var buf bytes.Buffer
	buf.WriteString("ply\nformat ascii 1.0\nelement vertex 4\n")
	buf.WriteString("property float x\nproperty float y\nproperty float z\nend_header\n")
	for i := 0; i < 4; i++ {
		fmt.Fprintf(&buf, "%.4f %.4f %.4f\n", rng.Float64(), rng.Float64(), rng.Float64())
	}
	return buf.Bytes()
}
