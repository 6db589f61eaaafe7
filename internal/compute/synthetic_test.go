package compute

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"testing"

	"mesh3d/internal/domain"
)

func TestSyntheticGLBContainer(t *testing.T) {
	s := NewSynthetic()
	res, err := s.Generate(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)), testParams())
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if res.Format != domain.FormatGLB {
		t.Fatalf("format = %s, want glb", res.Format)
	}
	if len(res.Data) < 20 {
		t.Fatalf("container too short: %d bytes", len(res.Data))
	}
	if !bytes.HasPrefix(res.Data, []byte("glTF")) {
		t.Fatalf("missing glTF magic: % x", res.Data[:4])
	}
	if v := binary.LittleEndian.Uint32(res.Data[4:8]); v != 2 {
		t.Fatalf("container version = %d, want 2", v)
	}
	if total := binary.LittleEndian.Uint32(res.Data[8:12]); int(total) != len(res.Data) {
		t.Fatalf("declared length %d, actual %d", total, len(res.Data))
	}
	if chunkType := binary.LittleEndian.Uint32(res.Data[16:20]); chunkType != 0x4E4F534A {
		t.Fatalf("first chunk type = %08x, want JSON", chunkType)
	}
}

func TestSyntheticIsDeterministicPerSeed(t *testing.T) {
	s := NewSynthetic()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))

	params := testParams()
	a, err := s.Generate(context.Background(), img, params)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	b, err := s.Generate(context.Background(), img, params)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !bytes.Equal(a.Data, b.Data) {
		t.Fatal("same seed produced different output")
	}

	params.Seed = 7
	c, err := s.Generate(context.Background(), img, params)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if bytes.Equal(a.Data, c.Data) {
		t.Fatal("different seeds produced identical output")
	}
}

func TestSyntheticPLY(t *testing.T) {
	s := NewSynthetic()
	params := testParams()
	params.OutputFormat = domain.FormatPLY

	res, err := s.Generate(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)), params)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if res.Format != domain.FormatPLY {
		t.Fatalf("format = %s, want ply", res.Format)
	}
	if !bytes.HasPrefix(res.Data, []byte("ply\nformat ascii 1.0\n")) {
		t.Fatalf("unexpected PLY header: %q", res.Data[:24])
	}
	if res.Vertices != 4 {
		t.Fatalf("vertices = %d, want 4", res.Vertices)
	}
}

func TestSyntheticHonorsCancelledContext(t *testing.T) {
	s := NewSynthetic()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Generate(ctx, image.NewRGBA(image.Rect(0, 0, 4, 4)), testParams()); err == nil {
		t.Fatal("Generate ignored cancelled context")
	}
}
