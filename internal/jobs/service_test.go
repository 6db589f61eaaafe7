package jobs

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mesh3d/internal/compute"
	"mesh3d/internal/domain"
	"mesh3d/internal/jobstore"
	"mesh3d/internal/storage"
	"mesh3d/internal/worker"
)

type stubPrep struct{}

func (stubPrep) Prepare(ctx context.Context, input domain.GenerateInput) (*image.RGBA, error) {
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

// gateEngine blocks every generation until the test opens the gate, so
// queue positions can be observed deterministically.
type gateEngine struct {
	gate chan struct{}
}

func (e *gateEngine) Generate(ctx context.Context, img *image.RGBA, params domain.GenerateParams) (compute.Result, error) {
	select {
	case <-e.gate:
	case <-ctx.Done():
		return compute.Result{}, ctx.Err()
	}
	return compute.Result{Data: []byte("glTF-data"), Format: domain.FormatGLB, Vertices: 8, Faces: 12}, nil
}

func (e *gateEngine) Loaded() bool { return true }
func (e *gateEngine) Release()     {}

func testPNG(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("png.Encode returned error: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

type testEnv struct {
	svc   *Service
	store *jobstore.Store
	sup   *worker.Supervisor
}

func newTestService(t *testing.T, engine compute.Engine, maxDepth int) testEnv {
	t.Helper()
	store := jobstore.New()
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	sup := worker.New(worker.Config{QueueDepth: maxDepth}, store, engine, stubPrep{}, files, zerolog.Nop())
	svc := NewService(Config{MaxQueueDepth: maxDepth, MaxConcurrent: 1, WaitTimeout: time.Second}, store, sup, files, zerolog.Nop())
	return testEnv{svc: svc, store: store, sup: sup}
}

func TestSubmitRejectsMissingImage(t *testing.T) {
	env := newTestService(t, &gateEngine{gate: make(chan struct{})}, 4)
	_, err := env.svc.Submit(context.Background(), SubmitRequest{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("Submit error = %v, want ErrInvalidInput", err)
	}
	if env.store.Len() != 0 {
		t.Fatalf("store has %d records after rejection, want 0", env.store.Len())
	}
}

func TestSubmitRejectsMalformedPayloads(t *testing.T) {
	env := newTestService(t, &gateEngine{gate: make(chan struct{})}, 4)
	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{name: "invalid base64", req: SubmitRequest{Image: "!!not-base64!!"}},
		{name: "invalid url", req: SubmitRequest{ImageURL: "not a url"}},
		{name: "unknown format", req: SubmitRequest{Image: testPNG(t), OutputFormat: "obj"}},
		{name: "negative seed", req: SubmitRequest{Image: testPNG(t), Seed: intPtr(-1)}},
		{name: "oversized texture", req: SubmitRequest{Image: testPNG(t), TextureSize: intPtr(8192)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.svc.Submit(context.Background(), tc.req); !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("Submit error = %v, want ErrInvalidInput", err)
			}
		})
	}
	if env.store.Len() != 0 {
		t.Fatalf("store has %d records after rejections, want 0", env.store.Len())
	}
}

func TestSubmitCapacityRejection(t *testing.T) {
	env := newTestService(t, &gateEngine{gate: make(chan struct{})}, 2)
	img := testPNG(t)

	for i := 0; i < 2; i++ {
		if _, err := env.svc.Submit(context.Background(), SubmitRequest{Image: img}); err != nil {
			t.Fatalf("Submit %d returned error: %v", i, err)
		}
	}
	before := env.store.Len()

	_, err := env.svc.Submit(context.Background(), SubmitRequest{Image: img})
	var capErr *CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("Submit error = %v, want CapacityError", err)
	}
	if capErr.Queued != 2 || capErr.Limit != 2 {
		t.Fatalf("CapacityError = %+v, want 2/2", capErr)
	}
	if !IsCapacity(err) {
		t.Fatal("IsCapacity = false for capacity error")
	}
	if env.store.Len() != before {
		t.Fatalf("store size changed on rejection: %d -> %d", before, env.store.Len())
	}
}

func TestSubmitAppliesDefaults(t *testing.T) {
	env := newTestService(t, &gateEngine{gate: make(chan struct{})}, 4)
	accepted, err := env.svc.Submit(context.Background(), SubmitRequest{Image: testPNG(t)})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	job, err := env.store.Get(accepted.JobID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	p := job.Params
	if p.Seed != domain.DefaultSeed || p.OutputFormat != domain.FormatGLB || !p.WithTexture {
		t.Fatalf("Params = %+v, want defaults", p)
	}
	if p.TextureSize != domain.DefaultTextureSize || p.Simplify != domain.DefaultSimplify {
		t.Fatalf("Params = %+v, want defaults", p)
	}
	if p.InferenceSteps != domain.DefaultInferenceSteps || p.NViews != domain.DefaultNViews {
		t.Fatalf("Params = %+v, want defaults", p)
	}
}

func TestSubmitUntexturedZeroesSimplify(t *testing.T) {
	env := newTestService(t, &gateEngine{gate: make(chan struct{})}, 4)
	withTexture := false
	accepted, err := env.svc.Submit(context.Background(), SubmitRequest{Image: testPNG(t), WithTexture: &withTexture})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	job, err := env.store.Get(accepted.JobID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if job.Params.Simplify != 0 {
		t.Fatalf("Simplify = %v, want 0 without texture", job.Params.Simplify)
	}
}

func TestSubmitPrefersURLOverInlineImage(t *testing.T) {
	env := newTestService(t, &gateEngine{gate: make(chan struct{})}, 4)
	accepted, err := env.svc.Submit(context.Background(), SubmitRequest{
		Image:    testPNG(t),
		ImageURL: "https://example.com/cat.png",
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	job, err := env.store.Get(accepted.JobID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if job.Input.ImageURL != "https://example.com/cat.png" || len(job.Input.ImageData) != 0 {
		t.Fatalf("Input = %+v, want reference only", job.Input)
	}
}

func TestLifecycleScenario(t *testing.T) {
	engine := &gateEngine{gate: make(chan struct{})}
	env := newTestService(t, engine, 4)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	img := testPNG(t)

	a, err := env.svc.Submit(ctx, SubmitRequest{Image: img, Seed: intPtr(1)})
	if err != nil {
		t.Fatalf("Submit A returned error: %v", err)
	}
	if a.Position != 0 {
		t.Fatalf("A position = %d, want 0", a.Position)
	}

	b, err := env.svc.Submit(ctx, SubmitRequest{Image: img, Seed: intPtr(2)})
	if err != nil {
		t.Fatalf("Submit B returned error: %v", err)
	}
	if b.Position != 1 {
		t.Fatalf("B position = %d, want 1", b.Position)
	}

	// A is not ready before the worker has even started.
	if _, err := env.svc.DownloadArtifact(ctx, a.JobID); !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("download before completion error = %v, want ErrNotReady", err)
	}

	env.sup.Start(ctx)
	close(engine.gate)

	viewA, err := env.svc.Wait(ctx, a.JobID, 3*time.Second)
	if err != nil {
		t.Fatalf("Wait A returned error: %v", err)
	}
	if viewA.Status != domain.StatusCompleted {
		t.Fatalf("A status = %s, want completed", viewA.Status)
	}
	if viewA.DownloadPath == "" {
		t.Fatal("A completed without a download path")
	}

	viewB, err := env.svc.Wait(ctx, b.JobID, 3*time.Second)
	if err != nil {
		t.Fatalf("Wait B returned error: %v", err)
	}
	if viewB.Status != domain.StatusCompleted {
		t.Fatalf("B status = %s, want completed", viewB.Status)
	}
	if pos := viewB.Position; pos != 0 {
		t.Fatalf("terminal B position = %d, want 0", pos)
	}

	dl, err := env.svc.DownloadArtifact(ctx, a.JobID)
	if err != nil {
		t.Fatalf("DownloadArtifact returned error: %v", err)
	}
	if dl.ContentType != "model/gltf-binary" || dl.Filename != "model.glb" {
		t.Fatalf("download metadata = %q %q", dl.ContentType, dl.Filename)
	}
	if !strings.Contains(string(dl.Data), "glTF") {
		t.Fatalf("download data = %q, want scene bytes", dl.Data)
	}

	// Status reads of a terminal job are idempotent.
	again, err := env.svc.Status(a.JobID)
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if again != viewA {
		t.Fatalf("repeated status differs: %+v vs %+v", again, viewA)
	}

	// Download repeats identically as well.
	dl2, err := env.svc.DownloadArtifact(ctx, a.JobID)
	if err != nil {
		t.Fatalf("second DownloadArtifact returned error: %v", err)
	}
	if !bytes.Equal(dl.Data, dl2.Data) {
		t.Fatal("repeated downloads returned different bytes")
	}
}

func TestWaitTimeoutLeavesJobRunning(t *testing.T) {
	engine := &gateEngine{gate: make(chan struct{})}
	env := newTestService(t, engine, 4)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	env.sup.Start(ctx)

	accepted, err := env.svc.Submit(ctx, SubmitRequest{Image: testPNG(t)})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	if _, err := env.svc.Wait(ctx, accepted.JobID, 50*time.Millisecond); !errors.Is(err, domain.ErrWaitTimeout) {
		t.Fatalf("Wait error = %v, want ErrWaitTimeout", err)
	}

	// The job is untouched by the timeout and finishes once the engine
	// lets go.
	close(engine.gate)
	view, err := env.svc.Wait(ctx, accepted.JobID, 3*time.Second)
	if err != nil {
		t.Fatalf("second Wait returned error: %v", err)
	}
	if view.Status != domain.StatusCompleted {
		t.Fatalf("status after timeout = %s, want completed", view.Status)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	env := newTestService(t, &gateEngine{gate: make(chan struct{})}, 4)
	if _, err := env.svc.Status("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Status error = %v, want ErrNotFound", err)
	}
	if _, err := env.svc.Wait(context.Background(), "nope", time.Second); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Wait error = %v, want ErrNotFound", err)
	}
	if _, err := env.svc.DownloadArtifact(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("DownloadArtifact error = %v, want ErrNotFound", err)
	}
}

func TestStatsProjection(t *testing.T) {
	env := newTestService(t, &gateEngine{gate: make(chan struct{})}, 3)
	img := testPNG(t)
	for i := 0; i < 2; i++ {
		if _, err := env.svc.Submit(context.Background(), SubmitRequest{Image: img}); err != nil {
			t.Fatalf("Submit returned error: %v", err)
		}
	}
	st := env.svc.Stats()
	if st.Queued != 2 || st.Processing != 0 {
		t.Fatalf("Stats = %+v, want 2 queued / 0 processing", st)
	}
	if st.MaxQueueDepth != 3 || st.MaxConcurrent != 1 {
		t.Fatalf("Stats limits = %+v", st)
	}
}

func intPtr(v int) *int { return &v }
