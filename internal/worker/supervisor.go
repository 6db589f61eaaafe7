// Package worker owns the single execution slot in front of the GPU. One
// executor goroutine drains the bounded queue in strict FIFO order; a
// watchdog restarts it if it ever dies and fails whatever was mid-flight.
package worker

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"mesh3d/internal/compute"
	"mesh3d/internal/domain"
	"mesh3d/internal/infra"
	"mesh3d/internal/jobstore"
	"mesh3d/internal/storage"
)

// Preparer resolves a job's input into the RGBA frame the engine consumes.
type Preparer interface {
	Prepare(ctx context.Context, input domain.GenerateInput) (*image.RGBA, error)
}

// Config sizes the queue and the watchdog.
type Config struct {
	QueueDepth       int
	WatchdogInterval time.Duration
}

// Supervisor runs queued jobs one at a time and keeps itself alive.
type Supervisor struct {
	store  *jobstore.Store
	engine compute.Engine
	prep   Preparer
	files  *storage.FileStore
	logger infra.Logger

	queue    chan string
	interval time.Duration

	mu       sync.Mutex
	alive    bool
	current  string
	lastBeat time.Time
	restarts int
}

func New(cfg Config, store *jobstore.Store, engine compute.Engine, prep Preparer, files *storage.FileStore, logger infra.Logger) *Supervisor {
	depth := cfg.QueueDepth
	if depth < 1 {
		depth = 1
	}
	interval := cfg.WatchdogInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Supervisor{
		store:    store,
		engine:   engine,
		prep:     prep,
		files:    files,
		logger:   logger,
		queue:    make(chan string, depth),
		interval: interval,
	}
}

// Start launches the executor and its watchdog. Both stop when ctx is
// cancelled.
func (s *Supervisor) Start(ctx context.Context) {
	s.startExecutor(ctx)
	go s.runWatchdog(ctx)
}

// Enqueue publishes a job id to the bounded queue without blocking. A full
// queue is reported as a capacity error; admission pre-checks depth, so
// hitting this means the window between check and publish closed.
func (s *Supervisor) Enqueue(id string) error {
	select {
	case s.queue <- id:
		return nil
	default:
		return fmt.Errorf("worker: enqueue %s: %w", id, domain.ErrQueueFull)
	}
}

// Alive reports whether the executor loop is currently running. Reading it
// has no side effects; only the watchdog restarts a dead executor.
func (s *Supervisor) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// QueueCap returns the configured queue capacity.
func (s *Supervisor) QueueCap() int {
	return cap(s.queue)
}

func (s *Supervisor) startExecutor(ctx context.Context) {
	s.mu.Lock()
	if s.alive {
		s.mu.Unlock()
		return
	}
	s.alive = true
	s.lastBeat = time.Now()
	s.mu.Unlock()
	go s.runExecutor(ctx)
}

// runExecutor is the single-flight loop. An error from a job stays inside
// that job; a panic escapes runJob, trips the deferred crash handler and
// leaves restart to the watchdog.
func (s *Supervisor) runExecutor(ctx context.Context) {
	defer func() {
		r := recover()
		s.mu.Lock()
		s.alive = false
		current := s.current
		s.current = ""
		s.mu.Unlock()
		if r == nil {
			return
		}
		s.logger.Error().Interface("panic", r).Str("job_id", current).Msg("worker: executor crashed")
		if current != "" {
			if _, err := s.store.Fail(current, domain.WorkerCrashMessage); err != nil {
				s.logger.Error().Err(err).Str("job_id", current).Msg("worker: failed to mark crashed job")
			}
		}
		s.releaseQuietly()
	}()

	s.logger.Info().Msg("worker: executor started")
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			s.beat()
			s.runJob(ctx, id)
			s.setCurrent("")
			// Transient accelerator allocations must be gone before
			// the next job, or it fails with resource exhaustion.
			s.engine.Release()
		}
	}
}

func (s *Supervisor) runJob(ctx context.Context, id string) {
	job, err := s.store.MarkProcessing(id)
	if err != nil {
		// Record evicted or already moved on; nothing to run.
		s.logger.Warn().Err(err).Str("job_id", id).Msg("worker: skipping job")
		return
	}

	s.setCurrent(id)

	s.logger.Info().Str("job_id", id).Str("format", string(job.Params.OutputFormat)).Int("seed", job.Params.Seed).Msg("worker: picked job")

	img, err := s.prep.Prepare(ctx, job.Input)
	if err != nil {
		s.failJob(id, fmt.Sprintf("prepare image: %v", err))
		return
	}

	result, err := s.engine.Generate(ctx, img, job.Params)
	if err != nil {
		s.failJob(id, err.Error())
		return
	}

	key := fmt.Sprintf("models/%s/model.%s", id, result.Format)
	savedKey, err := s.files.Write(ctx, key, result.Data)
	if err != nil {
		s.failJob(id, fmt.Sprintf("persist artifact: %v", err))
		return
	}

	done, err := s.store.Complete(id, domain.Artifact{
		StorageKey: savedKey,
		Format:     result.Format,
		SizeBytes:  int64(len(result.Data)),
		Vertices:   result.Vertices,
		Faces:      result.Faces,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", id).Msg("worker: complete transition failed")
		return
	}
	s.logger.Info().
		Str("job_id", id).
		Str("key", savedKey).
		Dur("took", done.ProcessingDuration()).
		Int("bytes", len(result.Data)).
		Msg("worker: job completed")
}

func (s *Supervisor) failJob(id, cause string) {
	if _, err := s.store.Fail(id, cause); err != nil {
		s.logger.Error().Err(err).Str("job_id", id).Msg("worker: fail transition failed")
		return
	}
	s.logger.Error().Str("job_id", id).Str("cause", cause).Msg("worker: job failed")
}

// runWatchdog periodically checks executor liveness and replaces a dead
// loop. Jobs left in processing by a crash are failed with a
// distinguishing cause so they are never stuck.
func (s *Supervisor) runWatchdog(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Alive() {
				continue
			}
			for _, id := range s.store.FailAllProcessing(domain.WorkerCrashMessage) {
				s.logger.Error().Str("job_id", id).Msg("worker: watchdog failed stuck job")
			}
			s.mu.Lock()
			s.restarts++
			restarts := s.restarts
			s.mu.Unlock()
			s.logger.Warn().Int("restarts", restarts).Msg("worker: executor dead, starting replacement")
			s.startExecutor(ctx)
		}
	}
}

func (s *Supervisor) setCurrent(id string) {
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
}

func (s *Supervisor) beat() {
	s.mu.Lock()
	s.lastBeat = time.Now()
	s.mu.Unlock()
}

// releaseQuietly frees accelerator state after a crash without letting a
// broken engine take the crash handler down with it.
func (s *Supervisor) releaseQuietly() {
	defer func() { _ = recover() }()
	s.engine.Release()
}
