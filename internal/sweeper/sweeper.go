// Package sweeper bounds growth of finished jobs: records past the
// retention window are evicted and their artifacts deleted.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"mesh3d/internal/infra"
	"mesh3d/internal/jobstore"
	"mesh3d/internal/storage"
)

// Sweeper periodically evicts terminal records older than the retention
// window. Queued and processing jobs are never touched.
type Sweeper struct {
	store  *jobstore.Store
	files  *storage.FileStore
	window time.Duration
	logger infra.Logger

	cron *cron.Cron
	now  func() time.Time
}

func New(store *jobstore.Store, files *storage.FileStore, window time.Duration, logger infra.Logger) *Sweeper {
	if window <= 0 {
		window = time.Hour
	}
	return &Sweeper{
		store:  store,
		files:  files,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// Start schedules the sweep at the given interval.
func (s *Sweeper) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.Sweep); err != nil {
		return fmt.Errorf("sweeper: schedule: %w", err)
	}
	s.cron.Start()
	s.logger.Info().Dur("interval", interval).Dur("retention", s.window).Msg("sweeper: started")
	return nil
}

// Stop halts the schedule; an in-flight sweep finishes first.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep evicts every terminal record whose completion is older than the
// retention window. Artifact deletion is best effort: a missing file is
// fine, anything else is logged and the sweep moves on.
func (s *Sweeper) Sweep() {
	cutoff := s.now().Add(-s.window)
	for _, job := range s.store.ExpiredBefore(cutoff) {
		if _, err := s.store.Remove(job.ID); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("sweeper: evict record")
			continue
		}
		if job.Artifact != nil {
			if err := s.files.Remove(context.Background(), job.Artifact.StorageKey); err != nil {
				s.logger.Warn().Err(err).Str("job_id", job.ID).Str("key", job.Artifact.StorageKey).Msg("sweeper: delete artifact")
			}
		}
		s.logger.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("sweeper: evicted job")
	}
}
