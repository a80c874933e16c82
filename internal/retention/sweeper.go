// Package retention reclaims job resources after a fixed window. The
// countdown starts at submission time, independent of job outcome, so
// every job gets the same effective lifetime.
package retention

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"manimd/internal/pkg/logger"
	"manimd/internal/ports"
	"manimd/internal/store"
)

// Sweeper arms one-shot deferred deletions of job directories, mirrored
// artifacts and store records.
type Sweeper struct {
	store   *store.Store
	jobsDir string
	mirror  ports.StorageProvider // nil when mirroring is disabled
	delay   time.Duration
	log     *logger.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func NewSweeper(s *store.Store, jobsDir string, mirror ports.StorageProvider, delay time.Duration, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Sweeper{
		store:   s,
		jobsDir: jobsDir,
		mirror:  mirror,
		delay:   delay,
		log:     log.WithComponent("retention"),
		timers:  make(map[string]*time.Timer),
	}
}

// Schedule arms the one-shot deletion for the job, a fixed delay from
// now. Re-scheduling an already armed job is a no-op.
func (s *Sweeper) Schedule(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if _, armed := s.timers[jobID]; armed {
		return
	}
	s.timers[jobID] = time.AfterFunc(s.delay, func() {
		s.Sweep(jobID)
	})
	s.log.WithJobID(jobID).Debug("retention armed", "delay", s.delay.String())
}

// Sweep deletes the job's on-disk directory, its mirrored artifact and
// the store record. It is idempotent: sweeping an already swept or never
// known job is a no-op, and I/O faults are logged, never raised.
func (s *Sweeper) Sweep(jobID string) {
	s.mu.Lock()
	if t, ok := s.timers[jobID]; ok {
		t.Stop()
		delete(s.timers, jobID)
	}
	s.mu.Unlock()

	log := s.log.WithJobID(jobID)

	job, err := s.store.Get(jobID)
	if err == nil && job.RemoteKey != "" && s.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if derr := s.mirror.DeleteObject(ctx, job.RemoteKey); derr != nil {
			log.Warn("mirror delete failed", "key", job.RemoteKey, "error", derr.Error())
		}
		cancel()
	}

	if err := RemoveJobDir(s.jobsDir, jobID); err != nil {
		log.Warn("job dir removal failed", "error", err.Error())
	}

	s.store.Delete(jobID)
	log.Info("job swept")
}

// Close stops every armed timer. Pending sweeps simply never fire; the
// process is going away along with all in-memory state anyway.
func (s *Sweeper) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// Armed returns how many sweeps are currently scheduled.
func (s *Sweeper) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// RemoveJobDir recursively removes a job's working directory. Absent or
// partially removed directories are fine.
func RemoveJobDir(jobsDir, jobID string) error {
	if jobID == "" {
		return nil
	}
	return os.RemoveAll(filepath.Join(jobsDir, jobID))
}

// SweepExpired removes every job directory under jobsDir older than
// maxAge, returning the number of directories removed. Used by the
// standalone cleanup command; the running service relies on per-job
// timers instead.
func SweepExpired(jobsDir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(jobsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := RemoveJobDir(jobsDir, e.Name()); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
