package services

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Anosmish/pdf2word/internal/domain"
	"github.com/Anosmish/pdf2word/internal/storage"
)

const errorBackoff = time.Minute

// Janitor drives every time-based removal: the periodic sweep of stale
// artifacts, the one-shot deferred deletion armed by a first download, and
// the manual sweep behind POST /cleanup. All three pop entries through the
// registry and unlink the returned paths, so a file targeted by two
// triggers is deleted exactly once; the loser of the race sees an empty
// registry and does nothing.
type Janitor struct {
	registry *storage.Registry
	files    *storage.FileManager
	logger   *log.Logger

	sweepInterval  time.Duration
	sweepMaxAge    time.Duration
	manualSweepAge time.Duration
	downloadGrace  time.Duration
}

type JanitorOptions struct {
	SweepInterval  time.Duration
	SweepMaxAge    time.Duration
	ManualSweepAge time.Duration
	DownloadGrace  time.Duration
}

func NewJanitor(registry *storage.Registry, files *storage.FileManager, logger *log.Logger, opts JanitorOptions) *Janitor {
	return &Janitor{
		registry:       registry,
		files:          files,
		logger:         logger,
		sweepInterval:  opts.SweepInterval,
		sweepMaxAge:    opts.SweepMaxAge,
		manualSweepAge: opts.ManualSweepAge,
		downloadGrace:  opts.DownloadGrace,
	}
}

// Run executes the periodic sweep until ctx is cancelled. A panic in one
// iteration is logged and followed by a backoff pause so a persistent
// failure cannot turn into a hot loop.
func (j *Janitor) Run(ctx context.Context) {
	j.logger.Info("janitor started", "interval", j.sweepInterval, "maxAge", j.sweepMaxAge)

	ticker := time.NewTicker(j.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("janitor stopped")
			return
		case <-ticker.C:
			if ok := j.runSweep(); !ok {
				select {
				case <-ctx.Done():
					j.logger.Info("janitor stopped")
					return
				case <-time.After(errorBackoff):
				}
			}
		}
	}
}

func (j *Janitor) runSweep() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("sweep iteration failed", "panic", r)
			ok = false
		}
	}()

	swept := j.registry.Sweep(j.sweepMaxAge, false)
	if len(swept) == 0 {
		return true
	}

	removed := j.removeFiles(swept)
	j.logger.Info("swept stale artifacts", "artifacts", len(swept), "filesRemoved", removed)
	return true
}

// ScheduleRemoval arms the one-shot post-download deletion. The grace delay
// lets the in-flight download finish; by the time the timer fires the entry
// may already be gone, which is a no-op.
func (j *Janitor) ScheduleRemoval(id string) {
	time.AfterFunc(j.downloadGrace, func() {
		a, err := j.registry.Remove(id)
		if err != nil {
			return
		}
		j.removeFiles([]domain.Artifact{a})
		j.logger.Info("removed downloaded artifact", "id", id)
	})
}

// SweepNow runs the manual sweep: everything older than the manual age
// threshold plus everything already downloaded. Returns the number of files
// actually unlinked.
func (j *Janitor) SweepNow() int {
	swept := j.registry.Sweep(j.manualSweepAge, true)
	removed := j.removeFiles(swept)
	if len(swept) > 0 {
		j.logger.Info("manual sweep", "artifacts", len(swept), "filesRemoved", removed)
	}
	return removed
}

// removeFiles unlinks both paths of each artifact outside any registry
// lock. Filesystem errors are logged and swallowed: cleanup must never fail
// an unrelated request.
func (j *Janitor) removeFiles(artifacts []domain.Artifact) int {
	removed := 0
	for _, a := range artifacts {
		for _, path := range []string{a.SourcePath, a.DerivedPath} {
			if path == "" || !j.files.Exists(path) {
				continue
			}
			if err := j.files.Remove(path); err != nil {
				j.logger.Error("cleanup failed", "id", a.ID, "path", path, "error", err)
				continue
			}
			removed++
		}
	}
	return removed
}
