package cache

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"templateguard/internal/logging"
)

// Janitor removes orphaned persistent entries in the background. An entry is
// orphaned once its source text changes: the new hash produces a new entry
// name and nothing ever looks the old one up again. The janitor cannot know
// which hash is current, so it uses age — any entry untouched for longer than
// the retention window is eligible.
type Janitor struct {
	disk      *DiskCache
	retention time.Duration
	schedule  string
	logger    logging.Logger
	cron      *cron.Cron
}

// DefaultJanitorSchedule runs cleanup hourly.
const DefaultJanitorSchedule = "@hourly"

// NewJanitor creates a janitor over the disk tier. A non-positive retention
// disables it.
func NewJanitor(disk *DiskCache, retention time.Duration, schedule string, logger logging.Logger) *Janitor {
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}

	return &Janitor{
		disk:      disk,
		retention: retention,
		schedule:  schedule,
		logger:    logger.WithComponent("cache-janitor"),
	}
}

// Start begins scheduled cleanup. It is a no-op when the janitor is disabled.
func (j *Janitor) Start() error {
	if j.disk == nil || j.retention <= 0 {
		return nil
	}

	j.cron = cron.New()
	if _, err := j.cron.AddFunc(j.schedule, j.sweep); err != nil {
		j.cron = nil

		return err
	}
	j.cron.Start()

	return nil
}

// Stop halts scheduled cleanup, waiting for a running sweep to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}

	ctx := j.cron.Stop()
	<-ctx.Done()
	j.cron = nil
}

// Sweep removes orphaned entries immediately and returns how many were
// removed. Exposed for tests and for hosts that prefer their own scheduling.
func (j *Janitor) Sweep() int {
	if j.disk == nil || j.retention <= 0 {
		return 0
	}

	cutoff := time.Now().Add(-j.retention)

	removed := 0
	for _, name := range j.disk.list() {
		path := filepath.Join(j.disk.dir, name)

		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		if os.Remove(path) == nil {
			removed++
		}
	}

	return removed
}

func (j *Janitor) sweep() {
	removed := j.Sweep()
	if removed > 0 {
		j.logger.Info(context.Background(), "removed orphaned cache entries", "count", removed)
	}
}
