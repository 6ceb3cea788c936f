// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner deletes rows older than the given cut-off and reports how many
// were removed.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Janitor runs the cache retention sweep on a cron schedule. Cached rows
// age out of reads on their own; the janitor only reclaims the storage.
type Janitor struct {
	store     Pruner
	schedule  string
	retention time.Duration
	cron      *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NewJanitor creates a Janitor that prunes rows older than retention each
// time schedule fires.
func NewJanitor(store Pruner, schedule string, retention time.Duration) *Janitor {
	return &Janitor{
		store:     store,
		schedule:  schedule,
		retention: retention,
		cron:      cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the sweep and starts the cron ticker.
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		j.runOnce(context.Background())
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	slog.Info("cache janitor started", "schedule", j.schedule, "retention", j.retention.String())
	return nil
}

// Stop stops the cron ticker.
func (j *Janitor) Stop() {
	j.cron.Stop()
}

// runOnce performs a single sweep.
func (j *Janitor) runOnce(ctx context.Context) {
	cutoff := time.Now().Add(-j.retention)
	removed, err := j.store.Prune(ctx, cutoff)
	if err != nil {
		slog.Error("cache prune failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("cache pruned", "removed", removed, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
}
