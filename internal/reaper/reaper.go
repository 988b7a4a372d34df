package reaper

import (
	"context"
	"log/slog"
	"time"
)

// Reaper periodically purges expired sessions and stale rate-limit windows.
// When RemoveStopped is set it also removes managed containers that are no
// longer running.
type Reaper struct {
	store         ReaperStore
	docker        ReaperDocker
	expireMinutes int
	interval      time.Duration
	removeStopped bool
	logger        *slog.Logger
}

func New(st ReaperStore, dc ReaperDocker, expireMinutes int, interval time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		store:         st,
		docker:        dc,
		expireMinutes: expireMinutes,
		interval:      interval,
		logger:        logger,
	}
}

func (r *Reaper) SetRemoveStopped(v bool) {
	r.removeStopped = v
}

func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("reaper started", "interval", r.interval)

	r.reconcile(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass. Failures are logged and do not stop the
// remaining steps.
func (r *Reaper) Sweep(ctx context.Context) {
	sessions, err := r.store.DeleteSessionsOlderThan(r.expireMinutes)
	if err != nil {
		r.logger.Error("reaper: delete expired sessions", "error", err)
	} else if sessions > 0 {
		r.logger.Info("reaper: purged sessions", "count", sessions)
	}

	windows, err := r.store.CleanupRateLimits()
	if err != nil {
		r.logger.Error("reaper: cleanup rate limits", "error", err)
	} else if windows > 0 {
		r.logger.Info("reaper: purged rate windows", "count", windows)
	}

	if !r.removeStopped {
		return
	}
	removed, err := r.docker.Cleanup(ctx)
	if err != nil {
		r.logger.Error("reaper: remove stopped containers", "error", err)
		return
	}
	if removed > 0 {
		r.logger.Info("reaper: removed stopped containers", "count", removed)
	}
}

// reconcile reports the managed containers that survived the last run.
func (r *Reaper) reconcile(ctx context.Context) {
	r.logger.Info("reconciliation starting")

	containers, err := r.docker.List(ctx)
	if err != nil {
		r.logger.Error("reconcile: list containers", "error", err)
		return
	}

	running := 0
	for _, c := range containers {
		if c.Running() {
			running++
			continue
		}
		r.logger.Debug("reconcile: container not running", "container", c.Name, "identity", c.Identity, "status", c.Status)
	}

	r.logger.Info("reconciliation complete", "containers", len(containers), "running", running)
}
