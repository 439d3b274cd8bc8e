package cleanup

import (
	"context"
	"time"

	"github.com/nvoronin/authsession/internal/logger"
)

const (
	defaultInterval  = 24 * time.Hour // Daily sweep cadence
	defaultRetention = 0              // Stale tokens are purged immediately
)

type refreshRepo interface {
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type Config struct {
	// How often the sweep runs
	// If not set then default is used
	Interval time.Duration

	// Grace period: tokens stay queryable this long after expiry or revocation,
	// useful for audit. Zero means immediate cleanup
	Retention time.Duration
}

// Job periodically purges refresh tokens that expired or were revoked.
// The sweep itself is RunOnce so it stays testable without any scheduler
type Job struct {
	interval  time.Duration
	retention time.Duration

	repo   refreshRepo
	logger logger.Logger

	// Injectable clock
	now func() time.Time
}

func New(cfg Config, repo refreshRepo, l logger.Logger) *Job {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Retention < 0 {
		cfg.Retention = defaultRetention
	}

	return &Job{
		interval:  cfg.Interval,
		retention: cfg.Retention,
		repo:      repo,
		logger:    l,
		now:       time.Now,
	}
}

// RunOnce performs a single sweep and reports how many tokens went away.
// Idempotent: a second run right after deletes nothing new
func (j *Job) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.retention)
	return j.repo.DeleteStale(ctx, cutoff)
}

// Run sweeps once right away and then on every tick until the context is
// cancelled. A failed sweep is logged and retried on the next tick, it never
// stops the loop or the host process
func (j *Job) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	j.logger.Debug("Starting token cleanup job", "interval", j.interval, "retention", j.retention)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.sweep(ctx)

		for {
			select {
			case <-ctx.Done():
				j.logger.Debug("Token cleanup job stopped by context")
				return

			case <-ticker.C:
				j.sweep(ctx)
			}
		}
	}()

	return idleStopped
}

func (j *Job) sweep(ctx context.Context) {
	count, err := j.RunOnce(ctx)
	if err != nil {
		j.logger.Error("Token cleanup sweep failed, will retry on next tick", "error", err)
		return
	}

	j.logger.Info("Token cleanup sweep done", "deleted", count)
}
