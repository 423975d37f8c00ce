package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/felipeor/sideline/internal/proximity"
	"github.com/felipeor/sideline/internal/store"
)

const markerRetention = 48 * time.Hour

// Runner drives the jobs from an in-process ticker for deployments without
// an external cron. Serverless-style deployments skip it and hit the cron
// endpoints instead; both paths share the same jobs and markers.
type Runner struct {
	mu        sync.RWMutex
	daily     *Daily
	proximity *proximity.Notifier
	markers   *store.MarkerStore
	interval  time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
	logger    *slog.Logger
}

func NewRunner(daily *Daily, notifier *proximity.Notifier, markers *store.MarkerStore, logger *slog.Logger) *Runner {
	return &Runner{
		daily:     daily,
		proximity: notifier,
		markers:   markers,
		interval:  60 * time.Second,
		logger:    logger,
	}
}

// Start begins the tick loop.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the runner.
func (r *Runner) Stop() {
	r.mu.RLock()
	cancel := r.cancel
	done := r.done
	r.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (r *Runner) tick(ctx context.Context) {
	if _, err := r.daily.Run(ctx); err != nil {
		r.logger.Error("daily job", "error", err)
	}
	if _, err := r.proximity.Check(ctx); err != nil {
		r.logger.Error("proximity check", "error", err)
	}

	// Once an hour, drop markers old enough that nothing can re-fire them.
	if time.Now().Minute() == 0 {
		if n, err := r.markers.Cleanup(time.Now().Add(-markerRetention)); err != nil {
			r.logger.Error("marker cleanup", "error", err)
		} else if n > 0 {
			r.logger.Debug("marker cleanup", "removed", n)
		}
	}
}
