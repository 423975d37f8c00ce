package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felipeor/sideline/internal/model"
	"github.com/felipeor/sideline/internal/store"

	"golang.org/x/sync/semaphore"
)

// Target selects the subscriber set for a dispatch. Exactly one of the
// fields should be set; All wins over UserIDs, which wins over UserID.
type Target struct {
	UserID  string
	UserIDs []string
	All     bool
}

// Summary aggregates the outcome of one fan-out. It is only produced after
// every attempt has settled.
type Summary struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// EngineConfig tunes the fan-out.
type EngineConfig struct {
	// MaxConcurrent caps in-flight sends to respect provider rate limits.
	MaxConcurrent int
	// SendTimeout bounds each individual attempt. An attempt that exceeds it
	// counts as a transient failure, never left pending.
	SendTimeout time.Duration
}

// Engine fans a notification out to every device in a target set, classifies
// each attempt, and prunes subscriptions the provider reports gone.
type Engine struct {
	subs    *store.SubscriptionStore
	sender  Sender
	limit   int64
	timeout time.Duration
	logger  *slog.Logger
}

func NewEngine(subs *store.SubscriptionStore, sender Sender, cfg EngineConfig, logger *slog.Logger) *Engine {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Engine{
		subs:    subs,
		sender:  sender,
		limit:   int64(cfg.MaxConcurrent),
		timeout: cfg.SendTimeout,
		logger:  logger,
	}
}

// Dispatch sends payload to every subscription in the target set. Attempts
// run concurrently and independently; one device's failure never aborts the
// batch. An empty subscriber set returns a zero summary, not an error.
// Dispatch performs no retries: a transient failure is retried, if at all,
// by the caller's next invocation cycle.
func (e *Engine) Dispatch(ctx context.Context, target Target, payload Payload) (Summary, error) {
	var (
		subs []model.Subscription
		err  error
	)
	switch {
	case target.All:
		subs, err = e.subs.ListAll(nil)
	case len(target.UserIDs) > 0:
		subs, err = e.subs.ListAll(target.UserIDs)
	default:
		subs, err = e.subs.ListByUser(target.UserID)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("resolve subscribers: %w", err)
	}

	summary := Summary{Total: len(subs)}
	if len(subs) == 0 {
		return summary, nil
	}

	sem := semaphore.NewWeighted(e.limit)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i := range subs {
		sub := subs[i]
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context expired before this attempt could start; count it as a
			// transient failure so the summary still covers every device.
			mu.Lock()
			summary.Failed++
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			sendCtx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()

			err := e.sender.Send(sendCtx, &sub, payload)
			removed := false
			if errors.Is(err, ErrExpired) {
				if _, delErr := e.subs.DeleteByEndpoint(sub.Endpoint); delErr != nil {
					e.logger.Error("prune expired subscription", "endpoint", sub.Endpoint, "error", delErr)
				} else {
					removed = true
				}
			}

			mu.Lock()
			if err != nil {
				summary.Failed++
			} else {
				summary.Sent++
			}
			mu.Unlock()

			switch {
			case err == nil:
				e.logger.Debug("push sent", "user_id", sub.UserID, "endpoint", sub.Endpoint)
			case removed:
				e.logger.Info("push endpoint gone, subscription removed",
					"user_id", sub.UserID, "endpoint", sub.Endpoint)
			default:
				e.logger.Warn("push send failed", "user_id", sub.UserID,
					"endpoint", sub.Endpoint, "error", err)
			}
		}()
	}
	wg.Wait()

	return summary, nil
}
