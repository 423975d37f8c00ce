// Package proximity watches the calendar for events about to start and
// escalates push notifications through urgency tiers as the start time
// approaches, sending at most one notification per tier per event.
package proximity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/felipeor/sideline/internal/model"
	"github.com/felipeor/sideline/internal/push"
	"github.com/felipeor/sideline/internal/store"
)

// Tier is an urgency bucket for an upcoming event. Tiers are mutually
// exclusive bands over minutes-until-start; exactly one applies at any
// instant inside the watch window.
type Tier string

const (
	TierNow  Tier = "now"  // within ±2 minutes of start
	TierSoon Tier = "soon" // 3-5 minutes before
	TierNear Tier = "near" // 6-15 minutes before
	TierFar  Tier = "far"  // 16-30 minutes before
)

// TierFor maps minutes-until-start to a tier. ok is false outside all bands.
func TierFor(minutesUntil int) (tier Tier, ok bool) {
	switch {
	case minutesUntil < -2 || minutesUntil > 30:
		return "", false
	case minutesUntil <= 2:
		return TierNow, true
	case minutesUntil <= 5:
		return TierSoon, true
	case minutesUntil <= 15:
		return TierNear, true
	default:
		return TierFar, true
	}
}

// Dispatcher is the slice of the push engine the notifier needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, target push.Target, payload push.Payload) (push.Summary, error)
}

// Config tunes the notifier.
type Config struct {
	// Lookahead bounds how far into the future events are fetched.
	Lookahead time.Duration
	// Throttle is the pause between dispatches for different events within
	// one invocation, to avoid bursting the push provider.
	Throttle time.Duration
}

// Notifier scans upcoming events and dispatches tiered reminders.
type Notifier struct {
	events    *store.EventStore
	markers   *store.MarkerStore
	engine    Dispatcher
	lookahead time.Duration
	throttle  time.Duration
	logger    *slog.Logger
}

func NewNotifier(events *store.EventStore, markers *store.MarkerStore, engine Dispatcher, cfg Config, logger *slog.Logger) *Notifier {
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 30 * time.Minute
	}
	return &Notifier{
		events:    events,
		markers:   markers,
		engine:    engine,
		lookahead: cfg.Lookahead,
		throttle:  cfg.Throttle,
		logger:    logger,
	}
}

// Report summarizes one invocation.
type Report struct {
	EventsChecked int `json:"events_checked"`
	Notified      int `json:"notified"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
}

// Check runs one scan. Each cron invocation is an independent unit of work;
// overlap with a previous invocation is tolerated because every send is
// guarded by an (event, tier) marker.
func (n *Notifier) Check(ctx context.Context) (Report, error) {
	return n.checkAt(ctx, time.Now())
}

func (n *Notifier) checkAt(ctx context.Context, now time.Time) (Report, error) {
	var report Report

	// Reach two minutes into the past so the "now" tier catches events that
	// just started.
	events, err := n.events.ListUpcoming(now.Add(-2*time.Minute), now.Add(n.lookahead))
	if err != nil {
		return report, fmt.Errorf("list upcoming events: %w", err)
	}
	report.EventsChecked = len(events)

	dispatched := false
	for _, event := range events {
		minutesUntil := int(math.Round(event.StartTime.Sub(now).Minutes()))
		tier, ok := TierFor(minutesUntil)
		if !ok {
			report.Skipped++
			continue
		}

		ref := strconv.FormatInt(event.ID, 10)
		sent, err := n.markers.WasSent(model.MarkerEventTier, ref, string(tier))
		if err != nil {
			n.logger.Error("check event marker", "event_id", event.ID, "error", err)
			report.Failed++
			continue
		}
		if sent {
			report.Skipped++
			continue
		}

		if dispatched && n.throttle > 0 {
			select {
			case <-time.After(n.throttle):
			case <-ctx.Done():
				return report, ctx.Err()
			}
		}

		summary, err := n.engine.Dispatch(ctx, push.Target{UserID: event.UserID}, payloadFor(event, tier, minutesUntil))
		dispatched = true
		if err != nil {
			n.logger.Error("dispatch event reminder", "event_id", event.ID, "tier", tier, "error", err)
			report.Failed++
			continue
		}

		// A user with zero devices is still marked handled so the next
		// invocation does not hammer the same event.
		if summary.Sent > 0 || summary.Total == 0 {
			if err := n.markers.Record(model.MarkerEventTier, ref, string(tier)); err != nil {
				n.logger.Error("record event marker", "event_id", event.ID, "error", err)
			}
		}
		if summary.Total > 0 && summary.Sent == 0 {
			report.Failed++
			continue
		}

		report.Notified++
		n.logger.Info("event reminder dispatched",
			"event_id", event.ID,
			"tier", tier,
			"minutes_until", minutesUntil,
			"sent", summary.Sent,
			"failed", summary.Failed,
		)
	}

	return report, nil
}

func payloadFor(event model.Event, tier Tier, minutesUntil int) push.Payload {
	var body string
	switch tier {
	case TierNow:
		body = "Starting right now!"
	case TierSoon:
		body = fmt.Sprintf("Only %d minutes to go!", minutesUntil)
	default:
		body = fmt.Sprintf("Starts in %d minutes", minutesUntil)
	}
	if event.Location != "" {
		body += " - " + event.Location
	}

	return push.Payload{
		Title: event.Title,
		Body:  body,
		Tag:   fmt.Sprintf("event-%d-%s", event.ID, tier),
		URL:   "/dashboard/calendar",
	}
}
