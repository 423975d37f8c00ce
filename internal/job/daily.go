// Package job holds the cron-driven units of work. Each run is stateless
// and idempotent: overlapping invocations are expected and guarded by
// durable dedup markers, so it does not matter whether an external cron or
// the in-process runner triggers them.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felipeor/sideline/internal/model"
	"github.com/felipeor/sideline/internal/push"
	"github.com/felipeor/sideline/internal/schedule"
	"github.com/felipeor/sideline/internal/store"
)

// Dispatcher is the slice of the push engine the jobs need.
type Dispatcher interface {
	Dispatch(ctx context.Context, target push.Target, payload push.Payload) (push.Summary, error)
}

// DailyConfig configures the daily schedule job.
type DailyConfig struct {
	Entries          []schedule.Entry
	OffsetMinutes    int
	ToleranceMinutes int
}

// Daily broadcasts the schedule slot matching the current wall-clock time,
// at most once per slot per civil day.
type Daily struct {
	cfg     DailyConfig
	markers *store.MarkerStore
	engine  Dispatcher
	logger  *slog.Logger
}

func NewDaily(cfg DailyConfig, markers *store.MarkerStore, engine Dispatcher, logger *slog.Logger) *Daily {
	if cfg.ToleranceMinutes <= 0 {
		cfg.ToleranceMinutes = 1
	}
	if len(cfg.Entries) == 0 {
		cfg.Entries = schedule.Default()
	}
	return &Daily{cfg: cfg, markers: markers, engine: engine, logger: logger}
}

// DailyReport summarizes one run.
type DailyReport struct {
	Slot    string       `json:"slot,omitempty"`
	Title   string       `json:"title,omitempty"`
	Skipped string       `json:"skipped,omitempty"`
	Summary push.Summary `json:"summary"`
}

// Run resolves the slot for the current instant and broadcasts it to all
// subscribers. No matching slot is the normal outcome for most ticks.
func (d *Daily) Run(ctx context.Context) (DailyReport, error) {
	return d.runAt(ctx, time.Now())
}

func (d *Daily) runAt(ctx context.Context, now time.Time) (DailyReport, error) {
	entry := schedule.Resolve(now, d.cfg.OffsetMinutes, d.cfg.Entries, d.cfg.ToleranceMinutes)
	if entry == nil {
		return DailyReport{Skipped: "no slot scheduled for this time"}, nil
	}

	report := DailyReport{Slot: entry.TimeOfDay, Title: entry.Title}
	day := schedule.CivilDate(now, d.cfg.OffsetMinutes)

	sent, err := d.markers.WasSent(model.MarkerDailySlot, entry.TimeOfDay, day)
	if err != nil {
		return report, fmt.Errorf("check slot marker: %w", err)
	}
	if sent {
		report.Skipped = "already sent today"
		return report, nil
	}

	payload := push.Payload{
		Title: entry.Title,
		Body:  entry.Body,
		Tag:   "daily-" + strings.ReplaceAll(entry.TimeOfDay, ":", ""),
		URL:   entry.URL,
	}
	summary, err := d.engine.Dispatch(ctx, push.Target{All: true}, payload)
	if err != nil {
		return report, fmt.Errorf("dispatch slot %s: %w", entry.TimeOfDay, err)
	}
	report.Summary = summary

	// Mark even when nobody is subscribed; the slot is done for the day.
	if summary.Sent > 0 || summary.Total == 0 {
		if err := d.markers.Record(model.MarkerDailySlot, entry.TimeOfDay, day); err != nil {
			return report, fmt.Errorf("record slot marker: %w", err)
		}
	}

	d.logger.Info("daily slot dispatched",
		"slot", entry.TimeOfDay,
		"title", entry.Title,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"total", summary.Total,
	)
	return report, nil
}
