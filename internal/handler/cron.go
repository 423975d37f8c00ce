package handler

import (
	"log/slog"
	"net/http"

	"github.com/felipeor/sideline/internal/job"
	"github.com/felipeor/sideline/internal/proximity"

	"github.com/google/uuid"
)

// CronHandler exposes the scheduled jobs over HTTP so an external cron can
// drive them. Every run is idempotent; a retried or overlapping invocation
// is absorbed by the dedup markers.
type CronHandler struct {
	daily    *job.Daily
	notifier *proximity.Notifier
	logger   *slog.Logger
}

func NewCronHandler(daily *job.Daily, notifier *proximity.Notifier, logger *slog.Logger) *CronHandler {
	return &CronHandler{
		daily:    daily,
		notifier: notifier,
		logger:   logger.With("component", "cron_handler"),
	}
}

// DailyNotifications runs the daily schedule job once.
func (h *CronHandler) DailyNotifications(w http.ResponseWriter, r *http.Request) {
	runID := uuid.NewString()
	log := h.logger.With("run_id", runID, "job", "daily-notifications")
	log.Info("cron run started")

	report, err := h.daily.Run(r.Context())
	if err != nil {
		log.Error("cron run failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "daily notifications failed",
			"message": err.Error(),
			"run_id":  runID,
		})
		return
	}

	log.Info("cron run finished", "slot", report.Slot, "skipped", report.Skipped,
		"sent", report.Summary.Sent, "failed", report.Summary.Failed)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"run_id":  runID,
		"report":  report,
	})
}

// CheckEvents runs one proximity scan over upcoming events.
func (h *CronHandler) CheckEvents(w http.ResponseWriter, r *http.Request) {
	runID := uuid.NewString()
	log := h.logger.With("run_id", runID, "job", "check-events")
	log.Info("cron run started")

	report, err := h.notifier.Check(r.Context())
	if err != nil {
		log.Error("cron run failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "event check failed",
			"message": err.Error(),
			"run_id":  runID,
		})
		return
	}

	log.Info("cron run finished", "events_checked", report.EventsChecked,
		"notified", report.Notified, "skipped", report.Skipped, "failed", report.Failed)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"run_id":  runID,
		"report":  report,
	})
}

// ScheduledPush is a legacy alias for DailyNotifications kept so existing
// cron configurations keep working.
func (h *CronHandler) ScheduledPush(w http.ResponseWriter, r *http.Request) {
	h.DailyNotifications(w, r)
}
