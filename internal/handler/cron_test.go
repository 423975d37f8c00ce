package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/felipeor/sideline/internal/database"
	"github.com/felipeor/sideline/internal/job"
	"github.com/felipeor/sideline/internal/proximity"
	"github.com/felipeor/sideline/internal/push"
	"github.com/felipeor/sideline/internal/store"
)

func newCronFixture(t *testing.T) (*CronHandler, *store.SubscriptionStore, *store.EventStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.DiscardHandler)
	subs := store.NewSubscriptionStore(db)
	events := store.NewEventStore(db)
	markers := store.NewMarkerStore(db)
	engine := push.NewEngine(subs, &fakeSender{gone: make(map[string]bool)}, push.EngineConfig{}, logger)

	daily := job.NewDaily(job.DailyConfig{OffsetMinutes: -180}, markers, engine, logger)
	notifier := proximity.NewNotifier(events, markers, engine, proximity.Config{}, logger)

	return NewCronHandler(daily, notifier, logger), subs, events
}

func TestCheckEventsReportsRun(t *testing.T) {
	h, subs, events := newCronFixture(t)

	if _, _, err := subs.Upsert("alice", "https://push.example/a", "pk", "ak"); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	if _, err := events.Create("alice", "Standup", "", "", time.Now().Add(10*time.Minute), time.Now().Add(40*time.Minute)); err != nil {
		t.Fatalf("seed event: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/cron/check-events", nil)
	rec := httptest.NewRecorder()
	h.CheckEvents(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Success bool             `json:"success"`
		RunID   string           `json:"run_id"`
		Report  proximity.Report `json:"report"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.RunID == "" {
		t.Errorf("got success=%v run_id=%q", resp.Success, resp.RunID)
	}
	if resp.Report.EventsChecked != 1 || resp.Report.Notified != 1 {
		t.Errorf("report = %+v, want one event notified", resp.Report)
	}
}

func TestDailyNotificationsOffSlot(t *testing.T) {
	h, _, _ := newCronFixture(t)

	// Whatever wall-clock time the test runs at, the response shape holds.
	req := httptest.NewRequest("GET", "/api/cron/daily-notifications", nil)
	rec := httptest.NewRecorder()
	h.DailyNotifications(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Success bool   `json:"success"`
		RunID   string `json:"run_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.RunID == "" {
		t.Errorf("got success=%v run_id=%q", resp.Success, resp.RunID)
	}
}

func TestScheduledPushAliasesDaily(t *testing.T) {
	h, _, _ := newCronFixture(t)

	req := httptest.NewRequest("GET", "/api/cron/scheduled-push", nil)
	rec := httptest.NewRecorder()
	h.ScheduledPush(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
}
