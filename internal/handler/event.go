package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/felipeor/sideline/internal/model"
	"github.com/felipeor/sideline/internal/store"
)

// EventHandler serves CRUD for the calendar events the proximity notifier
// watches.
type EventHandler struct {
	events *store.EventStore
	logger *slog.Logger
}

func NewEventHandler(events *store.EventStore, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		events: events,
		logger: logger.With("component", "event_handler"),
	}
}

type eventRequest struct {
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
}

func (req *eventRequest) validate(requireUser bool) string {
	if requireUser && req.UserID == "" {
		return "userId is required"
	}
	if req.Title == "" {
		return "title is required"
	}
	if req.StartTime.IsZero() {
		return "startTime is required"
	}
	if !req.EndTime.IsZero() && req.EndTime.Before(req.StartTime) {
		return "endTime must not be before startTime"
	}
	return ""
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(true); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.EndTime.IsZero() {
		req.EndTime = req.StartTime.Add(time.Hour)
	}

	event, err := h.events.Create(req.UserID, req.Title, req.Description, req.Location, req.StartTime, req.EndTime)
	if err != nil {
		h.logger.Error("create event", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	event, err := h.events.GetByID(id)
	if err != nil {
		h.logger.Error("get event", "event_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	events, err := h.events.ListByUser(userID)
	if err != nil {
		h.logger.Error("list events", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(false); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.EndTime.IsZero() {
		req.EndTime = req.StartTime.Add(time.Hour)
	}

	existing, err := h.events.GetByID(id)
	if err != nil {
		h.logger.Error("get event", "event_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	event, err := h.events.Update(id, req.Title, req.Description, req.Location, req.StartTime, req.EndTime)
	if err != nil {
		h.logger.Error("update event", "event_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	if err := h.events.Delete(id); err != nil {
		h.logger.Error("delete event", "event_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
