package handler

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/felipeor/sideline/internal/push"
	"github.com/felipeor/sideline/internal/store"
)

// PushHandler serves subscription management and ad-hoc sends.
type PushHandler struct {
	subs       *store.SubscriptionStore
	engine     *push.Engine
	service    *push.Service
	pushSecret string
	logger     *slog.Logger
}

func NewPushHandler(subs *store.SubscriptionStore, engine *push.Engine, service *push.Service, pushSecret string, logger *slog.Logger) *PushHandler {
	return &PushHandler{
		subs:       subs,
		engine:     engine,
		service:    service,
		pushSecret: pushSecret,
		logger:     logger.With("component", "push_handler"),
	}
}

type subscribeRequest struct {
	UserID       string `json:"userId"`
	Subscription struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	} `json:"subscription"`
}

// Subscribe registers a device's push subscription for a user.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.Subscription.Endpoint == "" ||
		req.Subscription.Keys.P256dh == "" || req.Subscription.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "userId and subscription with endpoint and keys are required")
		return
	}

	_, action, err := h.subs.Upsert(req.UserID, req.Subscription.Endpoint,
		req.Subscription.Keys.P256dh, req.Subscription.Keys.Auth)
	if err != nil {
		h.logger.Error("upsert subscription", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}

	h.logger.Info("subscription registered", "user_id", req.UserID, "action", action)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"action":  string(action),
	})
}

type removeRequest struct {
	UserID   string `json:"userId"`
	Endpoint string `json:"endpoint"`
}

// RemoveSubscription deletes one of a user's subscriptions, or all of them
// when no endpoint is given. Removing a subscription that does not exist
// succeeds.
func (h *PushHandler) RemoveSubscription(w http.ResponseWriter, r *http.Request) {
	var req removeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	removed, err := h.subs.DeleteByUser(req.UserID, req.Endpoint)
	if err != nil {
		h.logger.Error("remove subscription", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove subscription")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"removed": removed,
	})
}

type notifyRequest struct {
	UserID string `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	URL    string `json:"url"`
	Tag    string `json:"tag"`
}

// Notify sends a notification to a single user's devices.
func (h *PushHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "userId and title are required")
		return
	}

	summary, err := h.engine.Dispatch(r.Context(), push.Target{UserID: req.UserID}, h.payload(push.Payload{
		Title: req.Title,
		Body:  req.Body,
		Tag:   req.Tag,
		URL:   req.URL,
	}))
	if err != nil {
		h.logger.Error("notify user", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send notification")
		return
	}
	if summary.Total == 0 {
		writeError(w, http.StatusNotFound, "no subscriptions found for user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": summary.Sent > 0,
		"sent":    summary.Sent,
		"failed":  summary.Failed,
		"total":   summary.Total,
	})
}

type sendPushRequest struct {
	Secret  string       `json:"secret"`
	UserID  string       `json:"userId"`
	UserIDs []string     `json:"userIds"`
	All     bool         `json:"all"`
	Payload push.Payload `json:"payload"`
}

// SendPush broadcasts a notification to a user, a list of users, or every
// subscriber. It is guarded by a shared secret rather than user identity.
func (h *PushHandler) SendPush(w http.ResponseWriter, r *http.Request) {
	var req sendPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// Unlike the cron routes, send-push stays closed without a secret: it is
	// a broadcast surface, so a missing CRON_SECRET is a deployment fault,
	// not a caller mismatch.
	if h.pushSecret == "" {
		writeError(w, http.StatusInternalServerError, "CRON_SECRET is not configured")
		return
	}
	secret := req.Secret
	if secret == "" {
		if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			secret = token
		}
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.pushSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid secret")
		return
	}
	if req.Payload.Title == "" {
		writeError(w, http.StatusBadRequest, "payload.title is required")
		return
	}
	if !req.All && req.UserID == "" && len(req.UserIDs) == 0 {
		writeError(w, http.StatusBadRequest, "userId, userIds or all is required")
		return
	}

	target := push.Target{UserID: req.UserID, UserIDs: req.UserIDs, All: req.All}
	summary, err := h.engine.Dispatch(r.Context(), target, h.payload(req.Payload))
	if err != nil {
		h.logger.Error("send push", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send notifications")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sent":   summary.Sent,
		"failed": summary.Failed,
		"total":  summary.Total,
	})
}

// ListDevices returns the registered subscriptions for a user, with keys
// omitted.
func (h *PushHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	subs, err := h.subs.ListByUser(userID)
	if err != nil {
		h.logger.Error("list devices", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}

	type device struct {
		ID        int64      `json:"id"`
		Endpoint  string     `json:"endpoint"`
		CreatedAt time.Time  `json:"created_at"`
		UpdatedAt *time.Time `json:"updated_at,omitempty"`
	}
	devices := make([]device, 0, len(subs))
	for _, sub := range subs {
		devices = append(devices, device{
			ID:        sub.ID,
			Endpoint:  sub.Endpoint,
			CreatedAt: sub.CreatedAt,
			UpdatedAt: sub.UpdatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"devices": devices,
	})
}

// VAPIDKey returns the public key browsers subscribe against.
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"publicKey": h.service.VAPIDPublicKey(),
	})
}

type testRequest struct {
	UserID string `json:"userId"`
}

// TestNotification sends a fixed payload to a user's devices so a fresh
// subscription can be verified end to end.
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	summary, err := h.engine.Dispatch(r.Context(), push.Target{UserID: req.UserID}, push.Payload{
		Title: "Test notification",
		Body:  "Push notifications are working on this device.",
		Icon:  "/icons/icon-192.png",
		Badge: "/icons/icon-96.png",
		Tag:   "test",
	})
	if err != nil {
		h.logger.Error("test notification", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send test notification")
		return
	}
	if summary.Total == 0 {
		writeError(w, http.StatusNotFound, "no subscriptions found for user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": summary.Sent > 0,
		"sent":    summary.Sent,
		"failed":  summary.Failed,
		"total":   summary.Total,
	})
}

// payload fills in the display defaults a bare title/body request leaves out.
func (h *PushHandler) payload(p push.Payload) push.Payload {
	if p.Icon == "" {
		p.Icon = "/icons/icon-192.png"
	}
	if p.Badge == "" {
		p.Badge = "/icons/icon-96.png"
	}
	if p.Tag == "" {
		p.Tag = fmt.Sprintf("notification-%d", time.Now().Unix())
	}
	if p.URL == "" {
		p.URL = "/dashboard"
	}
	return p
}
