package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/felipeor/sideline/internal/database"
	"github.com/felipeor/sideline/internal/model"
	"github.com/felipeor/sideline/internal/push"
	"github.com/felipeor/sideline/internal/store"
)

// fakeSender records deliveries and fails endpoints on demand.
type fakeSender struct {
	mu   sync.Mutex
	sent []string
	gone map[string]bool
}

func (f *fakeSender) Send(ctx context.Context, sub *model.Subscription, payload push.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[sub.Endpoint] {
		return push.ErrExpired
	}
	f.sent = append(f.sent, sub.Endpoint)
	return nil
}

type pushFixture struct {
	subs    *store.SubscriptionStore
	sender  *fakeSender
	handler *PushHandler
}

func newPushFixture(t *testing.T) *pushFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.DiscardHandler)
	subs := store.NewSubscriptionStore(db)
	sender := &fakeSender{gone: make(map[string]bool)}
	engine := push.NewEngine(subs, sender, push.EngineConfig{}, logger)
	service := push.NewService("test-public", "test-private", "mailto:ops@example.com")

	return &pushFixture{
		subs:    subs,
		sender:  sender,
		handler: NewPushHandler(subs, engine, service, "s3cret", logger),
	}
}

func (f *pushFixture) addSubscription(t *testing.T, userID, endpoint string) {
	t.Helper()
	if _, _, err := f.subs.Upsert(userID, endpoint, "p256dh-key", "auth-key"); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
}

func postJSON(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestSubscribeCreatesThenUpdates(t *testing.T) {
	f := newPushFixture(t)

	body := `{"userId":"alice","subscription":{"endpoint":"https://push.example/abc","keys":{"p256dh":"pk","auth":"ak"}}}`

	rec := postJSON(f.handler.Subscribe, "/api/push/subscribe", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Success bool   `json:"success"`
		Action  string `json:"action"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Action != "created" {
		t.Errorf("got success=%v action=%q, want created", resp.Success, resp.Action)
	}

	rec = postJSON(f.handler.Subscribe, "/api/push/subscribe", body)
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Action != "updated" {
		t.Errorf("second subscribe action = %q, want updated", resp.Action)
	}
}

func TestSubscribeRejectsIncompleteBody(t *testing.T) {
	f := newPushFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"no user", `{"subscription":{"endpoint":"https://push.example/x","keys":{"p256dh":"pk","auth":"ak"}}}`},
		{"no endpoint", `{"userId":"alice","subscription":{"keys":{"p256dh":"pk","auth":"ak"}}}`},
		{"no keys", `{"userId":"alice","subscription":{"endpoint":"https://push.example/x"}}`},
		{"not json", `{{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(f.handler.Subscribe, "/api/push/subscribe", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestRemoveSubscription(t *testing.T) {
	f := newPushFixture(t)
	f.addSubscription(t, "alice", "https://push.example/a")
	f.addSubscription(t, "alice", "https://push.example/b")

	rec := postJSON(f.handler.RemoveSubscription, "/api/push/remove-subscription",
		`{"userId":"alice","endpoint":"https://push.example/a"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	remaining, err := f.subs.ListByUser("alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Endpoint != "https://push.example/b" {
		t.Errorf("remaining = %v, want only endpoint b", remaining)
	}

	// Removing something that does not exist still succeeds.
	rec = postJSON(f.handler.RemoveSubscription, "/api/push/remove-subscription",
		`{"userId":"alice","endpoint":"https://push.example/a"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("idempotent remove status = %d, want 200", rec.Code)
	}
}

func TestNotifySendsToAllDevices(t *testing.T) {
	f := newPushFixture(t)
	f.addSubscription(t, "alice", "https://push.example/a1")
	f.addSubscription(t, "alice", "https://push.example/a2")
	f.addSubscription(t, "bob", "https://push.example/b1")

	rec := postJSON(f.handler.Notify, "/api/push/notify",
		`{"userId":"alice","title":"Hi","body":"There"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Success bool `json:"success"`
		Sent    int  `json:"sent"`
		Total   int  `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Sent != 2 || resp.Total != 2 {
		t.Errorf("response = %+v, want 2 sent of 2", resp)
	}
	if len(f.sender.sent) != 2 {
		t.Errorf("sender got %d deliveries, want 2", len(f.sender.sent))
	}
}

func TestNotifyUnknownUserReturns404(t *testing.T) {
	f := newPushFixture(t)

	rec := postJSON(f.handler.Notify, "/api/push/notify",
		`{"userId":"nobody","title":"Hi"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestNotifyPrunesExpiredEndpoint(t *testing.T) {
	f := newPushFixture(t)
	f.addSubscription(t, "alice", "https://push.example/stale")
	f.addSubscription(t, "alice", "https://push.example/live")
	f.sender.gone["https://push.example/stale"] = true

	rec := postJSON(f.handler.Notify, "/api/push/notify",
		`{"userId":"alice","title":"Hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	remaining, err := f.subs.ListByUser("alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Endpoint != "https://push.example/live" {
		t.Errorf("remaining = %v, want stale endpoint pruned", remaining)
	}
}

func TestSendPushSecret(t *testing.T) {
	f := newPushFixture(t)
	f.addSubscription(t, "alice", "https://push.example/a")

	rec := postJSON(f.handler.SendPush, "/api/push/send-push",
		`{"secret":"wrong","all":true,"payload":{"title":"Hi"}}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret status = %d, want 401", rec.Code)
	}
	if len(f.sender.sent) != 0 {
		t.Error("notification sent despite bad secret")
	}

	rec = postJSON(f.handler.SendPush, "/api/push/send-push",
		`{"secret":"s3cret","all":true,"payload":{"title":"Hi"}}`)
	if rec.Code != http.StatusOK {
		t.Errorf("valid secret status = %d, want 200: %s", rec.Code, rec.Body)
	}

	// The secret may also arrive as a bearer token.
	req := httptest.NewRequest("POST", "/api/push/send-push",
		strings.NewReader(`{"all":true,"payload":{"title":"Hi"}}`))
	req.Header.Set("Authorization", "Bearer s3cret")
	bearerRec := httptest.NewRecorder()
	f.handler.SendPush(bearerRec, req)
	if bearerRec.Code != http.StatusOK {
		t.Errorf("bearer secret status = %d, want 200: %s", bearerRec.Code, bearerRec.Body)
	}
}

func TestSendPushUnconfiguredSecretNamesVariable(t *testing.T) {
	f := newPushFixture(t)
	f.addSubscription(t, "alice", "https://push.example/a")
	bare := NewPushHandler(f.subs, nil, nil, "", slog.New(slog.DiscardHandler))

	rec := postJSON(bare.SendPush, "/api/push/send-push",
		`{"secret":"anything","all":true,"payload":{"title":"Hi"}}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 when no secret is configured", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "CRON_SECRET") {
		t.Errorf("body = %q, want the missing variable named", rec.Body)
	}
	if len(f.sender.sent) != 0 {
		t.Error("notification sent despite missing configuration")
	}
}

func TestSendPushTargets(t *testing.T) {
	f := newPushFixture(t)
	f.addSubscription(t, "alice", "https://push.example/a")
	f.addSubscription(t, "bob", "https://push.example/b")
	f.addSubscription(t, "carol", "https://push.example/c")

	rec := postJSON(f.handler.SendPush, "/api/push/send-push",
		`{"secret":"s3cret","userIds":["alice","bob"],"payload":{"title":"Hi"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2 for userIds target", resp.Total)
	}

	rec = postJSON(f.handler.SendPush, "/api/push/send-push",
		`{"secret":"s3cret","payload":{"title":"Hi"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no target status = %d, want 400", rec.Code)
	}

	rec = postJSON(f.handler.SendPush, "/api/push/send-push",
		`{"secret":"s3cret","all":true,"payload":{}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no title status = %d, want 400", rec.Code)
	}
}

func TestVAPIDKey(t *testing.T) {
	f := newPushFixture(t)

	req := httptest.NewRequest("GET", "/api/push/vapid-key", nil)
	rec := httptest.NewRecorder()
	f.handler.VAPIDKey(rec, req)

	var resp struct {
		PublicKey string `json:"publicKey"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PublicKey != "test-public" {
		t.Errorf("publicKey = %q, want test-public", resp.PublicKey)
	}
}

func TestListDevices(t *testing.T) {
	f := newPushFixture(t)
	f.addSubscription(t, "alice", "https://push.example/a")

	req := httptest.NewRequest("GET", "/api/push/devices?user_id=alice", nil)
	rec := httptest.NewRecorder()
	f.handler.ListDevices(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	body := rec.Body.String()
	var resp struct {
		Devices []struct {
			Endpoint string `json:"endpoint"`
		} `json:"devices"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Devices) != 1 || resp.Devices[0].Endpoint != "https://push.example/a" {
		t.Errorf("devices = %v, want one device", resp.Devices)
	}
	if strings.Contains(body, "p256dh") {
		t.Error("device listing leaks subscription keys")
	}

	req = httptest.NewRequest("GET", "/api/push/devices", nil)
	rec = httptest.NewRecorder()
	f.handler.ListDevices(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing user_id status = %d, want 400", rec.Code)
	}
}

func TestTestNotification(t *testing.T) {
	f := newPushFixture(t)
	f.addSubscription(t, "alice", "https://push.example/a")

	rec := postJSON(f.handler.TestNotification, "/api/push/test", `{"userId":"alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	rec = postJSON(f.handler.TestNotification, "/api/push/test", `{"userId":"nobody"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want 404", rec.Code)
	}
}
