package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/felipeor/sideline/internal/config"
	"github.com/felipeor/sideline/internal/database"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Config{
		VAPIDPublicKey:  "pub",
		VAPIDPrivateKey: "priv",
		Contact:         "mailto:ops@example.com",
		CronSecret:      "s3cret",
	}
	return New(db, cfg, slog.New(slog.DiscardHandler))
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestCronRoutesRequireBearer(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	for _, path := range []string{
		"/api/cron/daily-notifications",
		"/api/cron/check-events",
		"/api/cron/scheduled-push",
	} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without token = %d, want 401", path, rec.Code)
		}

		req = httptest.NewRequest("GET", path, nil)
		req.Header.Set("Authorization", "Bearer s3cret")
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s with token = %d, want 200: %s", path, rec.Code, rec.Body)
		}
	}
}

func TestPreflightAnywhere(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/push/subscribe", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("CORS headers missing on preflight")
	}
}

func TestSubscribeRouteWired(t *testing.T) {
	srv := newTestServer(t)

	body := `{"userId":"alice","subscription":{"endpoint":"https://push.example/a","keys":{"p256dh":"pk","auth":"ak"}}}`
	req := httptest.NewRequest("POST", "/api/push/subscribe", strings.NewReader(body))
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"created"`) {
		t.Errorf("body = %q, want created action", rec.Body.String())
	}
}

func TestRateLimiterExposedForCleanup(t *testing.T) {
	srv := newTestServer(t)
	if srv.RateLimiter() == nil {
		t.Fatal("server does not expose its rate limiter")
	}
	// Must be callable on the live limiter without disturbing requests.
	srv.RateLimiter().Cleanup()
}

func TestVAPIDKeyRouteWired(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/push/vapid-key", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"pub"`) {
		t.Errorf("body = %q, want public key", rec.Body.String())
	}
}
