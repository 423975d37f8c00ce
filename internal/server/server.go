// Package server wires the stores, push engine, jobs and handlers into an
// http.Handler.
package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/felipeor/sideline/internal/config"
	"github.com/felipeor/sideline/internal/handler"
	"github.com/felipeor/sideline/internal/job"
	"github.com/felipeor/sideline/internal/middleware"
	"github.com/felipeor/sideline/internal/proximity"
	"github.com/felipeor/sideline/internal/push"
	"github.com/felipeor/sideline/internal/store"

	"github.com/rs/cors"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger

	subs    *store.SubscriptionStore
	events  *store.EventStore
	markers *store.MarkerStore

	service *push.Service
	engine  *push.Engine

	daily    *job.Daily
	notifier *proximity.Notifier
	runner   *job.Runner

	limiter *middleware.RateLimiter
}

func New(db *sql.DB, cfg config.Config, logger *slog.Logger) *Server {
	subs := store.NewSubscriptionStore(db)
	events := store.NewEventStore(db)
	markers := store.NewMarkerStore(db)

	service := push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.Contact)
	engine := push.NewEngine(subs, service, push.EngineConfig{
		MaxConcurrent: cfg.MaxConcurrentSends,
		SendTimeout:   cfg.SendTimeout(),
	}, logger.With("component", "dispatch"))

	daily := job.NewDaily(job.DailyConfig{
		OffsetMinutes:    cfg.TimezoneOffsetMinutes,
		ToleranceMinutes: cfg.ToleranceMinutes,
	}, markers, engine, logger.With("component", "daily"))

	notifier := proximity.NewNotifier(events, markers, engine, proximity.Config{
		Lookahead: cfg.Lookahead(),
		Throttle:  cfg.Throttle(),
	}, logger.With("component", "proximity"))

	runner := job.NewRunner(daily, notifier, markers, logger.With("component", "runner"))

	return &Server{
		cfg:      cfg,
		logger:   logger,
		subs:     subs,
		events:   events,
		markers:  markers,
		service:  service,
		engine:   engine,
		daily:    daily,
		notifier: notifier,
		runner:   runner,
		limiter:  middleware.NewRateLimiter(),
	}
}

// Runner returns the in-process job runner; the caller decides whether to
// start it.
func (s *Server) Runner() *job.Runner {
	return s.runner
}

// RateLimiter returns the shared limiter so the caller can drive periodic
// cleanup of expired windows.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.limiter
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	pushHandler := handler.NewPushHandler(s.subs, s.engine, s.service, s.cfg.CronSecret, s.logger)
	cronHandler := handler.NewCronHandler(s.daily, s.notifier, s.logger)
	eventHandler := handler.NewEventHandler(s.events, s.logger)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	subscribeLimit := middleware.RateLimit(s.limiter, middleware.RealIP, 30, time.Minute)
	mux.Handle("POST /api/push/subscribe", subscribeLimit(http.HandlerFunc(pushHandler.Subscribe)))
	mux.Handle("POST /api/push/remove-subscription", subscribeLimit(http.HandlerFunc(pushHandler.RemoveSubscription)))
	mux.HandleFunc("POST /api/push/notify", pushHandler.Notify)
	mux.HandleFunc("POST /api/push/send-push", pushHandler.SendPush)
	mux.HandleFunc("GET /api/push/vapid-key", pushHandler.VAPIDKey)
	mux.HandleFunc("GET /api/push/devices", pushHandler.ListDevices)
	mux.HandleFunc("POST /api/push/test", pushHandler.TestNotification)

	cronAuth := middleware.CronAuth(s.cfg.CronSecret)
	mux.Handle("GET /api/cron/daily-notifications", cronAuth(http.HandlerFunc(cronHandler.DailyNotifications)))
	mux.Handle("GET /api/cron/check-events", cronAuth(http.HandlerFunc(cronHandler.CheckEvents)))
	mux.Handle("GET /api/cron/scheduled-push", cronAuth(http.HandlerFunc(cronHandler.ScheduledPush)))

	mux.HandleFunc("POST /api/events", eventHandler.Create)
	mux.HandleFunc("GET /api/events", eventHandler.List)
	mux.HandleFunc("GET /api/events/{id}", eventHandler.Get)
	mux.HandleFunc("PUT /api/events/{id}", eventHandler.Update)
	mux.HandleFunc("DELETE /api/events/{id}", eventHandler.Delete)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	var h http.Handler = mux
	h = c.Handler(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	return h
}
