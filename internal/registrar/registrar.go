// Package registrar runs the device registration flow: capability check,
// permission, platform subscribe, then persistence. The push platform is an
// interface so the flow can be driven by any client surface.
package registrar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felipeor/sideline/internal/model"
	"github.com/felipeor/sideline/internal/store"

	"github.com/sethvargo/go-retry"
)

var (
	// ErrUnsupported means the platform lacks push capability. Terminal.
	ErrUnsupported = errors.New("push not supported on this platform")
	// ErrPermissionDenied means the user declined notifications. Terminal
	// until the user re-enables them in platform settings; never re-prompt
	// automatically.
	ErrPermissionDenied = errors.New("notification permission denied")
	// ErrAlreadyPrompted means the one automatic permission prompt for this
	// user was already spent; only a user-initiated attempt may prompt again.
	ErrAlreadyPrompted = errors.New("permission already prompted automatically")
)

// Permission mirrors the platform's notification permission state.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionPrompt  Permission = "prompt"
)

// PlatformSubscription is the raw subscription the push platform hands back.
type PlatformSubscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// Platform abstracts the device-side push machinery.
type Platform interface {
	// Supported reports whether notifications and a push manager exist.
	Supported(ctx context.Context) bool
	// Permission returns the current permission state without prompting.
	Permission(ctx context.Context) (Permission, error)
	// RequestPermission shows the permission prompt and returns the outcome.
	RequestPermission(ctx context.Context) (Permission, error)
	// Subscribe returns a subscription bound to the given VAPID public key,
	// reusing an existing platform subscription when one is live.
	Subscribe(ctx context.Context, serverKey string) (*PlatformSubscription, error)
	// Current returns the live platform subscription, or nil if none.
	Current(ctx context.Context) (*PlatformSubscription, error)
	// Unsubscribe cancels the platform subscription if one exists.
	Unsubscribe(ctx context.Context) error
}

type Registrar struct {
	platform  Platform
	subs      *store.SubscriptionStore
	markers   *store.MarkerStore
	serverKey string
	logger    *slog.Logger
}

func New(platform Platform, subs *store.SubscriptionStore, markers *store.MarkerStore, serverKey string, logger *slog.Logger) *Registrar {
	return &Registrar{
		platform:  platform,
		subs:      subs,
		markers:   markers,
		serverKey: serverKey,
		logger:    logger,
	}
}

// Register runs the full user-initiated registration flow for userID.
func (r *Registrar) Register(ctx context.Context, userID string) (*model.Subscription, error) {
	return r.register(ctx, userID, false)
}

// AutoRegister is the automatic variant shown at most once per user: the
// permission prompt is spent exactly one time, tracked by a durable marker.
// After that, only Register (user-initiated) may prompt again.
func (r *Registrar) AutoRegister(ctx context.Context, userID string) (*model.Subscription, error) {
	return r.register(ctx, userID, true)
}

func (r *Registrar) register(ctx context.Context, userID string, auto bool) (*model.Subscription, error) {
	if !r.platform.Supported(ctx) {
		return nil, ErrUnsupported
	}

	perm, err := r.platform.Permission(ctx)
	if err != nil {
		return nil, fmt.Errorf("read permission state: %w", err)
	}
	if perm == PermissionDenied {
		return nil, ErrPermissionDenied
	}
	if perm == PermissionPrompt {
		if auto {
			asked, err := r.markers.WasSent(model.MarkerPermissionPrompt, userID, "")
			if err != nil {
				return nil, fmt.Errorf("check prompt marker: %w", err)
			}
			if asked {
				return nil, ErrAlreadyPrompted
			}
			if err := r.markers.Record(model.MarkerPermissionPrompt, userID, ""); err != nil {
				return nil, fmt.Errorf("record prompt marker: %w", err)
			}
		}
		perm, err = r.platform.RequestPermission(ctx)
		if err != nil {
			return nil, fmt.Errorf("request permission: %w", err)
		}
		if perm != PermissionGranted {
			return nil, ErrPermissionDenied
		}
	}

	platSub, err := r.platform.Subscribe(ctx, r.serverKey)
	if err != nil {
		return nil, fmt.Errorf("platform subscribe: %w", err)
	}

	// The platform subscription survives a store failure, so only the
	// persistence step is retried before giving up.
	var sub *model.Subscription
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var upsertErr error
		sub, _, upsertErr = r.subs.Upsert(userID, platSub.Endpoint, platSub.P256dh, platSub.Auth)
		if upsertErr != nil {
			return retry.RetryableError(upsertErr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist subscription: %w", err)
	}

	r.logger.Info("device registered", "user_id", userID, "endpoint", sub.Endpoint)
	return sub, nil
}

// Unregister cancels the platform subscription and deletes the store row.
// Both are attempted even when one fails; a half-finished unregistration is
// recoverable on the next registration attempt.
func (r *Registrar) Unregister(ctx context.Context, userID string) error {
	endpoint := ""
	if cur, err := r.platform.Current(ctx); err == nil && cur != nil {
		endpoint = cur.Endpoint
	}

	platformErr := r.platform.Unsubscribe(ctx)
	if platformErr != nil {
		r.logger.Warn("platform unsubscribe failed", "user_id", userID, "error", platformErr)
		platformErr = fmt.Errorf("platform unsubscribe: %w", platformErr)
	}

	_, storeErr := r.subs.DeleteByUser(userID, endpoint)
	if storeErr != nil {
		r.logger.Warn("delete subscription failed", "user_id", userID, "error", storeErr)
		storeErr = fmt.Errorf("delete subscription: %w", storeErr)
	}

	return errors.Join(platformErr, storeErr)
}
