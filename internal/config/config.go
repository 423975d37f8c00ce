// Package config reads the service configuration from the environment.
// Operational knobs use the SIDELINE_ prefix; push-protocol secrets keep
// their conventional unprefixed names.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port     string
	DBPath   string
	LogLevel string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	// Contact is the mailto: identifier the push protocol requires.
	Contact string

	// CronSecret guards the cron endpoints and send-push. Empty disables
	// the check (local development only).
	CronSecret string

	// TimezoneOffsetMinutes fixes the civil time zone the schedule is
	// expressed in, e.g. -180 for UTC-3.
	TimezoneOffsetMinutes int
	ToleranceMinutes      int
	LookaheadMinutes      int
	ThrottleMillis        int
	MaxConcurrentSends    int
	SendTimeoutSeconds    int

	// RunnerEnabled starts the in-process minute ticker. Disable it when an
	// external cron drives the /api/cron endpoints instead.
	RunnerEnabled bool
}

func (c Config) Throttle() time.Duration {
	return time.Duration(c.ThrottleMillis) * time.Millisecond
}

func (c Config) Lookahead() time.Duration {
	return time.Duration(c.LookaheadMinutes) * time.Minute
}

func (c Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// Load reads configuration from the environment. It fails fast, naming
// every missing required variable, rather than starting with partial push
// capability.
func Load() (Config, error) {
	cfg := Config{
		Port:                  envOr("SIDELINE_PORT", "8080"),
		DBPath:                envOr("SIDELINE_DB_PATH", "sideline.db"),
		LogLevel:              envOr("SIDELINE_LOG_LEVEL", "info"),
		VAPIDPublicKey:        os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey:       os.Getenv("VAPID_PRIVATE_KEY"),
		Contact:               os.Getenv("WEB_PUSH_CONTACT"),
		CronSecret:            os.Getenv("CRON_SECRET"),
		TimezoneOffsetMinutes: envIntOr("SIDELINE_TZ_OFFSET_MINUTES", -180),
		ToleranceMinutes:      envIntOr("SIDELINE_TOLERANCE_MINUTES", 1),
		LookaheadMinutes:      envIntOr("SIDELINE_LOOKAHEAD_MINUTES", 30),
		ThrottleMillis:        envIntOr("SIDELINE_THROTTLE_MS", 500),
		MaxConcurrentSends:    envIntOr("SIDELINE_MAX_CONCURRENT_SENDS", 8),
		SendTimeoutSeconds:    envIntOr("SIDELINE_SEND_TIMEOUT_SECONDS", 10),
		RunnerEnabled:         envBoolOr("SIDELINE_RUNNER", true),
	}

	var missing []string
	if cfg.VAPIDPublicKey == "" {
		missing = append(missing, "VAPID_PUBLIC_KEY")
	}
	if cfg.VAPIDPrivateKey == "" {
		missing = append(missing, "VAPID_PRIVATE_KEY")
	}
	if cfg.Contact == "" {
		missing = append(missing, "WEB_PUSH_CONTACT")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolOr(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
