package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config collects the engine's tunables from the environment. Load it once
// in main after godotenv has run.
type Config struct {
	Port string

	// Holidays blocks whole dates from scheduling (hard violation).
	Holidays []time.Time

	// LeadDays is the minimum lead time: no proposal may start earlier
	// than today plus this many days.
	LeadDays int
	// ProximityBufferHours flags (soft) any slot starting within this many
	// hours of the employee's other work.
	ProximityBufferHours int
	// MaxBumps caps how often a single task may be displaced over its
	// lifetime.
	MaxBumps int
	// BumpProtectionDays shields near-deadline work: a task whose window
	// closes within this many days is never a displacement target.
	BumpProtectionDays int
	// SupervisorDurationMinutes is the fixed length of derived supervisor
	// pairing shifts.
	SupervisorDurationMinutes int

	// RetentionWeeks controls the purge of old runs and their proposals.
	RetentionWeeks int
	// StaleRunAfter is how long a run may sit in status running before it
	// is flagged for human resolution.
	StaleRunAfter time.Duration

	// RunCron triggers scheduled runs; empty disables the timer.
	RunCron string

	// PlatformURL and PlatformKey configure the external submission client.
	PlatformURL string
	PlatformKey string
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                      envOr("PORT", "8000"),
		LeadDays:                  envInt("LEAD_DAYS", 3),
		ProximityBufferHours:      envInt("PROXIMITY_BUFFER_HOURS", 2),
		MaxBumps:                  envInt("MAX_BUMPS", 3),
		BumpProtectionDays:        envInt("BUMP_PROTECTION_DAYS", 2),
		SupervisorDurationMinutes: envInt("SUPERVISOR_DURATION_MINUTES", 120),
		RetentionWeeks:            envInt("RETENTION_WEEKS", 3),
		StaleRunAfter:             time.Duration(envInt("STALE_RUN_MINUTES", 120)) * time.Minute,
		RunCron:                   envOr("RUN_CRON", "0 6 * * *"),
		PlatformURL:               os.Getenv("PLATFORM_URL"),
		PlatformKey:               os.Getenv("PLATFORM_API_KEY"),
	}

	raw := os.Getenv("HOLIDAYS")
	if raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			d, err := time.Parse("2006-01-02", part)
			if err != nil {
				return nil, fmt.Errorf("invalid holiday %q: %w", part, err)
			}
			cfg.Holidays = append(cfg.Holidays, d)
		}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
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
