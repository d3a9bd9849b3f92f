package tasks

import (
	"time"

	"github.com/mrlokans/librarian/internal/config"
)

// Config sizes the worker pool. Per-queue attempts, backoff and timeout come
// from each task's Config method.
type Config struct {
	Workers         int
	ReleaseAfter    time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig runs two workers, releases tasks stuck for 15 minutes and
// purges finished tasks hourly.
func DefaultConfig() Config {
	return Config{
		Workers:         2,
		ReleaseAfter:    15 * time.Minute,
		CleanupInterval: time.Hour,
	}
}

// FromSettings overlays the non-zero settings on DefaultConfig.
func FromSettings(s config.Tasks) Config {
	cfg := DefaultConfig()
	if s.Workers > 0 {
		cfg.Workers = s.Workers
	}
	if s.ReleaseAfter > 0 {
		cfg.ReleaseAfter = s.ReleaseAfter
	}
	if s.CleanupInterval > 0 {
		cfg.CleanupInterval = s.CleanupInterval
	}
	return cfg
}
