package core

// scheduler.go runs periodic maintenance on a cron schedule:
//  1. Purge run history older than the retention window
//  2. Remove spooled uploads left behind by a crash
//
// Failures are logged and retried on the next tick.

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JonMunkholm/sheetimport/internal/source"
)

// RetentionConfig configures the maintenance scheduler.
type RetentionConfig struct {
	HistoryDays   int           // Days to keep run history (default: 30)
	SpoolMaxAge   time.Duration // Age after which orphaned spool files are removed (default: 24h)
	CheckInterval time.Duration // How often to run when Schedule is empty (default: 1h)

	// Schedule is a cron expression ("0 3 * * *") or descriptor ("@daily").
	Schedule string
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.HistoryDays <= 0 {
		c.HistoryDays = 30
	}
	if c.SpoolMaxAge <= 0 {
		c.SpoolMaxAge = 24 * time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Hour
	}
	if c.Schedule == "" {
		c.Schedule = "@every " + c.CheckInterval.String()
	}
	return c
}

// StartRetentionScheduler runs maintenance immediately, then on the
// configured schedule until ctx is cancelled. It blocks, and returns an
// error only for an invalid schedule.
func (s *Service) StartRetentionScheduler(ctx context.Context, cfg RetentionConfig) error {
	cfg = cfg.withDefaults()

	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule, func() {
		s.runRetentionJob(ctx, cfg, time.Now())
	}); err != nil {
		return fmt.Errorf("retention schedule %q: %w", cfg.Schedule, err)
	}

	slog.Info("retention scheduler started",
		"history_days", cfg.HistoryDays,
		"spool_max_age", cfg.SpoolMaxAge,
		"schedule", cfg.Schedule,
	)

	s.runRetentionJob(ctx, cfg, time.Now())
	c.Start()
	<-ctx.Done()

	// Wait for a job that is already running.
	<-c.Stop().Done()
	slog.Info("retention scheduler stopped")
	return nil
}

func (s *Service) runRetentionJob(ctx context.Context, cfg RetentionConfig, now time.Time) {
	start := time.Now()

	cutoff := now.AddDate(0, 0, -cfg.HistoryDays)
	purged, err := s.PurgeHistory(ctx, cutoff)
	if err != nil {
		slog.Error("purge run history failed", "error", err)
	} else if purged > 0 {
		slog.Info("purged run history", "runs_purged", purged, "cutoff", cutoff)
	}

	removed := s.cleanSpool(now.Add(-cfg.SpoolMaxAge))
	if removed > 0 {
		slog.Info("removed orphaned spool files", "files_removed", removed)
	}

	slog.Debug("retention job completed", "duration_ms", time.Since(start).Milliseconds())
}

// cleanSpool removes spooled uploads last modified before cutoff.
func (s *Service) cleanSpool(cutoff time.Time) int {
	entries, err := os.ReadDir(s.cfg.SpoolDir)
	if err != nil {
		slog.Warn("read spool directory", "error", err)
		return 0
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), source.SpoolPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.SpoolDir, e.Name())); err == nil {
			removed++
		}
	}
	return removed
}
