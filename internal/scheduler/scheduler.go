// Package scheduler triggers the daily usage, reorder and notification run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cafestock/internal/metrics"
	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
)

// DefaultSchedule runs every morning before opening, in the business timezone.
const DefaultSchedule = "0 5 * * *"

const (
	stepUsage   = "usage"
	stepReorder = "reorder"
	stepNotify  = "notify"

	statusOK      = "ok"
	statusError   = "error"
	statusSkipped = "skipped"

	actorScheduler = "scheduler"
)

var errNilPipeline = errors.New("scheduler: pipeline is nil")

// Pipeline is the subset of inventory.Service driven by the daily run.
type Pipeline interface {
	Today() inventory.BusinessDate
	RecomputeUsage(ctx context.Context, date inventory.BusinessDate, mode inventory.WriteMode) (inventory.UsageResult, error)
	RecomputeReorder(ctx context.Context) (inventory.ReorderResult, error)
	SendReorderNotification(ctx context.Context, request inventory.NotificationRequest) (inventory.NotificationResult, error)
}

// Config configures the daily run.
type Config struct {
	Schedule   string
	Location   *time.Location
	Recipients []string
	Cooldown   time.Duration
}

// DailyReport summarizes one daily run.
type DailyReport struct {
	UsageDate    inventory.BusinessDate
	Usage        inventory.UsageResult
	Reorder      inventory.ReorderResult
	Notification inventory.NotificationResult
	Notified     bool
}

// Scheduler wraps a cron instance bound to one Pipeline.
type Scheduler struct {
	cron     *cron.Cron
	pipeline Pipeline
	config   Config
	logger   *zap.Logger
}

// New validates the configuration and returns a stopped scheduler.
func New(pipeline Pipeline, config Config, logger *zap.Logger) (*Scheduler, error) {
	if pipeline == nil {
		return nil, errNilPipeline
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(config.Schedule) == "" {
		config.Schedule = DefaultSchedule
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", config.Schedule, err)
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(config.Location)),
		pipeline: pipeline,
		config:   config,
		logger:   logger,
	}, nil
}

// Start registers the daily job and starts the cron loop.
func (scheduler *Scheduler) Start(ctx context.Context) error {
	_, err := scheduler.cron.AddFunc(scheduler.config.Schedule, func() {
		if _, runErr := scheduler.RunDaily(ctx); runErr != nil {
			scheduler.logger.Error("daily run failed", zap.Error(runErr))
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: add job: %w", err)
	}
	scheduler.cron.Start()
	scheduler.logger.Info("scheduler started", zap.String("schedule", scheduler.config.Schedule), zap.String("timezone", scheduler.config.Location.String()))
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (scheduler *Scheduler) Stop() {
	stopped := scheduler.cron.Stop()
	<-stopped.Done()
	scheduler.logger.Info("scheduler stopped")
}

// Entries exposes the registered cron entries.
func (scheduler *Scheduler) Entries() []cron.Entry {
	return scheduler.cron.Entries()
}

// RunDaily replaces yesterday's usage, recomputes the reorder snapshot and sends the
// guarded notification. A usage or reorder failure stops the run.
func (scheduler *Scheduler) RunDaily(ctx context.Context) (DailyReport, error) {
	report := DailyReport{UsageDate: scheduler.pipeline.Today().AddDays(-1)}

	usage, err := scheduler.pipeline.RecomputeUsage(ctx, report.UsageDate, inventory.WriteModeReplace)
	scheduler.recordStep(stepUsage, err)
	if err != nil {
		return report, fmt.Errorf("scheduler: usage for %s: %w", report.UsageDate, err)
	}
	report.Usage = usage

	reorder, err := scheduler.pipeline.RecomputeReorder(ctx)
	scheduler.recordStep(stepReorder, err)
	if err != nil {
		return report, fmt.Errorf("scheduler: reorder: %w", err)
	}
	report.Reorder = reorder

	if len(scheduler.config.Recipients) == 0 {
		metrics.ScheduledRuns.WithLabelValues(stepNotify, statusSkipped).Inc()
		scheduler.logger.Info("daily run notification skipped: no recipients configured")
		return report, nil
	}
	notification, err := scheduler.pipeline.SendReorderNotification(ctx, inventory.NotificationRequest{
		Actor:      actorScheduler,
		Recipients: scheduler.config.Recipients,
		Force:      inventory.ForceNone,
		Cooldown:   scheduler.config.Cooldown,
	})
	scheduler.recordStep(stepNotify, err)
	if err != nil {
		return report, fmt.Errorf("scheduler: notify: %w", err)
	}
	report.Notification = notification
	report.Notified = notification.Sent
	scheduler.logger.Info("daily run completed",
		zap.String("usage_date", report.UsageDate.String()),
		zap.Int("usage_rows", usage.RowsWritten),
		zap.Int("flagged", reorder.Flagged()),
		zap.Bool("notified", report.Notified),
		zap.String("notify_reason", string(notification.Decision.Reason)),
	)
	return report, nil
}

func (scheduler *Scheduler) recordStep(step string, err error) {
	status := statusOK
	if err != nil {
		status = statusError
	}
	metrics.ScheduledRuns.WithLabelValues(step, status).Inc()
}
