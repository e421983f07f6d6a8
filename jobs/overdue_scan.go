package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tebahq/teba/internal/jobs"
	"github.com/tebahq/teba/internal/sales"
)

// OverdueScanJob flips sent sales past their due date to overdue.
type OverdueScanJob struct {
	Sales   *sales.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOverdueScanJob initialises the overdue scan handler.
func NewOverdueScanJob(svc *sales.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueScanJob {
	return &OverdueScanJob{
		Sales:   svc,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the overdue scan.
func (j *OverdueScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sales == nil {
		return errors.New("overdue scan: handler not configured")
	}
	var payload OverdueScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	asOf := j.now()
	if payload.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", payload.AsOf)
		if err != nil {
			return asynq.SkipRetry
		}
		asOf = parsed
	}

	tracker := j.metrics().Track(TaskTypeOverdueScan)
	ids, err := j.Sales.FlagOverdue(ctx, asOf)
	if err != nil {
		j.logger().Error("overdue scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	if len(ids) > 0 {
		j.metrics().AddAlerts("overdue_sale", len(ids))
	}
	j.logger().Info("overdue scan completed",
		slog.Time("as_of", asOf), slog.Int("flagged", len(ids)))
	return tracker.End(nil)
}

func (j *OverdueScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeOverdueScan))
	}
	return slog.Default().With(slog.String("job", TaskTypeOverdueScan))
}

func (j *OverdueScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *OverdueScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
