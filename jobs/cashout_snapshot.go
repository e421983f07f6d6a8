package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tebahq/teba/internal/cashout"
	jobmetrics "github.com/tebahq/teba/internal/jobs"
)

// CashoutSnapshotJob prefills the daily reconciliation rows per location.
type CashoutSnapshotJob struct {
	Cashout *cashout.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewCashoutSnapshotJob initialises the cashout snapshot handler.
func NewCashoutSnapshotJob(svc *cashout.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *CashoutSnapshotJob {
	return &CashoutSnapshotJob{
		Cashout: svc,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the snapshot. Without an explicit date the job snapshots
// yesterday, so the nightly run closes the day that just ended.
func (j *CashoutSnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Cashout == nil {
		return errors.New("cashout snapshot: handler not configured")
	}
	var payload CashoutSnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	date := j.now().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	if payload.Date != "" {
		parsed, err := time.Parse("2006-01-02", payload.Date)
		if err != nil {
			return asynq.SkipRetry
		}
		date = parsed
	}

	tracker := j.metrics().Track(TaskTypeCashoutSnapshot)
	written, err := j.Cashout.Snapshot(ctx, date)
	if err != nil {
		j.logger().Error("cashout snapshot failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger().Info("cashout snapshot completed",
		slog.Time("date", date), slog.Int("locations", written))
	return tracker.End(nil)
}

func (j *CashoutSnapshotJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeCashoutSnapshot))
	}
	return slog.Default().With(slog.String("job", TaskTypeCashoutSnapshot))
}

func (j *CashoutSnapshotJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *CashoutSnapshotJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
