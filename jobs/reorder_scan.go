package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	jobmetrics "github.com/tebahq/teba/internal/jobs"
	"github.com/tebahq/teba/internal/stock"
)

// ReorderScanJob looks for products at or below their reorder level and
// mails the list to the operations inbox.
type ReorderScanJob struct {
	Stock      *stock.Service
	Client     *Client
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	AlertEmail string
}

// NewReorderScanJob initialises the reorder scan handler.
func NewReorderScanJob(svc *stock.Service, client *Client, logger *slog.Logger, metrics *jobmetrics.Metrics, alertEmail string) *ReorderScanJob {
	return &ReorderScanJob{
		Stock:      svc,
		Client:     client,
		Logger:     logger,
		Metrics:    metrics,
		AlertEmail: alertEmail,
	}
}

// Handle executes the reorder scan.
func (j *ReorderScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Stock == nil {
		return errors.New("reorder scan: handler not configured")
	}
	var payload ReorderScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	recipient := payload.AlertEmail
	if recipient == "" {
		recipient = j.AlertEmail
	}

	tracker := j.metrics().Track(TaskTypeReorderScan)
	items, err := j.Stock.LowStock(ctx)
	if err != nil {
		j.logger().Error("reorder scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	if len(items) == 0 {
		j.logger().Info("reorder scan completed, nothing below reorder level")
		return tracker.End(nil)
	}

	j.metrics().AddAlerts("low_stock", len(items))
	j.logger().Warn("products below reorder level", slog.Int("count", len(items)))

	if j.Client == nil || recipient == "" {
		return tracker.End(nil)
	}
	if _, err := j.Client.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      recipient,
		Subject: fmt.Sprintf("Low stock alert: %d products need reordering", len(items)),
		Body:    formatLowStockBody(items),
	}); err != nil {
		j.logger().Error("enqueue low stock email", slog.Any("error", err))
		return tracker.End(err)
	}
	return tracker.End(nil)
}

// formatLowStockBody renders one line per product with grouped quantities so
// the numbers read well at a glance.
func formatLowStockBody(items []stock.LowStockItem) string {
	printer := message.NewPrinter(language.English)
	var b strings.Builder
	b.WriteString("The following products are at or below their reorder level:\n\n")
	for _, item := range items {
		printer.Fprintf(&b, "  %s (%s): %d on hand, reorder at %d\n",
			item.Name, item.SKU, item.TotalStock, item.ReorderLevel)
	}
	return b.String()
}

func (j *ReorderScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeReorderScan))
	}
	return slog.Default().With(slog.String("job", TaskTypeReorderScan))
}

func (j *ReorderScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
