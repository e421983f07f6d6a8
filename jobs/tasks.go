package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeOverdueScan flips sent sales past their due date to overdue.
	TaskTypeOverdueScan = "sales:overdue_scan"
	// TaskTypeReorderScan raises an alert for products at or below their
	// reorder level.
	TaskTypeReorderScan = "stock:reorder_scan"
	// TaskTypeCashoutSnapshot prefills the daily reconciliation rows.
	TaskTypeCashoutSnapshot = "cashout:snapshot"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// OverdueScanPayload carries an optional as-of date (YYYY-MM-DD). Empty
// means today.
type OverdueScanPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// ReorderScanPayload carries the alert recipient.
type ReorderScanPayload struct {
	AlertEmail string `json:"alert_email,omitempty"`
}

// CashoutSnapshotPayload carries an optional snapshot date (YYYY-MM-DD).
// Empty means yesterday.
type CashoutSnapshotPayload struct {
	Date string `json:"date,omitempty"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewOverdueScanTask constructs an overdue scan task.
func NewOverdueScanTask(payload OverdueScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeOverdueScan, data), nil
}

// NewReorderScanTask constructs a reorder scan task.
func NewReorderScanTask(payload ReorderScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeReorderScan, data), nil
}

// NewCashoutSnapshotTask constructs a cashout snapshot task.
func NewCashoutSnapshotTask(payload CashoutSnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeCashoutSnapshot, data), nil
}

// Mailer delivers transactional email over SMTP.
type Mailer struct {
	Host   string
	Port   int
	From   string
	Logger *slog.Logger
}

// HandleSendEmail processes TaskTypeSendEmail tasks.
func (m *Mailer) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if m == nil || m.Host == "" {
		slog.Default().Info("mailer not configured, dropping email",
			slog.String("to", payload.To), slog.String("subject", payload.Subject))
		return nil
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.From, payload.To, payload.Subject, payload.Body)
	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	if err := smtp.SendMail(addr, nil, m.From, []string{payload.To}, []byte(msg)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if m.Logger != nil {
		m.Logger.Info("email sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	}
	return nil
}
