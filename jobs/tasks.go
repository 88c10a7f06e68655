package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskTypeSendEmail delivers one transactional email.
	TaskTypeSendEmail = "mail:send"

	// Hourly scans.
	TaskConflictScan      = "reservations:conflict_scan"
	TaskReservationExpiry = "reservations:expiry_scan"
	TaskOverdueScan       = "agreements:overdue_scan"

	// Daily recomputations.
	TaskDailySnapshots = "utilization:daily_snapshots"
	TaskExpiryAlerts   = "fleet:expiry_alerts"
	TaskMaintenanceDue = "maintenance:due_scan"
	TaskRefundRetry    = "billing:refund_retry"
	TaskLeaseInvoices  = "leases:invoice_run"

	// Weekly and monthly aggregates.
	TaskWeeklyReport  = "utilization:weekly_report"
	TaskProfitability = "utilization:profitability"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueDefault)), nil
}

// NewScanTask constructs a payload-free periodic task.
func NewScanTask(taskType string) *asynq.Task {
	return asynq.NewTask(taskType, nil, asynq.Queue(QueueDefault))
}
