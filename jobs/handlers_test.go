package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/fleethire/fleethire/internal/jobs"
)

type recordingMailer struct {
	to      []string
	subject string
	body    string
	err     error
}

func (m *recordingMailer) Send(_ context.Context, to []string, subject, body string) error {
	m.to = to
	m.subject = subject
	m.body = body
	return m.err
}

func testDeps(mailer *recordingMailer) Deps {
	return Deps{
		Logger:  slog.New(slog.DiscardHandler),
		Mailer:  mailer,
		Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry()),
	}
}

func TestHandleSendEmailDeliversPayload(t *testing.T) {
	mailer := &recordingMailer{}
	d := testDeps(mailer)

	task, err := NewSendEmailTask(SendEmailPayload{
		To:      []string{"ops@fleethire.test"},
		Subject: "Weekly report",
		Body:    "utilization figures",
	})
	require.NoError(t, err)

	require.NoError(t, d.handleSendEmail(context.Background(), task))
	require.Equal(t, []string{"ops@fleethire.test"}, mailer.to)
	require.Equal(t, "Weekly report", mailer.subject)
}

func TestHandleSendEmailSkipsRetryOnBadPayload(t *testing.T) {
	d := testDeps(&recordingMailer{})

	task := asynq.NewTask(TaskTypeSendEmail, []byte("{not json"))
	err := d.handleSendEmail(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleSendEmailWithoutMailerIsANoop(t *testing.T) {
	d := testDeps(nil)
	d.Mailer = nil

	task, err := NewSendEmailTask(SendEmailPayload{To: []string{"x@y.test"}, Subject: "s"})
	require.NoError(t, err)
	require.NoError(t, d.handleSendEmail(context.Background(), task))
}

func TestHandleSendEmailSurfacesDeliveryErrors(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("smtp: connection refused")}
	d := testDeps(mailer)

	task, err := NewSendEmailTask(SendEmailPayload{To: []string{"x@y.test"}, Subject: "s"})
	require.NoError(t, err)
	require.Error(t, d.handleSendEmail(context.Background(), task))
}

func TestDefaultCronCoversEveryScanTask(t *testing.T) {
	entries := DefaultCron()

	seen := map[string]bool{}
	for _, e := range entries {
		require.NotEmpty(t, e.Spec)
		require.NotNil(t, e.Task)
		seen[e.Task.Type()] = true
	}
	for _, taskType := range []string{
		TaskConflictScan, TaskOverdueScan, TaskReservationExpiry,
		TaskDailySnapshots, TaskExpiryAlerts, TaskMaintenanceDue,
		TaskRefundRetry, TaskLeaseInvoices, TaskWeeklyReport, TaskProfitability,
	} {
		require.True(t, seen[taskType], "missing cron registration for %s", taskType)
	}
}
