package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Enqueuer hands a composed message to the mail queue. The worker drains the
// queue through a Mailer.
type Enqueuer interface {
	EnqueueMail(ctx context.Context, to []string, subject, body string) error
}

// Notifier composes the operational notifications the scheduled jobs send.
// Every method is advisory: failures are logged, never propagated.
type Notifier struct {
	logger   *slog.Logger
	enqueue  Enqueuer
	managers []string
}

func NewNotifier(logger *slog.Logger, enqueue Enqueuer, managers []string) *Notifier {
	return &Notifier{logger: logger, enqueue: enqueue, managers: managers}
}

func (n *Notifier) send(ctx context.Context, to []string, subject, body string) {
	if n.enqueue == nil || len(to) == 0 {
		n.logger.Info("notification skipped", slog.String("subject", subject))
		return
	}
	if err := n.enqueue.EnqueueMail(ctx, to, subject, body); err != nil {
		n.logger.Warn("enqueue notification failed",
			slog.String("subject", subject), slog.Any("error", err))
	}
}

// ReservationConflict alerts managers that two confirmed reservations claim
// the same vehicle.
func (n *Notifier) ReservationConflict(ctx context.Context, vehicleID int64, reservationIDs []int64) {
	ids := make([]string, len(reservationIDs))
	for i, id := range reservationIDs {
		ids[i] = fmt.Sprintf("#%d", id)
	}
	subject := fmt.Sprintf("Double booking detected on vehicle %d", vehicleID)
	body := fmt.Sprintf(
		"Reservations %s overlap on vehicle %d within the next 24 hours.\nManual reallocation is required.",
		strings.Join(ids, ", "), vehicleID)
	n.send(ctx, n.managers, subject, body)
}

// AgreementOverdue tells the customer the vehicle is past its return time.
func (n *Notifier) AgreementOverdue(ctx context.Context, customerEmail, plateNo string, agreementID int64, dueAt time.Time) {
	if customerEmail == "" {
		n.logger.Info("overdue notice skipped, customer has no email",
			slog.Int64("agreement_id", agreementID))
		return
	}
	subject := fmt.Sprintf("Vehicle %s return overdue", plateNo)
	body := fmt.Sprintf(
		"Your rental agreement #%d for vehicle %s was due back on %s.\nPlease return the vehicle or contact the branch; late fees apply.",
		agreementID, plateNo, dueAt.Format("Mon, 02 Jan 2006 15:04"))
	n.send(ctx, []string{customerEmail}, subject, body)
}

// DocumentExpiry warns managers about insurance/registration/license expiry.
func (n *Notifier) DocumentExpiry(ctx context.Context, kind, subjectName string, expiresAt time.Time) {
	subject := fmt.Sprintf("%s expiring for %s", kind, subjectName)
	body := fmt.Sprintf("%s for %s expires on %s.", kind, subjectName, expiresAt.Format("2006-01-02"))
	n.send(ctx, n.managers, subject, body)
}

// MaintenanceDue flags vehicles approaching their service date.
func (n *Notifier) MaintenanceDue(ctx context.Context, plateNo string, dueAt time.Time) {
	subject := fmt.Sprintf("Service due for vehicle %s", plateNo)
	body := fmt.Sprintf("Vehicle %s is due for service by %s.", plateNo, dueAt.Format("2006-01-02"))
	n.send(ctx, n.managers, subject, body)
}

// WeeklyUtilizationReport mails the rendered report to managers.
func (n *Notifier) WeeklyUtilizationReport(ctx context.Context, report string) {
	n.send(ctx, n.managers, "Weekly fleet utilization report", report)
}
