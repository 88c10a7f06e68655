package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fleethire/fleethire/internal/platform/httpx"
	"github.com/fleethire/fleethire/internal/shared"
)

// RepositoryPort defines data access methods for billing records.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*Invoice, error)
	GetByAgreement(ctx context.Context, agreementID int64) (*Invoice, error)
	Create(ctx context.Context, inv Invoice) (int64, error)
	Update(ctx context.Context, inv Invoice) error
	List(ctx context.Context, status string, limit, offset int) ([]Invoice, error)
	NextInvoiceNumber(ctx context.Context) (int64, error)
	CreateRefund(ctx context.Context, refund DepositRefund) (int64, error)
	UpdateRefundStatus(ctx context.Context, id int64, status RefundStatus, gatewayRef string) error
	ListPendingRefunds(ctx context.Context) ([]DepositRefund, error)
	CreatePayment(ctx context.Context, p Payment) (int64, error)
	LatestGatewayPayment(ctx context.Context, agreementID int64) (*Payment, error)
}

// CustomerPort mirrors invoice balances onto the customer record.
type CustomerPort interface {
	AdjustOutstanding(ctx context.Context, id int64, delta float64) error
}

// Service handles invoices, payments and deposit refunds.
type Service struct {
	logger    *slog.Logger
	repo      RepositoryPort
	gateway   PayoutGateway
	customers CustomerPort
	clock     shared.Clock
}

func NewService(logger *slog.Logger, repo RepositoryPort, gateway PayoutGateway, customers CustomerPort, clock shared.Clock) *Service {
	if clock == nil {
		clock = shared.RealClock()
	}
	return &Service{logger: logger, repo: repo, gateway: gateway, customers: customers, clock: clock}
}

// mirrorOutstanding keeps the customer's open balance in step with the
// invoice ledger. The mirror is derived data, so failures only log.
func (s *Service) mirrorOutstanding(ctx context.Context, customerID int64, delta float64) {
	if s.customers == nil || delta == 0 {
		return
	}
	if err := s.customers.AdjustOutstanding(ctx, customerID, delta); err != nil {
		s.logger.Warn("customer outstanding mirror failed",
			slog.Int64("customer_id", customerID), slog.Any("error", err))
	}
}

// UpsertAgreementInvoice creates or refreshes the single invoice attached to
// an agreement, keyed by the agreement id.
func (s *Service) UpsertAgreementInvoice(ctx context.Context, agreementID, customerID int64, total float64) error {
	existing, err := s.repo.GetByAgreement(ctx, agreementID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil {
		delta := total - existing.Total
		existing.Total = total
		if existing.AmountPaid >= total {
			existing.Status = InvoicePaid
		}
		existing.Lines = []InvoiceLine{
			{Description: fmt.Sprintf("Rental agreement %d", agreementID), Amount: total},
		}
		if err := s.repo.Update(ctx, *existing); err != nil {
			return err
		}
		s.mirrorOutstanding(ctx, existing.CustomerID, delta)
		return nil
	}

	seq, err := s.repo.NextInvoiceNumber(ctx)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	_, err = s.repo.Create(ctx, Invoice{
		Number:      fmt.Sprintf("INV-%06d", seq),
		CustomerID:  customerID,
		AgreementID: &agreementID,
		Total:       total,
		Status:      InvoiceUnpaid,
		IssuedAt:    now,
		DueAt:       now.AddDate(0, 0, 14),
		Lines: []InvoiceLine{
			{Description: fmt.Sprintf("Rental agreement %d", agreementID), Amount: total},
		},
	})
	if err != nil {
		return err
	}
	s.mirrorOutstanding(ctx, customerID, total)
	return nil
}

// CreateLeaseInvoice issues an invoice for one lease billing period.
func (s *Service) CreateLeaseInvoice(ctx context.Context, leaseID, customerID int64, amount float64, periodLabel string) (*Invoice, error) {
	seq, err := s.repo.NextInvoiceNumber(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	id, err := s.repo.Create(ctx, Invoice{
		Number:     fmt.Sprintf("INV-%06d", seq),
		CustomerID: customerID,
		LeaseID:    &leaseID,
		Total:      amount,
		Status:     InvoiceUnpaid,
		IssuedAt:   now,
		DueAt:      now.AddDate(0, 0, 7),
		Lines: []InvoiceLine{
			{Description: fmt.Sprintf("Lease installment %s", periodLabel), Amount: amount},
		},
	})
	if err != nil {
		return nil, err
	}
	s.mirrorOutstanding(ctx, customerID, amount)
	return s.repo.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]Invoice, error) {
	return s.repo.List(ctx, status, limit, offset)
}

// RenderPDF returns the invoice as a PDF document.
func (s *Service) RenderPDF(ctx context.Context, id int64) ([]byte, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return RenderInvoicePDF(inv)
}

// RecordPayment applies a payment to an invoice and marks it paid when the
// balance reaches zero.
func (s *Service) RecordPayment(ctx context.Context, invoiceID int64, amount float64, method, gatewayRef string) (*Invoice, error) {
	if amount <= 0 {
		return nil, httpx.Validation("payment amount must be positive")
	}
	inv, err := s.repo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.CreatePayment(ctx, Payment{
		InvoiceID:   &invoiceID,
		AgreementID: inv.AgreementID,
		Amount:      amount,
		Method:      method,
		GatewayRef:  gatewayRef,
		ReceivedAt:  s.clock.Now(),
	}); err != nil {
		return nil, err
	}
	// Only the portion that settles open balance moves the customer mirror.
	applied := amount
	if remaining := inv.Total - inv.AmountPaid; applied > remaining {
		applied = remaining
	}
	inv.AmountPaid += amount
	if inv.AmountPaid >= inv.Total {
		inv.Status = InvoicePaid
	}
	if err := s.repo.Update(ctx, *inv); err != nil {
		return nil, err
	}
	if applied > 0 {
		s.mirrorOutstanding(ctx, inv.CustomerID, -applied)
	}
	return s.repo.Get(ctx, invoiceID)
}

// RefundDeposit pays unapplied deposit back to the customer. The refund row
// is written first; a gateway failure leaves it Pending and surfaces the
// error to the caller, which treats it as advisory.
func (s *Service) RefundDeposit(ctx context.Context, agreementID, customerID int64, amount float64) error {
	refundID, err := s.repo.CreateRefund(ctx, DepositRefund{
		AgreementID: agreementID,
		CustomerID:  customerID,
		Amount:      amount,
		Status:      RefundPending,
		CreatedAt:   s.clock.Now(),
	})
	if err != nil {
		return err
	}

	payment, err := s.repo.LatestGatewayPayment(ctx, agreementID)
	if err != nil {
		return err
	}
	if payment == nil {
		return fmt.Errorf("billing: no gateway payment on agreement %d, refund %d left pending", agreementID, refundID)
	}
	if s.gateway == nil {
		return fmt.Errorf("billing: payout gateway not configured, refund %d left pending", refundID)
	}

	gatewayRef, err := s.gateway.RefundPayment(ctx, payment.GatewayRef, amount)
	if err != nil {
		return err
	}
	return s.repo.UpdateRefundStatus(ctx, refundID, RefundCompleted, gatewayRef)
}

// RetryPendingRefunds re-attempts payouts that previously failed.
func (s *Service) RetryPendingRefunds(ctx context.Context) (int, error) {
	pending, err := s.repo.ListPendingRefunds(ctx)
	if err != nil {
		return 0, err
	}
	completed := 0
	for _, refund := range pending {
		payment, err := s.repo.LatestGatewayPayment(ctx, refund.AgreementID)
		if err != nil {
			return completed, err
		}
		if payment == nil || s.gateway == nil {
			continue
		}
		gatewayRef, err := s.gateway.RefundPayment(ctx, payment.GatewayRef, refund.Amount)
		if err != nil {
			s.logger.Warn("refund retry failed",
				slog.Int64("refund_id", refund.ID), slog.Any("error", err))
			continue
		}
		if err := s.repo.UpdateRefundStatus(ctx, refund.ID, RefundCompleted, gatewayRef); err != nil {
			return completed, err
		}
		completed++
	}
	return completed, nil
}
