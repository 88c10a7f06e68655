package billing

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleethire/fleethire/internal/shared"
)

type memoryBillingRepo struct {
	invoices   map[int64]*Invoice
	refunds    map[int64]*DepositRefund
	payments   []Payment
	nextInv    int64
	nextRefund int64
	nextSeq    int64
}

func newMemoryBillingRepo() *memoryBillingRepo {
	return &memoryBillingRepo{
		invoices: make(map[int64]*Invoice),
		refunds:  make(map[int64]*DepositRefund),
	}
}

func (r *memoryBillingRepo) Get(ctx context.Context, id int64) (*Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *inv
	return &copied, nil
}

func (r *memoryBillingRepo) GetByAgreement(ctx context.Context, agreementID int64) (*Invoice, error) {
	for id := int64(1); id <= r.nextInv; id++ {
		if inv, ok := r.invoices[id]; ok && inv.AgreementID != nil && *inv.AgreementID == agreementID {
			copied := *inv
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryBillingRepo) Create(ctx context.Context, inv Invoice) (int64, error) {
	r.nextInv++
	inv.ID = r.nextInv
	r.invoices[inv.ID] = &inv
	return inv.ID, nil
}

func (r *memoryBillingRepo) Update(ctx context.Context, inv Invoice) error {
	if _, ok := r.invoices[inv.ID]; !ok {
		return ErrNotFound
	}
	r.invoices[inv.ID] = &inv
	return nil
}

func (r *memoryBillingRepo) List(ctx context.Context, status string, limit, offset int) ([]Invoice, error) {
	var out []Invoice
	for id := int64(1); id <= r.nextInv; id++ {
		if inv, ok := r.invoices[id]; ok && (status == "" || string(inv.Status) == status) {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *memoryBillingRepo) NextInvoiceNumber(ctx context.Context) (int64, error) {
	r.nextSeq++
	return r.nextSeq, nil
}

func (r *memoryBillingRepo) CreateRefund(ctx context.Context, refund DepositRefund) (int64, error) {
	r.nextRefund++
	refund.ID = r.nextRefund
	r.refunds[refund.ID] = &refund
	return refund.ID, nil
}

func (r *memoryBillingRepo) UpdateRefundStatus(ctx context.Context, id int64, status RefundStatus, gatewayRef string) error {
	refund, ok := r.refunds[id]
	if !ok {
		return errors.New("refund not found")
	}
	refund.Status = status
	refund.GatewayRef = gatewayRef
	return nil
}

func (r *memoryBillingRepo) ListPendingRefunds(ctx context.Context) ([]DepositRefund, error) {
	var out []DepositRefund
	for id := int64(1); id <= r.nextRefund; id++ {
		if refund, ok := r.refunds[id]; ok && refund.Status == RefundPending {
			out = append(out, *refund)
		}
	}
	return out, nil
}

func (r *memoryBillingRepo) CreatePayment(ctx context.Context, p Payment) (int64, error) {
	p.ID = int64(len(r.payments) + 1)
	r.payments = append(r.payments, p)
	return p.ID, nil
}

func (r *memoryBillingRepo) LatestGatewayPayment(ctx context.Context, agreementID int64) (*Payment, error) {
	for i := len(r.payments) - 1; i >= 0; i-- {
		p := r.payments[i]
		if p.AgreementID != nil && *p.AgreementID == agreementID && p.GatewayRef != "" {
			return &p, nil
		}
	}
	return nil, nil
}

type fakeGateway struct {
	refunded []float64
	fail     bool
}

func (g *fakeGateway) RefundPayment(ctx context.Context, paymentRef string, amount float64) (string, error) {
	if g.fail {
		return "", errors.New("gateway down")
	}
	g.refunded = append(g.refunded, amount)
	return "rfnd_test_1", nil
}

type fakeCustomerBalance struct {
	deltas map[int64]float64
}

func (f *fakeCustomerBalance) AdjustOutstanding(ctx context.Context, id int64, delta float64) error {
	if f.deltas == nil {
		f.deltas = map[int64]float64{}
	}
	f.deltas[id] += delta
	return nil
}

func newBillingService(repo *memoryBillingRepo, gw PayoutGateway) *Service {
	clock := shared.FixedClock{Instant: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)}
	return NewService(slog.New(slog.DiscardHandler), repo, gw, &fakeCustomerBalance{}, clock)
}

func agID(id int64) *int64 { return &id }

func TestUpsertAgreementInvoiceIsIdempotent(t *testing.T) {
	repo := newMemoryBillingRepo()
	svc := newBillingService(repo, nil)

	require.NoError(t, svc.UpsertAgreementInvoice(context.Background(), 42, 7, 300))
	require.NoError(t, svc.UpsertAgreementInvoice(context.Background(), 42, 7, 325))

	require.Len(t, repo.invoices, 1)
	inv, err := repo.GetByAgreement(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, 325.0, inv.Total)
	require.Equal(t, "INV-000001", inv.Number)
	require.Equal(t, InvoiceUnpaid, inv.Status)
}

func TestRecordPaymentSettlesInvoice(t *testing.T) {
	repo := newMemoryBillingRepo()
	svc := newBillingService(repo, nil)
	require.NoError(t, svc.UpsertAgreementInvoice(context.Background(), 42, 7, 300))
	inv, err := repo.GetByAgreement(context.Background(), 42)
	require.NoError(t, err)

	partial, err := svc.RecordPayment(context.Background(), inv.ID, 100, "cash", "")
	require.NoError(t, err)
	require.Equal(t, InvoiceUnpaid, partial.Status)

	settled, err := svc.RecordPayment(context.Background(), inv.ID, 200, "card", "pay_abc")
	require.NoError(t, err)
	require.Equal(t, InvoicePaid, settled.Status)
	require.Len(t, repo.payments, 2)
}

func TestInvoiceFlowMirrorsCustomerOutstanding(t *testing.T) {
	repo := newMemoryBillingRepo()
	balances := &fakeCustomerBalance{}
	clock := shared.FixedClock{Instant: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewService(slog.New(slog.DiscardHandler), repo, nil, balances, clock)

	require.NoError(t, svc.UpsertAgreementInvoice(context.Background(), 42, 7, 300))
	require.Equal(t, 300.0, balances.deltas[7])

	// Re-upserting moves the balance by the difference only.
	require.NoError(t, svc.UpsertAgreementInvoice(context.Background(), 42, 7, 325))
	require.Equal(t, 325.0, balances.deltas[7])

	inv, err := repo.GetByAgreement(context.Background(), 42)
	require.NoError(t, err)
	_, err = svc.RecordPayment(context.Background(), inv.ID, 125, "cash", "")
	require.NoError(t, err)
	require.Equal(t, 200.0, balances.deltas[7])

	// Overpayment settles the invoice without driving the mirror negative.
	_, err = svc.RecordPayment(context.Background(), inv.ID, 250, "card", "pay_xyz")
	require.NoError(t, err)
	require.Equal(t, 0.0, balances.deltas[7])

	lease, err := svc.CreateLeaseInvoice(context.Background(), 9, 7, 500, "2025-07")
	require.NoError(t, err)
	require.Equal(t, 500.0, balances.deltas[7])
	require.Equal(t, InvoiceUnpaid, lease.Status)
}

func TestRefundDepositThroughGateway(t *testing.T) {
	repo := newMemoryBillingRepo()
	gw := &fakeGateway{}
	svc := newBillingService(repo, gw)

	_, err := repo.CreatePayment(context.Background(), Payment{
		AgreementID: agID(42), Amount: 150, Method: "card", GatewayRef: "pay_abc",
	})
	require.NoError(t, err)

	require.NoError(t, svc.RefundDeposit(context.Background(), 42, 7, 150))
	require.Equal(t, []float64{150}, gw.refunded)
	require.Equal(t, RefundCompleted, repo.refunds[1].Status)
	require.Equal(t, "rfnd_test_1", repo.refunds[1].GatewayRef)
}

func TestRefundDepositLeavesPendingRowOnFailure(t *testing.T) {
	repo := newMemoryBillingRepo()
	gw := &fakeGateway{fail: true}
	svc := newBillingService(repo, gw)

	_, err := repo.CreatePayment(context.Background(), Payment{
		AgreementID: agID(42), Amount: 150, Method: "card", GatewayRef: "pay_abc",
	})
	require.NoError(t, err)

	err = svc.RefundDeposit(context.Background(), 42, 7, 150)
	require.Error(t, err)
	require.Equal(t, RefundPending, repo.refunds[1].Status)

	// cash-only agreements also leave a pending row
	err = svc.RefundDeposit(context.Background(), 99, 8, 80)
	require.Error(t, err)
	require.Equal(t, RefundPending, repo.refunds[2].Status)
}

func TestRetryPendingRefunds(t *testing.T) {
	repo := newMemoryBillingRepo()
	gw := &fakeGateway{fail: true}
	svc := newBillingService(repo, gw)

	_, err := repo.CreatePayment(context.Background(), Payment{
		AgreementID: agID(42), Amount: 150, Method: "card", GatewayRef: "pay_abc",
	})
	require.NoError(t, err)
	_ = svc.RefundDeposit(context.Background(), 42, 7, 150)
	require.Equal(t, RefundPending, repo.refunds[1].Status)

	gw.fail = false
	completed, err := svc.RetryPendingRefunds(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, completed)
	require.Equal(t, RefundCompleted, repo.refunds[1].Status)
}

func TestRenderInvoicePDF(t *testing.T) {
	inv := &Invoice{
		Number:     "INV-000007",
		CustomerID: 7,
		Total:      325,
		AmountPaid: 100,
		IssuedAt:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		DueAt:      time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC),
		Lines: []InvoiceLine{
			{Description: "Rental agreement 42", Amount: 300},
			{Description: "Fuel", Amount: 25},
		},
	}
	doc, err := RenderInvoicePDF(inv)
	require.NoError(t, err)
	require.NotEmpty(t, doc)
	require.Equal(t, "%PDF", string(doc[:4]))
}
