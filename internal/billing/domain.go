package billing

import "time"

// InvoiceStatus tracks settlement of an internal invoice.
type InvoiceStatus string

const (
	InvoiceUnpaid InvoiceStatus = "Unpaid"
	InvoicePaid   InvoiceStatus = "Paid"
)

type InvoiceLine struct {
	ID          int64   `json:"id"`
	InvoiceID   int64   `json:"invoice_id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

type Invoice struct {
	ID          int64         `json:"id"`
	Number      string        `json:"number"`
	CustomerID  int64         `json:"customer_id"`
	AgreementID *int64        `json:"agreement_id,omitempty"`
	LeaseID     *int64        `json:"lease_id,omitempty"`
	Total       float64       `json:"total"`
	AmountPaid  float64       `json:"amount_paid"`
	Status      InvoiceStatus `json:"status"`
	IssuedAt    time.Time     `json:"issued_at"`
	DueAt       time.Time     `json:"due_at"`
	Lines       []InvoiceLine `json:"lines,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// RefundStatus tracks a deposit refund through the payout gateway.
type RefundStatus string

const (
	RefundPending   RefundStatus = "Pending"
	RefundCompleted RefundStatus = "Completed"
)

// DepositRefund is a payout of unapplied deposit after an agreement closes.
type DepositRefund struct {
	ID          int64        `json:"id"`
	AgreementID int64        `json:"agreement_id"`
	CustomerID  int64        `json:"customer_id"`
	Amount      float64      `json:"amount"`
	Status      RefundStatus `json:"status"`
	GatewayRef  string       `json:"gateway_ref,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Payment is money received against an invoice or as a deposit. GatewayRef
// is set for online payments and enables gateway refunds later.
type Payment struct {
	ID          int64     `json:"id"`
	AgreementID *int64    `json:"agreement_id,omitempty"`
	InvoiceID   *int64    `json:"invoice_id,omitempty"`
	Amount      float64   `json:"amount"`
	Method      string    `json:"method"`
	GatewayRef  string    `json:"gateway_ref,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}
