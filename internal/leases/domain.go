package leases

import "time"

// ContractStatus is the lifecycle state of a lease contract.
type ContractStatus string

const (
	ContractActive      ContractStatus = "Active"
	ContractCancelled   ContractStatus = "Cancelled"
	ContractTransferred ContractStatus = "Ownership Transferred"
)

// ScheduleStatus marks whether a billing period has been invoiced yet.
// The monthly job keys its idempotence on this.
type ScheduleStatus string

const (
	SchedulePending  ScheduleStatus = "Pending"
	ScheduleInvoiced ScheduleStatus = "Invoiced"
)

// ScheduleRow is one billing period of a lease contract.
type ScheduleRow struct {
	ID          int64          `json:"id"`
	ContractID  int64          `json:"contract_id"`
	PeriodStart time.Time      `json:"period_start"`
	PeriodEnd   time.Time      `json:"period_end"`
	Amount      float64        `json:"amount"`
	Status      ScheduleStatus `json:"status"`
	InvoiceID   *int64         `json:"invoice_id,omitempty"`
}

// Contract is a long-term lease, optionally lease-to-own.
type Contract struct {
	ID             int64          `json:"id"`
	VehicleID      int64          `json:"vehicle_id"`
	CustomerID     int64          `json:"customer_id"`
	Status         ContractStatus `json:"status"`
	MonthlyPayment float64        `json:"monthly_payment"`
	BillingDay     int            `json:"billing_day"`
	TermMonths     int            `json:"term_months"`
	LeaseToOwn     bool           `json:"lease_to_own"`
	StartDate      time.Time      `json:"start_date"`
	AmountPaid     float64        `json:"amount_paid"`
	Schedule       []ScheduleRow  `json:"schedule,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TotalValue is the contract value over its full term.
func (c Contract) TotalValue() float64 {
	return c.MonthlyPayment * float64(c.TermMonths)
}

// Outstanding is the unpaid remainder of the contract value.
func (c Contract) Outstanding() float64 {
	return c.TotalValue() - c.AmountPaid
}
