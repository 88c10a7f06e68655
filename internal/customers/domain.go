package customers

import "time"

// CustomerType distinguishes retail renters from corporate lessees.
type CustomerType string

const (
	TypeIndividual CustomerType = "Individual"
	TypeCorporate  CustomerType = "Corporate"
)

type Customer struct {
	ID               int64        `json:"id"`
	Name             string       `json:"name"`
	Type             CustomerType `json:"type"`
	Email            string       `json:"email,omitempty"`
	Phone            string       `json:"phone,omitempty"`
	Address          string       `json:"address,omitempty"`
	NationalID       string       `json:"national_id,omitempty"`
	LicenseNo        string       `json:"license_no,omitempty"`
	LicenseExpiry    *time.Time   `json:"license_expiry,omitempty"`
	TaxID            string       `json:"tax_id,omitempty"`
	ContactPerson    string       `json:"contact_person,omitempty"`
	Blacklisted      bool         `json:"blacklisted"`
	BlacklistReason  string       `json:"blacklist_reason,omitempty"`
	KYCVerified      bool         `json:"kyc_verified"`
	LifetimeRentals  int          `json:"lifetime_rentals"`
	LifetimeRevenue  float64      `json:"lifetime_revenue"`
	OutstandingTotal float64      `json:"outstanding_total"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Eligibility is the outcome of a pre-booking screen.
type Eligibility struct {
	Eligible bool     `json:"eligible"`
	Reasons  []string `json:"reasons,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
