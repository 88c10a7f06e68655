package customers

import (
	"context"
	"fmt"
	"time"

	"github.com/fleethire/fleethire/internal/platform/httpx"
	"github.com/fleethire/fleethire/internal/shared"
)

// RepositoryPort defines data access methods for customers.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*Customer, error)
	Create(ctx context.Context, c Customer) (int64, error)
	Update(ctx context.Context, c Customer) error
	List(ctx context.Context, search string, limit, offset int) ([]Customer, error)
	SetBlacklist(ctx context.Context, id int64, blacklisted bool, reason string) error
	AddLifetimeTotals(ctx context.Context, id int64, rentals int, revenue float64) error
	AddOutstanding(ctx context.Context, id int64, delta float64) error
	ListLicenseExpiring(ctx context.Context, before time.Time) ([]Customer, error)
}

// Service handles customer business logic.
type Service struct {
	repo  RepositoryPort
	clock shared.Clock
}

func NewService(repo RepositoryPort, clock shared.Clock) *Service {
	if clock == nil {
		clock = shared.RealClock()
	}
	return &Service{repo: repo, clock: clock}
}

func (s *Service) Register(ctx context.Context, c Customer) (*Customer, error) {
	if c.Name == "" {
		return nil, httpx.Validation("customer name is required")
	}
	switch c.Type {
	case TypeIndividual, TypeCorporate:
	case "":
		c.Type = TypeIndividual
	default:
		return nil, httpx.Validation("unknown customer type %q", c.Type)
	}
	if c.Type == TypeIndividual && c.LicenseNo == "" {
		return nil, httpx.Validation("individual customers require a driving license number")
	}
	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, c Customer) (*Customer, error) {
	if c.ID == 0 {
		return nil, httpx.Validation("customer id is required")
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, c.ID)
}

func (s *Service) List(ctx context.Context, search string, limit, offset int) ([]Customer, error) {
	filters := shared.ListFilters{Search: search, Limit: limit, Offset: offset}
	filters.Clamp()
	return s.repo.List(ctx, filters.Search, filters.Limit, filters.Offset)
}

func (s *Service) Blacklist(ctx context.Context, id int64, reason string) error {
	if reason == "" {
		return httpx.Validation("blacklist reason is required")
	}
	return s.repo.SetBlacklist(ctx, id, true, reason)
}

func (s *Service) Unblacklist(ctx context.Context, id int64) error {
	return s.repo.SetBlacklist(ctx, id, false, "")
}

// CheckEligibility screens a customer, and the named driver when one is set,
// ahead of a booking that starts at pickup. Blacklisting and an expired
// driving license block the booking; missing KYC only raises a warning.
func (s *Service) CheckEligibility(ctx context.Context, customerID int64, driverID *int64, pickup time.Time) (*Eligibility, error) {
	c, err := s.repo.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	out := &Eligibility{Eligible: true}
	s.screen(c, "customer", c.Type == TypeIndividual, pickup, out)
	if !c.KYCVerified {
		out.Warnings = append(out.Warnings, "KYC verification is pending")
	}
	if driverID != nil && *driverID != customerID {
		d, err := s.repo.Get(ctx, *driverID)
		if err != nil {
			return nil, err
		}
		// Whoever drives must hold a valid license, company records included.
		s.screen(d, "driver", true, pickup, out)
	}
	return out, nil
}

func (s *Service) screen(c *Customer, role string, licenseRequired bool, pickup time.Time, out *Eligibility) {
	if c.Blacklisted {
		out.Eligible = false
		reason := fmt.Sprintf("%s is blacklisted", role)
		if c.BlacklistReason != "" {
			reason = fmt.Sprintf("%s is blacklisted: %s", role, c.BlacklistReason)
		}
		out.Reasons = append(out.Reasons, reason)
	}
	if !licenseRequired {
		return
	}
	if c.LicenseExpiry == nil {
		out.Eligible = false
		out.Reasons = append(out.Reasons, fmt.Sprintf("%s's driving license expiry date is missing", role))
	} else if c.LicenseExpiry.Before(pickup) {
		out.Eligible = false
		out.Reasons = append(out.Reasons,
			fmt.Sprintf("%s's driving license expires %s, before pickup", role, c.LicenseExpiry.Format("2006-01-02")))
	}
}

// ListLicenseExpiring returns individual customers whose license expires
// before the cutoff, for the expiry alert job.
func (s *Service) ListLicenseExpiring(ctx context.Context, before time.Time) ([]Customer, error) {
	return s.repo.ListLicenseExpiring(ctx, before)
}

// RecordClosedRental folds a closed agreement into the customer's lifetime totals.
func (s *Service) RecordClosedRental(ctx context.Context, id int64, revenue float64) error {
	return s.repo.AddLifetimeTotals(ctx, id, 1, revenue)
}

// AdjustOutstanding moves the customer's open balance by delta.
func (s *Service) AdjustOutstanding(ctx context.Context, id int64, delta float64) error {
	return s.repo.AddOutstanding(ctx, id, delta)
}
