package rateplans

import (
	"context"
	"fmt"

	"github.com/fleethire/fleethire/internal/platform/httpx"
)

// RepositoryPort defines data access methods for rate plans.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*RatePlan, error)
	Create(ctx context.Context, p RatePlan) (int64, error)
	Update(ctx context.Context, p RatePlan) error
	List(ctx context.Context, activeOnly bool) ([]RatePlan, error)
}

// Service handles rate plan business logic.
type Service struct {
	repo RepositoryPort
}

func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func validate(p RatePlan) error {
	if p.Name == "" {
		return httpx.Validation("rate plan name is required")
	}
	if p.RateType.PeriodDays() == 0 {
		return httpx.Validation("unknown rate type %q", p.RateType)
	}
	if p.BaseRate <= 0 {
		return httpx.Validation("base rate must be positive")
	}
	if p.FreeKm < 0 || p.OveragePerKm < 0 || p.GracePeriodHours < 0 || p.SecurityDeposit < 0 {
		return httpx.Validation("rate plan amounts cannot be negative")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, p RatePlan) (*RatePlan, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	p.Active = true
	id, err := s.repo.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create rate plan: %w", err)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, p RatePlan) (*RatePlan, error) {
	if p.ID == 0 {
		return nil, httpx.Validation("rate plan id is required")
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, p.ID)
}

func (s *Service) Get(ctx context.Context, id int64) (*RatePlan, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]RatePlan, error) {
	return s.repo.List(ctx, activeOnly)
}

// Deactivate retires a plan without touching agreements already priced by it.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	p.Active = false
	return s.repo.Update(ctx, *p)
}
