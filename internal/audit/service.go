package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fleethire/fleethire/internal/shared"
)

// RepositoryPort abstracts audit persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, e Entry) error
	Window(ctx context.Context, f TimelineFilters, limit, offset int) ([]Entry, error)
}

const (
	defaultPageSize = 20
	maxPageSize     = 50
	exportLimit     = 10000
)

// Service records and queries the audit trail.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	clock  shared.Clock
}

func NewService(logger *slog.Logger, repo RepositoryPort, clock shared.Clock) *Service {
	if clock == nil {
		clock = shared.RealClock()
	}
	return &Service{logger: logger, repo: repo, clock: clock}
}

// Record appends one entry, taking the actor from the request context.
func (s *Service) Record(ctx context.Context, action, entity, entityID, detail string) error {
	actor := shared.ActorFromContext(ctx)
	name := actor.Name
	if name == "" {
		name = "anonymous"
	}
	return s.repo.Insert(ctx, Entry{
		At:       s.clock.Now().UTC(),
		ActorID:  actor.UserID,
		Actor:    name,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Detail:   detail,
	})
}

// Timeline returns one page of audit entries. The extra row fetched past the
// page boundary drives HasNext without a separate count query.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.Window(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns the full filtered timeline, capped to keep responses sane.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.Window(ctx, filters, exportLimit, 0)
}
