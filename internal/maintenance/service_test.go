package maintenance

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleethire/fleethire/internal/fleet"
)

type memoryJobRepo struct {
	jobs   map[int64]*Job
	nextID int64
}

func newMemoryJobRepo() *memoryJobRepo {
	return &memoryJobRepo{jobs: make(map[int64]*Job)}
}

func (r *memoryJobRepo) Get(ctx context.Context, id int64) (*Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *j
	return &copied, nil
}

func (r *memoryJobRepo) Create(ctx context.Context, j Job) (int64, error) {
	r.nextID++
	j.ID = r.nextID
	r.jobs[j.ID] = &j
	return j.ID, nil
}

func (r *memoryJobRepo) Update(ctx context.Context, j Job) error {
	if _, ok := r.jobs[j.ID]; !ok {
		return ErrNotFound
	}
	r.jobs[j.ID] = &j
	return nil
}

func (r *memoryJobRepo) List(ctx context.Context, status string, vehicleID int64, limit, offset int) ([]Job, error) {
	var out []Job
	for id := int64(1); id <= r.nextID; id++ {
		if j, ok := r.jobs[id]; ok {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *memoryJobRepo) SumCostByVehicle(ctx context.Context, vehicleID int64, from, to time.Time) (float64, error) {
	var total float64
	for _, j := range r.jobs {
		if j.VehicleID == vehicleID && j.Status == JobCompleted && j.CompletedAt != nil &&
			!j.CompletedAt.Before(from) && j.CompletedAt.Before(to) {
			total += j.Cost
		}
	}
	return total, nil
}

func (r *memoryJobRepo) SumDowntimeByVehicleDay(ctx context.Context, vehicleID int64, day time.Time) (float64, error) {
	next := day.AddDate(0, 0, 1)
	var total float64
	for _, j := range r.jobs {
		if j.VehicleID == vehicleID && j.CompletedAt != nil &&
			!j.CompletedAt.Before(day) && j.CompletedAt.Before(next) {
			total += j.DowntimeHours
		}
	}
	return total, nil
}

func (r *memoryJobRepo) ListScheduledBefore(ctx context.Context, cutoff time.Time) ([]Job, error) {
	var out []Job
	for id := int64(1); id <= r.nextID; id++ {
		if j, ok := r.jobs[id]; ok && j.Status == JobScheduled && j.ScheduledAt.Before(cutoff) {
			out = append(out, *j)
		}
	}
	return out, nil
}

type fakeFleet struct {
	vehicles map[int64]*fleet.Vehicle
}

func (f *fakeFleet) Get(ctx context.Context, id int64) (*fleet.Vehicle, error) {
	v, ok := f.vehicles[id]
	if !ok {
		return nil, fleet.ErrNotFound
	}
	copied := *v
	return &copied, nil
}

func (f *fakeFleet) UpdateStatus(ctx context.Context, vehicleID int64, status fleet.VehicleStatus, reason, refType string, refID int64) error {
	f.vehicles[vehicleID].Status = status
	return nil
}

func (f *fakeFleet) UpdateServiceSchedule(ctx context.Context, vehicleID int64, lastService time.Time, nextDue *time.Time) error {
	f.vehicles[vehicleID].LastServiceDate = &lastService
	f.vehicles[vehicleID].NextServiceDue = nextDue
	return nil
}

type harness struct {
	repo  *memoryJobRepo
	fleet *fakeFleet
	clock *mutableClock
	svc   *Service
}

type mutableClock struct{ now time.Time }

func (c *mutableClock) Now() time.Time { return c.now }

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo: newMemoryJobRepo(),
		fleet: &fakeFleet{vehicles: map[int64]*fleet.Vehicle{
			1: {ID: 1, PlateNo: "A-1", Status: fleet.StatusAvailable},
		}},
		clock: &mutableClock{now: time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)},
	}
	h.svc = NewService(slog.New(slog.DiscardHandler), h.repo, h.fleet, h.clock)
	return h
}

func TestJobLifecycle(t *testing.T) {
	h := newHarness(t)

	j, err := h.svc.Schedule(context.Background(), Job{
		VehicleID:   1,
		Description: "60k service",
		ScheduledAt: h.clock.now.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, JobScheduled, j.Status)
	require.Equal(t, KindService, j.Kind)

	_, err = h.svc.Complete(context.Background(), j.ID, 100, nil)
	require.Error(t, err, "completing a scheduled job must fail")

	started, err := h.svc.Start(context.Background(), j.ID, 60120)
	require.NoError(t, err)
	require.Equal(t, JobInProgress, started.Status)
	require.Equal(t, fleet.StatusUnderMaintenance, h.fleet.vehicles[1].Status)

	h.clock.now = h.clock.now.Add(6 * time.Hour)
	nextDue := h.clock.now.AddDate(0, 6, 0)
	completed, err := h.svc.Complete(context.Background(), j.ID, 450, &nextDue)
	require.NoError(t, err)
	require.Equal(t, JobCompleted, completed.Status)
	require.Equal(t, 6.0, completed.DowntimeHours)
	require.Equal(t, 450.0, completed.Cost)
	require.Equal(t, fleet.StatusAvailable, h.fleet.vehicles[1].Status)
	require.NotNil(t, h.fleet.vehicles[1].NextServiceDue)
}

func TestRepairJobFlagsAccidentStatus(t *testing.T) {
	h := newHarness(t)
	j, err := h.svc.Schedule(context.Background(), Job{
		VehicleID: 1, Kind: KindRepair, Description: "rear bumper",
		ScheduledAt: h.clock.now,
	})
	require.NoError(t, err)

	_, err = h.svc.Start(context.Background(), j.ID, 60120)
	require.NoError(t, err)
	require.Equal(t, fleet.StatusAccidentRepair, h.fleet.vehicles[1].Status)
}

func TestCancelOnlyFromScheduled(t *testing.T) {
	h := newHarness(t)
	j, err := h.svc.Schedule(context.Background(), Job{
		VehicleID: 1, Description: "tyres", ScheduledAt: h.clock.now,
	})
	require.NoError(t, err)

	_, err = h.svc.Start(context.Background(), j.ID, 0)
	require.NoError(t, err)

	_, err = h.svc.Cancel(context.Background(), j.ID)
	require.Error(t, err, "in-progress jobs cannot be cancelled")
}

func TestMonthlyCost(t *testing.T) {
	h := newHarness(t)
	for _, cost := range []float64{450, 120} {
		j, err := h.svc.Schedule(context.Background(), Job{
			VehicleID: 1, Description: "work", ScheduledAt: h.clock.now,
		})
		require.NoError(t, err)
		_, err = h.svc.Start(context.Background(), j.ID, 0)
		require.NoError(t, err)
		_, err = h.svc.Complete(context.Background(), j.ID, cost, nil)
		require.NoError(t, err)
	}

	total, err := h.svc.MonthlyCost(context.Background(), 1, h.clock.now)
	require.NoError(t, err)
	require.Equal(t, 570.0, total)
}

func TestDueScan(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Schedule(context.Background(), Job{
		VehicleID: 1, Description: "due soon", ScheduledAt: h.clock.now.Add(3 * 24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = h.svc.Schedule(context.Background(), Job{
		VehicleID: 1, Description: "far out", ScheduledAt: h.clock.now.Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)

	due, err := h.svc.DueScan(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "due soon", due[0].Description)
}
