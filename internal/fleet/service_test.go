package fleet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleethire/fleethire/internal/platform/httpx"
	"github.com/fleethire/fleethire/internal/shared"
)

type interval struct {
	vehicleID int64
	start     time.Time
	end       time.Time
	status    string
}

type memoryFleetRepo struct {
	vehicles     map[int64]*Vehicle
	statusLogs   []StatusLog
	odometerLogs []OdometerLog
	damageLogs   []DamageLog
	reservations []interval
	agreements   []interval
	nextID       int64
}

func newMemoryFleetRepo() *memoryFleetRepo {
	return &memoryFleetRepo{vehicles: make(map[int64]*Vehicle)}
}

func (r *memoryFleetRepo) Get(ctx context.Context, id int64) (*Vehicle, error) {
	v, ok := r.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *v
	return &copied, nil
}

func (r *memoryFleetRepo) Create(ctx context.Context, v Vehicle) (int64, error) {
	r.nextID++
	v.ID = r.nextID
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	r.vehicles[v.ID] = &v
	return v.ID, nil
}

func (r *memoryFleetRepo) List(ctx context.Context, status string, limit, offset int) ([]Vehicle, error) {
	var out []Vehicle
	for id := int64(1); id <= r.nextID; id++ {
		v, ok := r.vehicles[id]
		if !ok {
			continue
		}
		if status != "" && string(v.Status) != status {
			continue
		}
		out = append(out, *v)
	}
	return out, nil
}

func (r *memoryFleetRepo) ListActive(ctx context.Context) ([]Vehicle, error) {
	var out []Vehicle
	for id := int64(1); id <= r.nextID; id++ {
		if v, ok := r.vehicles[id]; ok && v.Status != StatusDeactivated {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (r *memoryFleetRepo) ListCandidates(ctx context.Context, criteria SearchCriteria) ([]Vehicle, error) {
	var out []Vehicle
	for id := int64(1); id <= r.nextID; id++ {
		v, ok := r.vehicles[id]
		if !ok || v.Status != StatusAvailable || !v.AvailabilityStatus {
			continue
		}
		if criteria.BranchID != nil && v.BranchID != *criteria.BranchID {
			continue
		}
		if criteria.Make != "" && v.Make != criteria.Make {
			continue
		}
		if criteria.Model != "" && v.Model != criteria.Model {
			continue
		}
		out = append(out, *v)
	}
	// lowest odometer first, then id
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Odometer < out[i].Odometer ||
				(out[j].Odometer == out[i].Odometer && out[j].ID < out[i].ID) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (r *memoryFleetRepo) UpdateStatus(ctx context.Context, id int64, status VehicleStatus, available bool) error {
	v, ok := r.vehicles[id]
	if !ok {
		return ErrNotFound
	}
	v.Status = status
	v.AvailabilityStatus = available
	return nil
}

func (r *memoryFleetRepo) UpdateOdometer(ctx context.Context, id int64, reading float64) error {
	v, ok := r.vehicles[id]
	if !ok {
		return ErrNotFound
	}
	v.Odometer = reading
	return nil
}

func (r *memoryFleetRepo) UpdateFuelLevel(ctx context.Context, id int64, level float64) error {
	if v, ok := r.vehicles[id]; ok {
		v.FuelLevel = level
	}
	return nil
}

func (r *memoryFleetRepo) UpdateBookValue(ctx context.Context, id int64, value float64) error {
	if v, ok := r.vehicles[id]; ok {
		v.CurrentBookValue = value
	}
	return nil
}

func (r *memoryFleetRepo) UpdateServiceSchedule(ctx context.Context, id int64, lastService, nextDue *time.Time) error {
	if v, ok := r.vehicles[id]; ok {
		v.LastServiceDate = lastService
		v.NextServiceDue = nextDue
	}
	return nil
}

func (r *memoryFleetRepo) UpdateProfitability(ctx context.Context, id int64, revenue, maintenanceCost, netProfit float64) error {
	if v, ok := r.vehicles[id]; ok {
		v.TotalRevenue = revenue
		v.TotalMaintenanceCost = maintenanceCost
		v.NetProfit = netProfit
	}
	return nil
}

func (r *memoryFleetRepo) AppendStatusLog(ctx context.Context, log StatusLog) error {
	r.statusLogs = append(r.statusLogs, log)
	return nil
}

func (r *memoryFleetRepo) AppendOdometerLog(ctx context.Context, log OdometerLog) error {
	r.odometerLogs = append(r.odometerLogs, log)
	return nil
}

func (r *memoryFleetRepo) AppendDamageLog(ctx context.Context, log DamageLog) error {
	r.damageLogs = append(r.damageLogs, log)
	return nil
}

func (r *memoryFleetRepo) ListStatusLogs(ctx context.Context, vehicleID int64, limit int) ([]StatusLog, error) {
	var out []StatusLog
	for _, l := range r.statusLogs {
		if l.VehicleID == vehicleID {
			out = append(out, l)
		}
	}
	return out, nil
}

func overlaps(a interval, start, end time.Time) bool {
	return (!a.start.After(start) && !a.end.Before(start)) ||
		(!a.start.After(end) && !a.end.Before(end)) ||
		(!a.start.Before(start) && !a.end.After(end))
}

func (r *memoryFleetRepo) CountOverlappingReservations(ctx context.Context, vehicleID int64, start, end time.Time, excludeID int64) (int, error) {
	count := 0
	for _, iv := range r.reservations {
		if iv.vehicleID == vehicleID && iv.status != "Cancelled" && iv.status != "Expired" && overlaps(iv, start, end) {
			count++
		}
	}
	return count, nil
}

func (r *memoryFleetRepo) CountOverlappingAgreements(ctx context.Context, vehicleID int64, start, end time.Time, excludeID int64) (int, error) {
	count := 0
	for _, iv := range r.agreements {
		if iv.vehicleID == vehicleID && iv.status != "Cancelled" && iv.status != "Closed" && overlaps(iv, start, end) {
			count++
		}
	}
	return count, nil
}

func seedVehicle(t *testing.T, repo *memoryFleetRepo, v Vehicle) int64 {
	t.Helper()
	if v.Status == "" {
		v.Status = StatusAvailable
	}
	v.AvailabilityStatus = v.Status.Available()
	id, err := repo.Create(context.Background(), v)
	require.NoError(t, err)
	return id
}

func TestUpdateOdometerRejectsLowerReading(t *testing.T) {
	repo := newMemoryFleetRepo()
	svc := NewService(repo, shared.FixedClock{Instant: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)})
	id := seedVehicle(t, repo, Vehicle{PlateNo: "A-1001", Odometer: 5000})

	require.NoError(t, svc.UpdateOdometer(context.Background(), id, 5200, "Manual"))
	require.NoError(t, svc.UpdateOdometer(context.Background(), id, 5200, "Manual"))

	err := svc.UpdateOdometer(context.Background(), id, 5100, "Manual")
	require.Error(t, err)
	require.True(t, errors.Is(err, httpx.ErrValidation))

	v, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 5200.0, v.Odometer)
	require.Len(t, repo.odometerLogs, 2)
}

func TestUpdateStatusAppendsLog(t *testing.T) {
	repo := newMemoryFleetRepo()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo, shared.FixedClock{Instant: now})
	id := seedVehicle(t, repo, Vehicle{PlateNo: "A-1002"})

	ctx := shared.ContextWithActor(context.Background(), shared.Actor{UserID: 7, Name: "agent"})
	require.NoError(t, svc.UpdateStatus(ctx, id, StatusRentedOut, "Rental Agreement 12", "Rental Agreement", 12))

	v, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusRentedOut, v.Status)
	require.False(t, v.AvailabilityStatus)

	require.Len(t, repo.statusLogs, 1)
	log := repo.statusLogs[0]
	require.Equal(t, StatusAvailable, log.FromStatus)
	require.Equal(t, StatusRentedOut, log.ToStatus)
	require.Equal(t, int64(7), log.ChangedBy)
	require.Equal(t, now, log.ChangedAt)
}

func TestCheckAvailabilityOverlapFixtures(t *testing.T) {
	repo := newMemoryFleetRepo()
	svc := NewService(repo, nil)
	id := seedVehicle(t, repo, Vehicle{PlateNo: "A-1003"})

	base := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	booked := interval{
		vehicleID: id,
		start:     base,
		end:       base.Add(48 * time.Hour),
		status:    "Confirmed",
	}
	repo.reservations = append(repo.reservations, booked)

	cases := []struct {
		name      string
		start     time.Time
		end       time.Time
		available bool
	}{
		{"partial overlap front", base.Add(-12 * time.Hour), base.Add(12 * time.Hour), false},
		{"partial overlap back", base.Add(36 * time.Hour), base.Add(72 * time.Hour), false},
		{"contained", base.Add(6 * time.Hour), base.Add(12 * time.Hour), false},
		{"containing", base.Add(-6 * time.Hour), base.Add(54 * time.Hour), false},
		{"touching end boundary", booked.end, booked.end.Add(24 * time.Hour), false},
		{"touching start boundary", base.Add(-24 * time.Hour), base, false},
		{"disjoint before", base.Add(-48 * time.Hour), base.Add(-time.Hour), true},
		{"disjoint after", booked.end.Add(time.Hour), booked.end.Add(24 * time.Hour), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.CheckAvailability(context.Background(), id, tc.start, tc.end)
			require.NoError(t, err)
			require.Equal(t, tc.available, got)
		})
	}
}

func TestCheckAvailabilityRespectsDerivedFlag(t *testing.T) {
	repo := newMemoryFleetRepo()
	svc := NewService(repo, nil)
	id := seedVehicle(t, repo, Vehicle{PlateNo: "A-1004", Status: StatusUnderMaintenance})

	start := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	available, err := svc.CheckAvailability(context.Background(), id, start, start.Add(24*time.Hour))
	require.NoError(t, err)
	require.False(t, available)
}

func TestCheckAvailabilitySeesLiveAgreements(t *testing.T) {
	repo := newMemoryFleetRepo()
	svc := NewService(repo, nil)
	id := seedVehicle(t, repo, Vehicle{PlateNo: "A-1005"})

	base := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	repo.agreements = append(repo.agreements, interval{vehicleID: id, start: base, end: base.Add(24 * time.Hour), status: "Active"})

	available, err := svc.CheckAvailability(context.Background(), id, base.Add(6*time.Hour), base.Add(30*time.Hour))
	require.NoError(t, err)
	require.False(t, available)

	// closed agreements no longer block
	repo.agreements[0].status = "Closed"
	available, err = svc.CheckAvailability(context.Background(), id, base.Add(6*time.Hour), base.Add(30*time.Hour))
	require.NoError(t, err)
	require.True(t, available)
}

func TestSearchAvailableOrdersByOdometer(t *testing.T) {
	repo := newMemoryFleetRepo()
	svc := NewService(repo, nil)
	seedVehicle(t, repo, Vehicle{PlateNo: "A-2001", Make: "Toyota", Odometer: 90000})
	low := seedVehicle(t, repo, Vehicle{PlateNo: "A-2002", Make: "Toyota", Odometer: 30000})
	seedVehicle(t, repo, Vehicle{PlateNo: "A-2003", Make: "Nissan", Odometer: 10000})

	start := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	vehicles, err := svc.SearchAvailable(context.Background(), SearchCriteria{
		Start: start,
		End:   start.Add(24 * time.Hour),
		Make:  "Toyota",
	})
	require.NoError(t, err)
	require.Len(t, vehicles, 2)
	require.Equal(t, low, vehicles[0].ID)
}

func TestRegisterComputesBookValue(t *testing.T) {
	repo := newMemoryFleetRepo()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(repo, shared.FixedClock{Instant: now})

	purchased := now.AddDate(-2, 0, 0)
	v, err := svc.Register(context.Background(), Vehicle{
		PlateNo:          "A-3001",
		Year:             2023,
		PurchaseCost:     100000,
		PurchaseDate:     &purchased,
		DepreciationRate: 20,
	})
	require.NoError(t, err)
	// two years at 20% straight line
	require.InDelta(t, 60000, v.CurrentBookValue, 100)
}
