package utilization

import (
	"context"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fleethire/fleethire/internal/agreements"
	"github.com/fleethire/fleethire/internal/fleet"
	"github.com/fleethire/fleethire/internal/shared"
)

type snapKey struct {
	vehicleID int64
	date      time.Time
}

type memorySnapshotRepo struct {
	nextID    int64
	snapshots map[snapKey]*Snapshot
	plates    map[int64]string
}

func newMemorySnapshotRepo() *memorySnapshotRepo {
	return &memorySnapshotRepo{snapshots: map[snapKey]*Snapshot{}, plates: map[int64]string{}}
}

func (m *memorySnapshotRepo) Upsert(_ context.Context, s Snapshot) error {
	key := snapKey{s.VehicleID, s.Date}
	if cur, ok := m.snapshots[key]; ok {
		s.ID = cur.ID
	} else {
		m.nextID++
		s.ID = m.nextID
	}
	m.snapshots[key] = &s
	return nil
}

func (m *memorySnapshotRepo) Get(_ context.Context, vehicleID int64, date time.Time) (*Snapshot, error) {
	s, ok := m.snapshots[snapKey{vehicleID, date}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memorySnapshotRepo) ListByVehicle(_ context.Context, vehicleID int64, from, to time.Time) ([]Snapshot, error) {
	var out []Snapshot
	for key, s := range m.snapshots {
		if key.vehicleID == vehicleID && !s.Date.Before(from) && s.Date.Before(to) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memorySnapshotRepo) AggregateRange(_ context.Context, from, to time.Time) ([]VehicleWeekly, error) {
	byVehicle := map[int64]*VehicleWeekly{}
	for _, s := range m.snapshots {
		if s.Date.Before(from) || !s.Date.Before(to) {
			continue
		}
		w, ok := byVehicle[s.VehicleID]
		if !ok {
			w = &VehicleWeekly{VehicleID: s.VehicleID, PlateNo: m.plates[s.VehicleID]}
			byVehicle[s.VehicleID] = w
		}
		w.AvgUtilization += s.UtilizationPct
		w.RentedHours += s.RentedHours
		w.Revenue += s.Revenue
		w.Days++
	}
	var out []VehicleWeekly
	for _, w := range byVehicle {
		w.AvgUtilization /= float64(w.Days)
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgUtilization != out[j].AvgUtilization {
			return out[i].AvgUtilization > out[j].AvgUtilization
		}
		return out[i].VehicleID < out[j].VehicleID
	})
	return out, nil
}

type fakeUtilFleet struct {
	vehicles      []fleet.Vehicle
	profitability map[int64][2]float64
}

func (f *fakeUtilFleet) ListOperational(_ context.Context) ([]fleet.Vehicle, error) {
	return f.vehicles, nil
}

func (f *fakeUtilFleet) RecordProfitability(_ context.Context, vehicleID int64, revenue, maintenanceCost float64) error {
	if f.profitability == nil {
		f.profitability = map[int64][2]float64{}
	}
	f.profitability[vehicleID] = [2]float64{revenue, maintenanceCost}
	return nil
}

type fakeUtilAgreements struct {
	live    map[int64][]agreements.Agreement
	revenue map[int64]float64
}

func (f *fakeUtilAgreements) ListLiveOverlapping(_ context.Context, vehicleID int64, from, to time.Time) ([]agreements.Agreement, error) {
	var out []agreements.Agreement
	for _, a := range f.live[vehicleID] {
		end := a.EndAt
		if a.ActualReturnAt != nil {
			end = *a.ActualReturnAt
		}
		if a.StartAt.Before(to) && end.After(from) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeUtilAgreements) RevenueBetween(_ context.Context, vehicleID int64, _, _ time.Time) (float64, error) {
	return f.revenue[vehicleID], nil
}

type fakeUtilMaintenance struct {
	downtime map[int64]float64
	cost     map[int64]float64
}

func (f *fakeUtilMaintenance) DowntimeOn(_ context.Context, vehicleID int64, _ time.Time) (float64, error) {
	return f.downtime[vehicleID], nil
}

func (f *fakeUtilMaintenance) MonthlyCost(_ context.Context, vehicleID int64, _ time.Time) (float64, error) {
	return f.cost[vehicleID], nil
}

type utilHarness struct {
	svc         *Service
	repo        *memorySnapshotRepo
	fleet       *fakeUtilFleet
	agreements  *fakeUtilAgreements
	maintenance *fakeUtilMaintenance
	redis       *miniredis.Miniredis
	clock       *shared.FixedClock
}

func newUtilHarness(t *testing.T, now time.Time) *utilHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	h := &utilHarness{
		repo: newMemorySnapshotRepo(),
		fleet: &fakeUtilFleet{vehicles: []fleet.Vehicle{
			{ID: 1, PlateNo: "KA-01-0001", Status: fleet.StatusAvailable},
			{ID: 2, PlateNo: "KA-01-0002", Status: fleet.StatusRentedOut},
		}},
		agreements:  &fakeUtilAgreements{live: map[int64][]agreements.Agreement{}, revenue: map[int64]float64{}},
		maintenance: &fakeUtilMaintenance{downtime: map[int64]float64{}, cost: map[int64]float64{}},
		redis:       mr,
		clock:       &shared.FixedClock{Instant: now},
	}
	h.repo.plates[1] = "KA-01-0001"
	h.repo.plates[2] = "KA-01-0002"
	logger := slog.New(slog.DiscardHandler)
	cache := NewCache(client, time.Minute)
	h.svc = NewService(logger, h.repo, h.fleet, h.agreements, h.maintenance, cache, h.clock)
	return h
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSnapshotVehicleSplitsTheDay(t *testing.T) {
	now := time.Date(2026, 5, 20, 23, 0, 0, 0, time.UTC)
	h := newUtilHarness(t, now)

	// Rented 08:00 to 18:00, two hours in the workshop.
	h.agreements.live[1] = []agreements.Agreement{{
		VehicleID: 1,
		Status:    agreements.StatusActive,
		StartAt:   time.Date(2026, 5, 20, 8, 0, 0, 0, time.UTC),
		EndAt:     time.Date(2026, 5, 20, 18, 0, 0, 0, time.UTC),
	}}
	h.maintenance.downtime[1] = 2
	h.agreements.revenue[1] = 325

	snap, err := h.svc.SnapshotVehicle(context.Background(), 1, now)
	require.NoError(t, err)
	require.Equal(t, 10.0, snap.RentedHours)
	require.Equal(t, 2.0, snap.MaintenanceHours)
	require.Equal(t, 12.0, snap.IdleHours)
	require.InDelta(t, 41.67, snap.UtilizationPct, 0.01)
	require.Equal(t, 325.0, snap.Revenue)
}

func TestSnapshotVehicleClampsMultiDayRentals(t *testing.T) {
	now := time.Date(2026, 5, 20, 23, 0, 0, 0, time.UTC)
	h := newUtilHarness(t, now)

	h.agreements.live[1] = []agreements.Agreement{{
		VehicleID: 1,
		Status:    agreements.StatusActive,
		StartAt:   day(2026, 5, 18),
		EndAt:     day(2026, 5, 25),
	}}

	snap, err := h.svc.SnapshotVehicle(context.Background(), 1, now)
	require.NoError(t, err)
	require.Equal(t, 24.0, snap.RentedHours)
	require.Equal(t, 0.0, snap.IdleHours)
	require.Equal(t, 100.0, snap.UtilizationPct)
}

func TestSnapshotIsIdempotentPerVehicleDay(t *testing.T) {
	now := time.Date(2026, 5, 20, 23, 0, 0, 0, time.UTC)
	h := newUtilHarness(t, now)
	h.agreements.revenue[1] = 100

	first, err := h.svc.SnapshotVehicle(context.Background(), 1, now)
	require.NoError(t, err)

	h.agreements.revenue[1] = 150
	second, err := h.svc.SnapshotVehicle(context.Background(), 1, now)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 150.0, second.Revenue)
	require.Len(t, h.repo.snapshots, 1)
}

func TestSnapshotFleetCoversEveryVehicle(t *testing.T) {
	now := time.Date(2026, 5, 20, 23, 0, 0, 0, time.UTC)
	h := newUtilHarness(t, now)

	n, err := h.svc.SnapshotFleet(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, h.repo.snapshots, 2)
}

func TestWeeklyReportRanksByUtilization(t *testing.T) {
	now := time.Date(2026, 5, 21, 6, 0, 0, 0, time.UTC)
	h := newUtilHarness(t, now)

	for d := 15; d <= 20; d++ {
		require.NoError(t, h.repo.Upsert(context.Background(), Snapshot{
			VehicleID: 1, Date: day(2026, 5, d), RentedHours: 6, UtilizationPct: 25, Revenue: 100,
		}))
		require.NoError(t, h.repo.Upsert(context.Background(), Snapshot{
			VehicleID: 2, Date: day(2026, 5, d), RentedHours: 18, UtilizationPct: 75, Revenue: 400,
		}))
	}

	rows, body, err := h.svc.WeeklyReport(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(2), rows[0].VehicleID)
	require.Equal(t, 75.0, rows[0].AvgUtilization)
	require.Equal(t, 2400.0, rows[0].Revenue)
	require.Contains(t, body, "KA-01-0002")
	require.Contains(t, body, "Weekly fleet utilization")
}

func TestFleetDashboardUsesCache(t *testing.T) {
	now := time.Date(2026, 5, 21, 6, 0, 0, 0, time.UTC)
	h := newUtilHarness(t, now)

	require.NoError(t, h.repo.Upsert(context.Background(), Snapshot{
		VehicleID: 1, Date: day(2026, 5, 20), RentedHours: 12, UtilizationPct: 50, Revenue: 200,
	}))

	first, err := h.svc.FleetDashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.VehicleCount)
	require.Equal(t, 200.0, first.TotalRevenue)
	require.True(t, h.redis.Exists(dashboardKey))

	// The cached copy is served until a snapshot run invalidates it.
	require.NoError(t, h.repo.Upsert(context.Background(), Snapshot{
		VehicleID: 2, Date: day(2026, 5, 20), RentedHours: 6, UtilizationPct: 25, Revenue: 100,
	}))
	cached, err := h.svc.FleetDashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, cached.VehicleCount)

	_, err = h.svc.SnapshotVehicle(context.Background(), 2, day(2026, 5, 20))
	require.NoError(t, err)
	fresh, err := h.svc.FleetDashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, fresh.VehicleCount)
}

func TestRecomputeProfitability(t *testing.T) {
	now := time.Date(2026, 5, 31, 23, 0, 0, 0, time.UTC)
	h := newUtilHarness(t, now)
	h.agreements.revenue[1] = 5000
	h.agreements.revenue[2] = 1200
	h.maintenance.cost[1] = 800

	n, err := h.svc.RecomputeProfitability(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, [2]float64{5000, 800}, h.fleet.profitability[1])
	require.Equal(t, [2]float64{1200, 0}, h.fleet.profitability[2])
}
