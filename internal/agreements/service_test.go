package agreements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleethire/fleethire/internal/customers"
	"github.com/fleethire/fleethire/internal/fleet"
	"github.com/fleethire/fleethire/internal/platform/httpx"
	"github.com/fleethire/fleethire/internal/rateplans"
)

type memoryAgreementRepo struct {
	agreements map[int64]*Agreement
	charges    map[int64][]Charge
	nextID     int64
}

func newMemoryAgreementRepo() *memoryAgreementRepo {
	return &memoryAgreementRepo{
		agreements: make(map[int64]*Agreement),
		charges:    make(map[int64][]Charge),
	}
}

func (r *memoryAgreementRepo) Get(ctx context.Context, id int64) (*Agreement, error) {
	a, ok := r.agreements[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *a
	copied.Charges = append([]Charge(nil), r.charges[id]...)
	return &copied, nil
}

func (r *memoryAgreementRepo) Create(ctx context.Context, a Agreement) (int64, error) {
	r.nextID++
	a.ID = r.nextID
	r.agreements[a.ID] = &a
	return a.ID, nil
}

func (r *memoryAgreementRepo) Update(ctx context.Context, a Agreement) error {
	if _, ok := r.agreements[a.ID]; !ok {
		return ErrNotFound
	}
	a.Charges = nil
	r.agreements[a.ID] = &a
	return nil
}

func (r *memoryAgreementRepo) List(ctx context.Context, status string, limit, offset int) ([]Agreement, error) {
	var out []Agreement
	for id := int64(1); id <= r.nextID; id++ {
		if a, ok := r.agreements[id]; ok && (status == "" || string(a.Status) == status) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memoryAgreementRepo) ListOverdue(ctx context.Context, now time.Time) ([]Agreement, error) {
	var out []Agreement
	for id := int64(1); id <= r.nextID; id++ {
		a, ok := r.agreements[id]
		if !ok {
			continue
		}
		if (a.Status == StatusActive || a.Status == StatusDueForReturn) && a.EndAt.Before(now) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memoryAgreementRepo) AppendCharge(ctx context.Context, c Charge) error {
	r.charges[c.AgreementID] = append(r.charges[c.AgreementID], c)
	return nil
}

func (r *memoryAgreementRepo) ListCharges(ctx context.Context, agreementID int64) ([]Charge, error) {
	return append([]Charge(nil), r.charges[agreementID]...), nil
}

func (r *memoryAgreementRepo) ListLiveOverlapping(ctx context.Context, vehicleID int64, from, to time.Time) ([]Agreement, error) {
	var out []Agreement
	for _, a := range r.agreements {
		if a.VehicleID != vehicleID || a.Status == StatusDraft || a.Status == StatusCancelled {
			continue
		}
		end := a.EndAt
		if a.ActualReturnAt != nil {
			end = *a.ActualReturnAt
		}
		if a.StartAt.Before(to) && end.After(from) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memoryAgreementRepo) SumRevenueByVehicle(ctx context.Context, vehicleID int64, from, to time.Time) (float64, error) {
	var total float64
	for _, a := range r.agreements {
		if a.VehicleID != vehicleID || a.Status != StatusClosed || a.ActualReturnAt == nil {
			continue
		}
		if !a.ActualReturnAt.Before(from) && a.ActualReturnAt.Before(to) {
			total += a.GrandTotal
		}
	}
	return total, nil
}

type fakeFleet struct {
	vehicles    map[int64]*fleet.Vehicle
	statuses    []fleet.VehicleStatus
	unavailable map[int64]bool
}

func (f *fakeFleet) Get(ctx context.Context, id int64) (*fleet.Vehicle, error) {
	v, ok := f.vehicles[id]
	if !ok {
		return nil, fleet.ErrNotFound
	}
	copied := *v
	return &copied, nil
}

func (f *fakeFleet) CheckAvailability(ctx context.Context, vehicleID int64, start, end time.Time) (bool, error) {
	if f.unavailable[vehicleID] {
		return false, nil
	}
	v, ok := f.vehicles[vehicleID]
	return ok && v.Status.Available(), nil
}

func (f *fakeFleet) UpdateStatus(ctx context.Context, vehicleID int64, status fleet.VehicleStatus, reason, refType string, refID int64) error {
	f.vehicles[vehicleID].Status = status
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeFleet) UpdateOdometer(ctx context.Context, vehicleID int64, reading float64, source string) error {
	f.vehicles[vehicleID].Odometer = reading
	return nil
}

func (f *fakeFleet) UpdateFuelLevel(ctx context.Context, vehicleID int64, level float64) error {
	f.vehicles[vehicleID].FuelLevel = level
	return nil
}

type fakeCustomers struct {
	eligibility       customers.Eligibility
	driverEligibility *customers.Eligibility
	closedRevenue     []float64
}

func (f *fakeCustomers) CheckEligibility(ctx context.Context, customerID int64, driverID *int64, pickup time.Time) (*customers.Eligibility, error) {
	if driverID != nil && f.driverEligibility != nil {
		out := *f.driverEligibility
		return &out, nil
	}
	out := f.eligibility
	return &out, nil
}

func (f *fakeCustomers) RecordClosedRental(ctx context.Context, id int64, revenue float64) error {
	f.closedRevenue = append(f.closedRevenue, revenue)
	return nil
}

type fakePlans struct {
	plans map[int64]*rateplans.RatePlan
}

func (f *fakePlans) Get(ctx context.Context, id int64) (*rateplans.RatePlan, error) {
	p, ok := f.plans[id]
	if !ok {
		return nil, rateplans.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

type fakeBilling struct {
	invoices int
	refunds  []float64
	fail     bool
}

func (f *fakeBilling) UpsertAgreementInvoice(ctx context.Context, agreementID, customerID int64, total float64) error {
	if f.fail {
		return errors.New("billing unavailable")
	}
	f.invoices++
	return nil
}

func (f *fakeBilling) RefundDeposit(ctx context.Context, agreementID, customerID int64, amount float64) error {
	if f.fail {
		return errors.New("billing unavailable")
	}
	f.refunds = append(f.refunds, amount)
	return nil
}

type fakeSnapshots struct {
	recorded int
}

func (f *fakeSnapshots) RecordAgreementClosure(ctx context.Context, vehicleID int64, closedAt time.Time, revenue float64) error {
	f.recorded++
	return nil
}

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

type harness struct {
	repo      *memoryAgreementRepo
	fleet     *fakeFleet
	customers *fakeCustomers
	billing   *fakeBilling
	snapshots *fakeSnapshots
	clock     *stepClock
	svc       *Service
}

func newHarness(t *testing.T, plan rateplans.RatePlan) *harness {
	t.Helper()
	h := &harness{
		repo: newMemoryAgreementRepo(),
		fleet: &fakeFleet{vehicles: map[int64]*fleet.Vehicle{
			1: {ID: 1, PlateNo: "A-9000", Status: fleet.StatusAvailable, AvailabilityStatus: true, Odometer: 900},
		}},
		customers: &fakeCustomers{eligibility: customers.Eligibility{Eligible: true}},
		billing:   &fakeBilling{},
		snapshots: &fakeSnapshots{},
		clock:     &stepClock{now: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)},
	}
	plan.ID = 1
	h.svc = NewService(slog.New(slog.DiscardHandler), h.repo, h.fleet, h.customers,
		&fakePlans{plans: map[int64]*rateplans.RatePlan{1: &plan}},
		h.billing, h.snapshots, h.clock, DefaultPricingConfig())
	return h
}

func dailyPlan() rateplans.RatePlan {
	return rateplans.RatePlan{
		Name:             "Standard Daily",
		RateType:         rateplans.RateDaily,
		BaseRate:         100,
		FreeKm:           200,
		OveragePerKm:     0.5,
		GracePeriodHours: 2,
		SecurityDeposit:  150,
	}
}

func (h *harness) draft(t *testing.T) *Agreement {
	t.Helper()
	a, err := h.svc.Create(context.Background(), Agreement{
		VehicleID:  1,
		CustomerID: 1,
		RatePlanID: 1,
		StartAt:    h.clock.now,
		EndAt:      h.clock.now.Add(72 * time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, a.Status)
	return a
}

func TestCreateSnapshotsPlan(t *testing.T) {
	h := newHarness(t, dailyPlan())
	a := h.draft(t)
	require.Equal(t, 100.0, a.BaseRate)
	require.Equal(t, rateplans.RateDaily, a.RateType)
	require.Equal(t, 200.0, a.FreeKm)
	require.Equal(t, 150.0, a.DepositHeld)
	require.Equal(t, 3.0, a.PlannedDays)
	require.Equal(t, 300.0, a.GrandTotal)
}

func TestCreateRejectsIneligibleCustomer(t *testing.T) {
	h := newHarness(t, dailyPlan())
	h.customers.eligibility = customers.Eligibility{Eligible: false, Reasons: []string{"blacklisted"}}
	_, err := h.svc.Create(context.Background(), Agreement{
		VehicleID: 1, CustomerID: 1, RatePlanID: 1,
		StartAt: h.clock.now, EndAt: h.clock.now.Add(24 * time.Hour),
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, httpx.ErrValidation))
}

func TestCreateRejectsBookedWindowForWalkIn(t *testing.T) {
	h := newHarness(t, dailyPlan())
	h.fleet.unavailable = map[int64]bool{1: true}

	_, err := h.svc.Create(context.Background(), Agreement{
		VehicleID: 1, CustomerID: 1, RatePlanID: 1,
		StartAt: h.clock.now, EndAt: h.clock.now.Add(24 * time.Hour),
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, httpx.ErrValidation))

	// A conversion keeps its reservation's hold on the window.
	resID := int64(5)
	a, err := h.svc.Create(context.Background(), Agreement{
		ReservationID: &resID, VehicleID: 1, CustomerID: 1, RatePlanID: 1,
		StartAt: h.clock.now, EndAt: h.clock.now.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, a.Status)
}

func TestCreateRejectsIneligibleDriver(t *testing.T) {
	h := newHarness(t, dailyPlan())
	h.customers.driverEligibility = &customers.Eligibility{
		Eligible: false, Reasons: []string{"driver's driving license expires 2025-06-01, before pickup"},
	}
	driverID := int64(2)
	_, err := h.svc.Create(context.Background(), Agreement{
		VehicleID: 1, CustomerID: 1, DriverID: &driverID, RatePlanID: 1,
		StartAt: h.clock.now, EndAt: h.clock.now.Add(24 * time.Hour),
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, httpx.ErrValidation))
}

func TestStartRental(t *testing.T) {
	h := newHarness(t, dailyPlan())
	a := h.draft(t)

	_, err := h.svc.StartRental(context.Background(), a.ID, nil, ptr(80))
	require.Error(t, err, "missing odometer reading must fail")

	started, err := h.svc.StartRental(context.Background(), a.ID, ptr(1000), ptr(80))
	require.NoError(t, err)
	require.Equal(t, StatusActive, started.Status)
	require.Equal(t, fleet.StatusRentedOut, h.fleet.vehicles[1].Status)
	require.Equal(t, 1000.0, h.fleet.vehicles[1].Odometer)
	require.Equal(t, 1, h.billing.invoices)

	_, err = h.svc.StartRental(context.Background(), a.ID, ptr(1000), ptr(80))
	require.Error(t, err, "double start must fail")
}

func TestStartRentalToleratesInvoiceFailure(t *testing.T) {
	h := newHarness(t, dailyPlan())
	a := h.draft(t)
	h.billing.fail = true

	started, err := h.svc.StartRental(context.Background(), a.ID, ptr(1000), ptr(80))
	require.NoError(t, err)
	require.Equal(t, StatusActive, started.Status)
}

func TestReturnVehicleWorkedExample(t *testing.T) {
	h := newHarness(t, dailyPlan())
	a := h.draft(t)
	_, err := h.svc.StartRental(context.Background(), a.ID, ptr(1000), ptr(80))
	require.NoError(t, err)

	h.clock.now = a.EndAt
	returned, err := h.svc.ReturnVehicle(context.Background(), a.ID, ptr(1250), ptr(80))
	require.NoError(t, err)

	require.Equal(t, StatusReturned, returned.Status)
	require.Equal(t, 250.0, returned.KmDriven)
	require.Equal(t, 50.0, returned.OverageKm)
	require.Equal(t, 25.0, returned.OverageAmount)
	require.Equal(t, 300.0, returned.RentalAmount)
	require.Equal(t, 325.0, returned.GrandTotal)
	require.Empty(t, returned.Charges)
	require.False(t, returned.IsOverdue)

	require.Equal(t, fleet.StatusAvailable, h.fleet.vehicles[1].Status)
	require.Equal(t, 1250.0, h.fleet.vehicles[1].Odometer)
	require.Equal(t, 80.0, h.fleet.vehicles[1].FuelLevel)
}

func TestReturnVehicleRejectsLowerOdometer(t *testing.T) {
	h := newHarness(t, dailyPlan())
	a := h.draft(t)
	_, err := h.svc.StartRental(context.Background(), a.ID, ptr(1000), ptr(80))
	require.NoError(t, err)

	_, err = h.svc.ReturnVehicle(context.Background(), a.ID, ptr(900), ptr(80))
	require.Error(t, err)
	require.True(t, errors.Is(err, httpx.ErrValidation))
}

func TestReturnVehicleFuelShortfall(t *testing.T) {
	h := newHarness(t, dailyPlan())
	a := h.draft(t)
	_, err := h.svc.StartRental(context.Background(), a.ID, ptr(1000), ptr(80))
	require.NoError(t, err)

	h.clock.now = a.EndAt
	returned, err := h.svc.ReturnVehicle(context.Background(), a.ID, ptr(1100), ptr(60))
	require.NoError(t, err)

	require.Len(t, returned.Charges, 1)
	require.Equal(t, ChargeFuel, returned.Charges[0].Kind)
	require.Equal(t, 20.0, returned.Charges[0].Amount)
}

func TestReturnVehicleLateFee(t *testing.T) {
	h := newHarness(t, dailyPlan())
	a := h.draft(t)
	_, err := h.svc.StartRental(context.Background(), a.ID, ptr(1000), ptr(80))
	require.NoError(t, err)

	h.clock.now = a.EndAt.Add(5 * time.Hour)
	returned, err := h.svc.ReturnVehicle(context.Background(), a.ID, ptr(1100), ptr(80))
	require.NoError(t, err)

	require.True(t, returned.IsOverdue)
	require.Len(t, returned.Charges, 1)
	require.Equal(t, ChargeLateFee, returned.Charges[0].Kind)
	require.Equal(t, 30.0, returned.Charges[0].Amount)
}

func TestCloseBlockedByOutstanding(t *testing.T) {
	h := newHarness(t, dailyPlan())
	a := h.draft(t)
	_, err := h.svc.StartRental(context.Background(), a.ID, ptr(1000), ptr(80))
	require.NoError(t, err)
	h.clock.now = a.EndAt
	returned, err := h.svc.ReturnVehicle(context.Background(), a.ID, ptr(1250), ptr(80))
	require.NoError(t, err)

	// pay everything except 50
	_, err = h.svc.RecordPayment(context.Background(), a.ID, returned.GrandTotal-50, false)
	require.NoError(t, err)

	result, err := h.svc.CloseAgreement(context.Background(), a.ID)
	require.NoError(t, err)
	require.False(t, result.Closed)
	require.Equal(t, 50.0, result.AmountDue)

	after, err := h.svc.Get(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReturned, after.Status)
}

func TestCloseRefundsDepositAndRecordsSnapshot(t *testing.T) {
	h := newHarness(t, dailyPlan())
	a := h.draft(t)
	_, err := h.svc.StartRental(context.Background(), a.ID, ptr(1000), ptr(80))
	require.NoError(t, err)
	h.clock.now = a.EndAt
	returned, err := h.svc.ReturnVehicle(context.Background(), a.ID, ptr(1250), ptr(80))
	require.NoError(t, err)

	_, err = h.svc.RecordPayment(context.Background(), a.ID, returned.GrandTotal, false)
	require.NoError(t, err)

	result, err := h.svc.CloseAgreement(context.Background(), a.ID)
	require.NoError(t, err)
	require.True(t, result.Closed)
	require.Equal(t, 150.0, result.DepositRefund)
	require.Equal(t, []float64{150}, h.billing.refunds)
	require.Equal(t, 1, h.snapshots.recorded)
	require.Equal(t, []float64{returned.GrandTotal}, h.customers.closedRevenue)

	after, err := h.svc.Get(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, after.Status)
}

func TestCloseToleratesRefundFailure(t *testing.T) {
	h := newHarness(t, dailyPlan())
	a := h.draft(t)
	_, err := h.svc.StartRental(context.Background(), a.ID, ptr(1000), ptr(80))
	require.NoError(t, err)
	h.clock.now = a.EndAt
	returned, err := h.svc.ReturnVehicle(context.Background(), a.ID, ptr(1250), ptr(80))
	require.NoError(t, err)
	_, err = h.svc.RecordPayment(context.Background(), a.ID, returned.GrandTotal, false)
	require.NoError(t, err)

	h.billing.fail = true
	result, err := h.svc.CloseAgreement(context.Background(), a.ID)
	require.NoError(t, err)
	require.True(t, result.Closed)
}

func TestCancelReleasesVehicle(t *testing.T) {
	h := newHarness(t, dailyPlan())
	a := h.draft(t)
	_, err := h.svc.StartRental(context.Background(), a.ID, ptr(1000), ptr(80))
	require.NoError(t, err)
	require.Equal(t, fleet.StatusRentedOut, h.fleet.vehicles[1].Status)

	cancelled, err := h.svc.Cancel(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, fleet.StatusAvailable, h.fleet.vehicles[1].Status)
}

func TestAddChargeReprices(t *testing.T) {
	h := newHarness(t, dailyPlan())
	a := h.draft(t)

	updated, err := h.svc.AddCharge(context.Background(), a.ID, "", fmt.Sprintf("GPS unit, %d days", 3), 15)
	require.NoError(t, err)
	require.Len(t, updated.Charges, 1)
	require.Equal(t, ChargeExtra, updated.Charges[0].Kind)
	require.Equal(t, 315.0, updated.GrandTotal)
}

func TestRecordPaymentWithDeposit(t *testing.T) {
	h := newHarness(t, dailyPlan())
	a := h.draft(t)

	updated, err := h.svc.RecordPayment(context.Background(), a.ID, 100, true)
	require.NoError(t, err)
	require.Equal(t, 100.0, updated.DepositApplied)
	require.Equal(t, 200.0, updated.Outstanding)

	_, err = h.svc.RecordPayment(context.Background(), a.ID, 100, true)
	require.Error(t, err, "deposit application beyond held amount must fail")
}

func TestOverdueScanMarksActiveAgreements(t *testing.T) {
	h := newHarness(t, dailyPlan())
	a := h.draft(t)
	_, err := h.svc.StartRental(context.Background(), a.ID, ptr(1000), ptr(80))
	require.NoError(t, err)

	h.clock.now = a.EndAt.Add(time.Hour)
	marked, err := h.svc.OverdueScan(context.Background())
	require.NoError(t, err)
	require.Len(t, marked, 1)
	require.Equal(t, StatusDueForReturn, marked[0].Status)
	require.True(t, marked[0].IsOverdue)

	// second scan finds nothing new
	marked, err = h.svc.OverdueScan(context.Background())
	require.NoError(t, err)
	require.Empty(t, marked)
}
