package agreements

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleethire/fleethire/internal/rateplans"
)

func ptr(v float64) *float64 { return &v }

func TestComputeTotalsWorkedExample(t *testing.T) {
	a := Agreement{
		BaseRate:     100,
		RateType:     rateplans.RateDaily,
		PlannedDays:  3,
		FreeKm:       200,
		OveragePerKm: 0.5,
		OdometerOut:  ptr(1000),
		OdometerIn:   ptr(1250),
	}
	got := ComputeTotals(a)
	require.True(t, got.RateKnown)
	require.Equal(t, 250.0, got.KmDriven)
	require.Equal(t, 50.0, got.OverageKm)
	require.Equal(t, 25.0, got.OverageAmount)
	require.Equal(t, 300.0, got.RentalAmount)
	require.Equal(t, 325.0, got.Subtotal)
	require.Equal(t, 325.0, got.GrandTotal)
	require.Equal(t, 325.0, got.RoundedTotal)
	require.Equal(t, 325.0, got.Outstanding)
}

func TestComputeTotalsRateTypeDispatch(t *testing.T) {
	base := Agreement{BaseRate: 700, PlannedDays: 14}

	daily := base
	daily.RateType = rateplans.RateDaily
	require.Equal(t, 9800.0, ComputeTotals(daily).RentalAmount)

	weekly := base
	weekly.RateType = rateplans.RateWeekly
	require.Equal(t, 1400.0, ComputeTotals(weekly).RentalAmount)

	monthly := base
	monthly.RateType = rateplans.RateMonthly
	got := ComputeTotals(monthly)
	require.InDelta(t, 700.0*14/30, got.RentalAmount, 1e-9)
}

func TestComputeTotalsUnknownRateTypeZeroes(t *testing.T) {
	a := Agreement{BaseRate: 100, RateType: "Hourly", PlannedDays: 3}
	got := ComputeTotals(a)
	require.False(t, got.RateKnown)
	require.Zero(t, got.RentalAmount)
	require.Zero(t, got.GrandTotal)
}

func TestComputeTotalsActualDaysWinOverPlanned(t *testing.T) {
	a := Agreement{BaseRate: 100, RateType: rateplans.RateDaily, PlannedDays: 3, ActualDays: 4}
	require.Equal(t, 400.0, ComputeTotals(a).RentalAmount)
}

func TestComputeTotalsDiscountTaxAndRounding(t *testing.T) {
	a := Agreement{
		BaseRate:        100,
		RateType:        rateplans.RateDaily,
		PlannedDays:     3,
		DiscountPercent: 10,
		TaxAmount:       15.3,
		Charges:         []Charge{{Kind: ChargeExtra, Amount: 40}},
	}
	got := ComputeTotals(a)
	require.Equal(t, 340.0, got.Subtotal)
	require.Equal(t, 34.0, got.DiscountAmount)
	require.InDelta(t, 321.3, got.GrandTotal, 1e-9)
	require.Equal(t, 321.0, got.RoundedTotal)
}

func TestComputeTotalsOutstandingSubtractsPayments(t *testing.T) {
	a := Agreement{
		BaseRate:       100,
		RateType:       rateplans.RateDaily,
		PlannedDays:    3,
		AmountPaid:     200,
		DepositApplied: 50,
	}
	require.Equal(t, 50.0, ComputeTotals(a).Outstanding)
}

func TestFuelShortfallCharge(t *testing.T) {
	require.Equal(t, 20.0, FuelShortfallCharge(80, 60, 50, 2))
	require.Zero(t, FuelShortfallCharge(60, 60, 50, 2))
	require.Zero(t, FuelShortfallCharge(60, 80, 50, 2))
}

func TestLateFee(t *testing.T) {
	require.Equal(t, 30.0, LateFee(5, 2, 100, 0.10))
	require.Zero(t, LateFee(2, 2, 100, 0.10))
	require.Zero(t, LateFee(1, 2, 100, 0.10))
}

func TestHoursBetween(t *testing.T) {
	start := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	require.Equal(t, 72.0, hoursBetween(start, start.Add(72*time.Hour)))
}
