package agreements

import "math"

// Totals is the deterministic pricing result for an agreement snapshot.
type Totals struct {
	KmDriven       float64
	OverageKm      float64
	OverageAmount  float64
	RentalAmount   float64
	Subtotal       float64
	DiscountAmount float64
	GrandTotal     float64
	RoundedTotal   float64
	Outstanding    float64

	// RateKnown is false when the rate type did not match a known period,
	// in which case RentalAmount is zero rather than defaulted to daily.
	RateKnown bool
}

// ComputeTotals prices the agreement from its stored fields alone.
// days is actual days when the vehicle is back, planned days otherwise.
func ComputeTotals(a Agreement) Totals {
	var t Totals

	if a.OdometerOut != nil && a.OdometerIn != nil {
		t.KmDriven = *a.OdometerIn - *a.OdometerOut
		t.OverageKm = math.Max(0, t.KmDriven-a.FreeKm)
		t.OverageAmount = t.OverageKm * a.OveragePerKm
	}

	days := a.PlannedDays
	if a.ActualDays > 0 {
		days = a.ActualDays
	}
	period := a.RateType.PeriodDays()
	t.RateKnown = period > 0
	if t.RateKnown {
		t.RentalAmount = a.BaseRate * days / period
	}

	var charges float64
	for _, c := range a.Charges {
		charges += c.Amount
	}

	t.Subtotal = t.RentalAmount + t.OverageAmount + charges
	if a.DiscountPercent > 0 {
		t.DiscountAmount = t.Subtotal * a.DiscountPercent / 100
	}
	t.GrandTotal = t.Subtotal - t.DiscountAmount + a.TaxAmount
	t.RoundedTotal = math.Round(t.GrandTotal)
	t.Outstanding = t.GrandTotal - a.AmountPaid - a.DepositApplied
	return t
}

// FuelShortfallCharge prices missing fuel on return. Levels are percentages
// of a full tank.
func FuelShortfallCharge(fuelOut, fuelIn, tankCapacityL, pricePerL float64) float64 {
	if fuelIn >= fuelOut {
		return 0
	}
	return (fuelOut - fuelIn) / 100 * tankCapacityL * pricePerL
}

// LateFee prices an overdue return. Hours within the grace period are free;
// each chargeable hour costs hourlyPct of the base rate.
func LateFee(hoursLate, graceHours, baseRate, hourlyPct float64) float64 {
	chargeable := hoursLate - graceHours
	if chargeable <= 0 {
		return 0
	}
	return chargeable * baseRate * hourlyPct
}
