package agreements

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the agreement does not exist.
var ErrNotFound = errors.New("agreements: agreement not found")

// Repository provides PostgreSQL backed persistence for rental agreements.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const agreementColumns = `id, reservation_id, vehicle_id, customer_id, driver_id, rate_plan_id, status,
start_at, end_at, actual_return_at, planned_days, actual_days, is_overdue,
odometer_out, odometer_in, fuel_out, fuel_in,
base_rate, rate_type, free_km, overage_per_km, grace_period_hours,
discount_percent, tax_amount,
km_driven, overage_km, overage_amount, rental_amount, subtotal, discount_amount,
grand_total, rounded_total, amount_paid, deposit_held, deposit_applied, outstanding_amount,
created_at, updated_at`

func scanAgreement(row pgx.Row) (*Agreement, error) {
	var a Agreement
	err := row.Scan(&a.ID, &a.ReservationID, &a.VehicleID, &a.CustomerID, &a.DriverID, &a.RatePlanID, &a.Status,
		&a.StartAt, &a.EndAt, &a.ActualReturnAt, &a.PlannedDays, &a.ActualDays, &a.IsOverdue,
		&a.OdometerOut, &a.OdometerIn, &a.FuelOut, &a.FuelIn,
		&a.BaseRate, &a.RateType, &a.FreeKm, &a.OveragePerKm, &a.GracePeriodHours,
		&a.DiscountPercent, &a.TaxAmount,
		&a.KmDriven, &a.OverageKm, &a.OverageAmount, &a.RentalAmount, &a.Subtotal, &a.DiscountAmount,
		&a.GrandTotal, &a.RoundedTotal, &a.AmountPaid, &a.DepositHeld, &a.DepositApplied, &a.Outstanding,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Get returns an agreement with its charge lines.
func (r *Repository) Get(ctx context.Context, id int64) (*Agreement, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+agreementColumns+` FROM rental_agreements WHERE id = $1`, id)
	a, err := scanAgreement(row)
	if err != nil {
		return nil, err
	}
	a.Charges, err = r.ListCharges(ctx, id)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *Repository) Create(ctx context.Context, a Agreement) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO rental_agreements
(reservation_id, vehicle_id, customer_id, driver_id, rate_plan_id, status,
 start_at, end_at, planned_days,
 base_rate, rate_type, free_km, overage_per_km, grace_period_hours,
 discount_percent, tax_amount, deposit_held,
 km_driven, overage_km, overage_amount, rental_amount, subtotal, discount_amount,
 grand_total, rounded_total, outstanding_amount, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,NOW(),NOW())
RETURNING id`,
		a.ReservationID, a.VehicleID, a.CustomerID, a.DriverID, a.RatePlanID, a.Status,
		a.StartAt, a.EndAt, a.PlannedDays,
		a.BaseRate, a.RateType, a.FreeKm, a.OveragePerKm, a.GracePeriodHours,
		a.DiscountPercent, a.TaxAmount, a.DepositHeld,
		a.KmDriven, a.OverageKm, a.OverageAmount, a.RentalAmount, a.Subtotal, a.DiscountAmount,
		a.GrandTotal, a.RoundedTotal, a.Outstanding).Scan(&id)
	return id, err
}

// Update persists the mutable fields of an agreement.
func (r *Repository) Update(ctx context.Context, a Agreement) error {
	tag, err := r.pool.Exec(ctx, `UPDATE rental_agreements SET
status = $2, actual_return_at = $3, planned_days = $4, actual_days = $5, is_overdue = $6,
odometer_out = $7, odometer_in = $8, fuel_out = $9, fuel_in = $10,
discount_percent = $11, tax_amount = $12,
km_driven = $13, overage_km = $14, overage_amount = $15, rental_amount = $16,
subtotal = $17, discount_amount = $18, grand_total = $19, rounded_total = $20,
amount_paid = $21, deposit_held = $22, deposit_applied = $23, outstanding_amount = $24,
updated_at = NOW()
WHERE id = $1`,
		a.ID, a.Status, a.ActualReturnAt, a.PlannedDays, a.ActualDays, a.IsOverdue,
		a.OdometerOut, a.OdometerIn, a.FuelOut, a.FuelIn,
		a.DiscountPercent, a.TaxAmount,
		a.KmDriven, a.OverageKm, a.OverageAmount, a.RentalAmount,
		a.Subtotal, a.DiscountAmount, a.GrandTotal, a.RoundedTotal,
		a.AmountPaid, a.DepositHeld, a.DepositApplied, a.Outstanding)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, status string, limit, offset int) ([]Agreement, error) {
	query := `SELECT ` + agreementColumns + ` FROM rental_agreements`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		args = append(args, limit, offset)
		if status != "" {
			query += ` LIMIT $2 OFFSET $3`
		} else {
			query += ` LIMIT $1 OFFSET $2`
		}
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAgreements(rows)
}

// ListOverdue returns live agreements whose end has passed at the given time.
func (r *Repository) ListOverdue(ctx context.Context, now time.Time) ([]Agreement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+agreementColumns+` FROM rental_agreements
WHERE status IN ($1, $2) AND end_at < $3
ORDER BY end_at ASC`,
		StatusActive, StatusDueForReturn, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAgreements(rows)
}

func collectAgreements(rows pgx.Rows) ([]Agreement, error) {
	var out []Agreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *Repository) AppendCharge(ctx context.Context, c Charge) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO agreement_charges
(agreement_id, kind, description, amount, created_at)
VALUES ($1,$2,$3,$4,$5)`,
		c.AgreementID, c.Kind, c.Description, c.Amount, c.CreatedAt)
	return err
}

func (r *Repository) ListCharges(ctx context.Context, agreementID int64) ([]Charge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, agreement_id, kind, description, amount, created_at
FROM agreement_charges WHERE agreement_id = $1 ORDER BY id ASC`, agreementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Charge
	for rows.Next() {
		var c Charge
		if err := rows.Scan(&c.ID, &c.AgreementID, &c.Kind, &c.Description, &c.Amount, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SumRevenueByVehicle totals grand totals of closed agreements for a vehicle
// within [from, to).
func (r *Repository) SumRevenueByVehicle(ctx context.Context, vehicleID int64, from, to time.Time) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(grand_total), 0) FROM rental_agreements
WHERE vehicle_id = $1 AND status = $2 AND actual_return_at >= $3 AND actual_return_at < $4`,
		vehicleID, StatusClosed, from, to).Scan(&total)
	return total, err
}

// ListLiveOverlapping returns non-draft, non-cancelled agreements on a
// vehicle whose occupied window intersects [from, to). The occupied window
// runs from start_at to actual_return_at when the vehicle is back, end_at
// otherwise.
func (r *Repository) ListLiveOverlapping(ctx context.Context, vehicleID int64, from, to time.Time) ([]Agreement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+agreementColumns+` FROM rental_agreements
WHERE vehicle_id = $1 AND status NOT IN ($2, $3)
  AND start_at < $5 AND COALESCE(actual_return_at, end_at) > $4`,
		vehicleID, StatusDraft, StatusCancelled, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAgreements(rows)
}
