package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the reservation does not exist.
var ErrNotFound = errors.New("reservations: reservation not found")

// Repository provides PostgreSQL backed persistence for reservations.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const reservationColumns = `id, customer_id, driver_id, vehicle_id, rate_plan_id, status, allocation_mode,
branch_id, make, model, pickup_at, return_at, rental_days, rental_amount, grand_total,
agreement_id, base_rate, rate_type, created_at, updated_at`

func scanReservation(row pgx.Row) (*Reservation, error) {
	var res Reservation
	err := row.Scan(&res.ID, &res.CustomerID, &res.DriverID, &res.VehicleID, &res.RatePlanID, &res.Status,
		&res.Allocation, &res.BranchID, &res.Make, &res.Model, &res.PickupAt, &res.ReturnAt,
		&res.RentalDays, &res.RentalAmount, &res.GrandTotal, &res.AgreementID,
		&res.BaseRate, &res.RateType, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &res, nil
}

// Get returns a reservation with its extras.
func (r *Repository) Get(ctx context.Context, id int64) (*Reservation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
	res, err := scanReservation(row)
	if err != nil {
		return nil, err
	}
	res.Extras, err = r.listExtras(ctx, id)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Create inserts a reservation and its extras.
func (r *Repository) Create(ctx context.Context, res Reservation) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO reservations
(customer_id, driver_id, vehicle_id, rate_plan_id, status, allocation_mode, branch_id, make, model,
 pickup_at, return_at, rental_days, rental_amount, grand_total, base_rate, rate_type,
 created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW(),NOW())
RETURNING id`,
		res.CustomerID, res.DriverID, res.VehicleID, res.RatePlanID, res.Status, res.Allocation,
		res.BranchID, res.Make, res.Model, res.PickupAt, res.ReturnAt,
		res.RentalDays, res.RentalAmount, res.GrandTotal, res.BaseRate, res.RateType).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, e := range res.Extras {
		if _, err := r.pool.Exec(ctx,
			`INSERT INTO reservation_extras (reservation_id, description, amount) VALUES ($1,$2,$3)`,
			id, e.Description, e.Amount); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Update persists the mutable fields of a reservation.
func (r *Repository) Update(ctx context.Context, res Reservation) error {
	tag, err := r.pool.Exec(ctx, `UPDATE reservations SET
vehicle_id = $2, status = $3, pickup_at = $4, return_at = $5,
rental_days = $6, rental_amount = $7, grand_total = $8, agreement_id = $9,
updated_at = NOW()
WHERE id = $1`,
		res.ID, res.VehicleID, res.Status, res.PickupAt, res.ReturnAt,
		res.RentalDays, res.RentalAmount, res.GrandTotal, res.AgreementID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, status string, limit, offset int) ([]Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY pickup_at DESC`
	if limit > 0 {
		if status != "" {
			query += ` LIMIT $2 OFFSET $3`
		} else {
			query += ` LIMIT $1 OFFSET $2`
		}
		args = append(args, limit, offset)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReservations(rows)
}

// ListConfirmedPickupBetween returns confirmed reservations whose pickup
// falls in [from, to), for the conflict re-scan.
func (r *Repository) ListConfirmedPickupBetween(ctx context.Context, from, to time.Time) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations
WHERE status = $1 AND pickup_at >= $2 AND pickup_at < $3
ORDER BY vehicle_id, pickup_at`,
		StatusConfirmed, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReservations(rows)
}

// ListConfirmedPickupBefore returns confirmed reservations whose pickup has
// already passed, for the expiry scan.
func (r *Repository) ListConfirmedPickupBefore(ctx context.Context, cutoff time.Time) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations
WHERE status = $1 AND pickup_at < $2`,
		StatusConfirmed, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReservations(rows)
}

func collectReservations(rows pgx.Rows) ([]Reservation, error) {
	var out []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func (r *Repository) listExtras(ctx context.Context, reservationID int64) ([]Extra, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, reservation_id, description, amount
FROM reservation_extras WHERE reservation_id = $1 ORDER BY id ASC`, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Extra
	for rows.Next() {
		var e Extra
		if err := rows.Scan(&e.ID, &e.ReservationID, &e.Description, &e.Amount); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
