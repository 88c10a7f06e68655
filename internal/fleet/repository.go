package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleethire/fleethire/internal/platform/httpx"
)

// ErrNotFound indicates the vehicle does not exist.
var ErrNotFound = errors.New("fleet: vehicle not found")

// Repository provides PostgreSQL backed persistence for the fleet.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const vehicleColumns = `id, plate_no, make, model, year, color, branch_id, status, availability_status,
odometer, fuel_level, purchase_cost, purchase_date, depreciation_rate, current_book_value,
registration_expiry, insurance_expiry, next_service_due, last_service_date,
total_revenue, total_maintenance_cost, net_profit, created_at, updated_at`

func scanVehicle(row pgx.Row) (*Vehicle, error) {
	var v Vehicle
	err := row.Scan(&v.ID, &v.PlateNo, &v.Make, &v.Model, &v.Year, &v.Color, &v.BranchID,
		&v.Status, &v.AvailabilityStatus, &v.Odometer, &v.FuelLevel,
		&v.PurchaseCost, &v.PurchaseDate, &v.DepreciationRate, &v.CurrentBookValue,
		&v.RegistrationExpiry, &v.InsuranceExpiry, &v.NextServiceDue, &v.LastServiceDate,
		&v.TotalRevenue, &v.TotalMaintenanceCost, &v.NetProfit, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// Get returns a vehicle by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Vehicle, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id)
	return scanVehicle(row)
}

// GetByPlate returns a vehicle by plate number.
func (r *Repository) GetByPlate(ctx context.Context, plateNo string) (*Vehicle, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE plate_no = $1`, plateNo)
	return scanVehicle(row)
}

// Create inserts a vehicle and returns its id.
func (r *Repository) Create(ctx context.Context, v Vehicle) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO vehicles
(plate_no, make, model, year, color, branch_id, status, availability_status,
 odometer, fuel_level, purchase_cost, purchase_date, depreciation_rate, current_book_value,
 registration_expiry, insurance_expiry, next_service_due, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,NOW(),NOW())
RETURNING id`,
		v.PlateNo, v.Make, v.Model, v.Year, v.Color, v.BranchID, v.Status, v.AvailabilityStatus,
		v.Odometer, v.FuelLevel, v.PurchaseCost, v.PurchaseDate, v.DepreciationRate, v.CurrentBookValue,
		v.RegistrationExpiry, v.InsuranceExpiry, v.NextServiceDue).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: plate %s already registered", httpx.ErrDuplicate, v.PlateNo)
		}
		return 0, err
	}
	return id, nil
}

// UpdateStatus persists a status change together with its derived availability.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status VehicleStatus, available bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE vehicles SET status = $2, availability_status = $3, updated_at = NOW() WHERE id = $1`,
		id, status, available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateOdometer persists a new odometer reading.
func (r *Repository) UpdateOdometer(ctx context.Context, id int64, reading float64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE vehicles SET odometer = $2, updated_at = NOW() WHERE id = $1`, id, reading)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateFuelLevel persists the current fuel level.
func (r *Repository) UpdateFuelLevel(ctx context.Context, id int64, level float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE vehicles SET fuel_level = $2, updated_at = NOW() WHERE id = $1`, id, level)
	return err
}

// UpdateBookValue persists the recomputed book value.
func (r *Repository) UpdateBookValue(ctx context.Context, id int64, value float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE vehicles SET current_book_value = $2, updated_at = NOW() WHERE id = $1`, id, value)
	return err
}

// UpdateServiceSchedule records the last service date and next due date.
func (r *Repository) UpdateServiceSchedule(ctx context.Context, id int64, lastService, nextDue *time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE vehicles SET last_service_date = $2, next_service_due = $3, updated_at = NOW() WHERE id = $1`,
		id, lastService, nextDue)
	return err
}

// UpdateProfitability stores the monthly profitability recompute results.
func (r *Repository) UpdateProfitability(ctx context.Context, id int64, revenue, maintenanceCost, netProfit float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE vehicles SET total_revenue = $2, total_maintenance_cost = $3, net_profit = $4, updated_at = NOW() WHERE id = $1`,
		id, revenue, maintenanceCost, netProfit)
	return err
}

// AppendStatusLog writes an immutable status transition entry.
func (r *Repository) AppendStatusLog(ctx context.Context, log StatusLog) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO vehicle_status_logs
(vehicle_id, from_status, to_status, reason, ref_type, ref_id, changed_by, changed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		log.VehicleID, log.FromStatus, log.ToStatus, log.Reason, log.RefType, log.RefID, log.ChangedBy, log.ChangedAt)
	return err
}

// AppendOdometerLog writes an immutable odometer entry.
func (r *Repository) AppendOdometerLog(ctx context.Context, log OdometerLog) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO vehicle_odometer_logs
(vehicle_id, reading, source, logged_at) VALUES ($1,$2,$3,$4)`,
		log.VehicleID, log.Reading, log.Source, log.LoggedAt)
	return err
}

// AppendDamageLog writes a damage entry.
func (r *Repository) AppendDamageLog(ctx context.Context, log DamageLog) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO vehicle_damage_logs
(vehicle_id, description, severity, estimated_cost, logged_at) VALUES ($1,$2,$3,$4,$5)`,
		log.VehicleID, log.Description, log.Severity, log.EstimatedCost, log.LoggedAt)
	return err
}

// ListStatusLogs returns status history for a vehicle, newest first.
func (r *Repository) ListStatusLogs(ctx context.Context, vehicleID int64, limit int) ([]StatusLog, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, vehicle_id, from_status, to_status, reason, ref_type, ref_id, changed_by, changed_at
FROM vehicle_status_logs WHERE vehicle_id = $1 ORDER BY changed_at DESC, id DESC LIMIT $2`, vehicleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []StatusLog
	for rows.Next() {
		var l StatusLog
		if err := rows.Scan(&l.ID, &l.VehicleID, &l.FromStatus, &l.ToStatus, &l.Reason, &l.RefType, &l.RefID, &l.ChangedBy, &l.ChangedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ListCandidates returns available vehicles filtered by branch/make/model,
// ordered by lowest odometer then id so smart allocation is deterministic.
func (r *Repository) ListCandidates(ctx context.Context, criteria SearchCriteria) ([]Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE status = 'Available' AND availability_status`
	var args []any
	argPos := 1
	if criteria.BranchID != nil {
		query += fmt.Sprintf(" AND branch_id = $%d", argPos)
		args = append(args, *criteria.BranchID)
		argPos++
	}
	if criteria.Make != "" {
		query += fmt.Sprintf(" AND make = $%d", argPos)
		args = append(args, criteria.Make)
		argPos++
	}
	if criteria.Model != "" {
		query += fmt.Sprintf(" AND model = $%d", argPos)
		args = append(args, criteria.Model)
		argPos++
	}
	query += ` ORDER BY odometer ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVehicles(rows)
}

// ListActive returns every vehicle that is not deactivated.
func (r *Repository) ListActive(ctx context.Context) ([]Vehicle, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE status <> 'Deactivated' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVehicles(rows)
}

// List returns vehicles with optional status filter.
func (r *Repository) List(ctx context.Context, status string, limit, offset int) ([]Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles`
	var args []any
	if status != "" {
		query += ` WHERE status = $1 ORDER BY id LIMIT $2 OFFSET $3`
		args = []any{status, limit, offset}
	} else {
		query += ` ORDER BY id LIMIT $1 OFFSET $2`
		args = []any{limit, offset}
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVehicles(rows)
}

// CountOverlappingReservations counts live reservations for the vehicle whose
// interval intersects [start, end] per the three-way overlap test. Boundary
// touch counts as overlap.
func (r *Repository) CountOverlappingReservations(ctx context.Context, vehicleID int64, start, end time.Time, excludeID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reservations
WHERE vehicle_id = $1
  AND id <> $4
  AND status NOT IN ('Cancelled', 'Expired')
  AND (
        (pickup_at <= $2 AND return_at >= $2)
     OR (pickup_at <= $3 AND return_at >= $3)
     OR (pickup_at >= $2 AND return_at <= $3)
  )`, vehicleID, start, end, excludeID).Scan(&count)
	return count, err
}

// CountOverlappingAgreements counts live rental agreements for the vehicle
// whose interval intersects [start, end].
func (r *Repository) CountOverlappingAgreements(ctx context.Context, vehicleID int64, start, end time.Time, excludeID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rental_agreements
WHERE vehicle_id = $1
  AND id <> $4
  AND status NOT IN ('Cancelled', 'Closed')
  AND (
        (start_at <= $2 AND end_at >= $2)
     OR (start_at <= $3 AND end_at >= $3)
     OR (start_at >= $2 AND end_at <= $3)
  )`, vehicleID, start, end, excludeID).Scan(&count)
	return count, err
}

func collectVehicles(rows pgx.Rows) ([]Vehicle, error) {
	var vehicles []Vehicle
	for rows.Next() {
		var v Vehicle
		if err := rows.Scan(&v.ID, &v.PlateNo, &v.Make, &v.Model, &v.Year, &v.Color, &v.BranchID,
			&v.Status, &v.AvailabilityStatus, &v.Odometer, &v.FuelLevel,
			&v.PurchaseCost, &v.PurchaseDate, &v.DepreciationRate, &v.CurrentBookValue,
			&v.RegistrationExpiry, &v.InsuranceExpiry, &v.NextServiceDue, &v.LastServiceDate,
			&v.TotalRevenue, &v.TotalMaintenanceCost, &v.NetProfit, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}
