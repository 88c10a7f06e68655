package utilization

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no snapshot exists for the vehicle and date.
var ErrNotFound = errors.New("utilization: snapshot not found")

// Repository provides PostgreSQL backed persistence for utilization snapshots.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const snapshotColumns = `id, vehicle_id, snapshot_date, rented_hours, idle_hours,
maintenance_hours, utilization_pct, revenue, updated_at`

func scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var s Snapshot
	err := row.Scan(&s.ID, &s.VehicleID, &s.Date, &s.RentedHours, &s.IdleHours,
		&s.MaintenanceHours, &s.UtilizationPct, &s.Revenue, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Upsert writes the snapshot for (vehicle, date), overwriting any prior run.
func (r *Repository) Upsert(ctx context.Context, s Snapshot) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO utilization_snapshots
(vehicle_id, snapshot_date, rented_hours, idle_hours, maintenance_hours, utilization_pct, revenue, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (vehicle_id, snapshot_date) DO UPDATE SET
rented_hours = EXCLUDED.rented_hours,
idle_hours = EXCLUDED.idle_hours,
maintenance_hours = EXCLUDED.maintenance_hours,
utilization_pct = EXCLUDED.utilization_pct,
revenue = EXCLUDED.revenue,
updated_at = now()`,
		s.VehicleID, s.Date, s.RentedHours, s.IdleHours, s.MaintenanceHours,
		s.UtilizationPct, s.Revenue)
	return err
}

// Get returns the snapshot for a vehicle on a day.
func (r *Repository) Get(ctx context.Context, vehicleID int64, date time.Time) (*Snapshot, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM utilization_snapshots
WHERE vehicle_id = $1 AND snapshot_date = $2`, vehicleID, date)
	return scanSnapshot(row)
}

// ListByVehicle returns a vehicle's snapshots within [from, to).
func (r *Repository) ListByVehicle(ctx context.Context, vehicleID int64, from, to time.Time) ([]Snapshot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+snapshotColumns+` FROM utilization_snapshots
WHERE vehicle_id = $1 AND snapshot_date >= $2 AND snapshot_date < $3
ORDER BY snapshot_date ASC`, vehicleID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.ID, &s.VehicleID, &s.Date, &s.RentedHours, &s.IdleHours,
			&s.MaintenanceHours, &s.UtilizationPct, &s.Revenue, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AggregateRange groups snapshots per vehicle over [from, to), ranked by
// average utilization.
func (r *Repository) AggregateRange(ctx context.Context, from, to time.Time) ([]VehicleWeekly, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.vehicle_id, v.plate_no, AVG(s.utilization_pct), SUM(s.rented_hours),
SUM(s.revenue), COUNT(*)
FROM utilization_snapshots s
JOIN vehicles v ON v.id = s.vehicle_id
WHERE s.snapshot_date >= $1 AND s.snapshot_date < $2
GROUP BY s.vehicle_id, v.plate_no
ORDER BY AVG(s.utilization_pct) DESC, s.vehicle_id ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VehicleWeekly
	for rows.Next() {
		var w VehicleWeekly
		if err := rows.Scan(&w.VehicleID, &w.PlateNo, &w.AvgUtilization,
			&w.RentedHours, &w.Revenue, &w.Days); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
