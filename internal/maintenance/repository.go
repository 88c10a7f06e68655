package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the maintenance job does not exist.
var ErrNotFound = errors.New("maintenance: job not found")

// Repository provides PostgreSQL backed persistence for maintenance jobs.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const jobColumns = `id, vehicle_id, kind, status, description, scheduled_at, started_at,
completed_at, downtime_hours, cost, odometer_at, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.VehicleID, &j.Kind, &j.Status, &j.Description,
		&j.ScheduledAt, &j.StartedAt, &j.CompletedAt, &j.DowntimeHours, &j.Cost,
		&j.OdometerAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM maintenance_jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (r *Repository) Create(ctx context.Context, j Job) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO maintenance_jobs
(vehicle_id, kind, status, description, scheduled_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
RETURNING id`,
		j.VehicleID, j.Kind, j.Status, j.Description, j.ScheduledAt).Scan(&id)
	return id, err
}

func (r *Repository) Update(ctx context.Context, j Job) error {
	tag, err := r.pool.Exec(ctx, `UPDATE maintenance_jobs SET
status = $2, description = $3, scheduled_at = $4, started_at = $5, completed_at = $6,
downtime_hours = $7, cost = $8, odometer_at = $9, updated_at = NOW()
WHERE id = $1`,
		j.ID, j.Status, j.Description, j.ScheduledAt, j.StartedAt, j.CompletedAt,
		j.DowntimeHours, j.Cost, j.OdometerAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, status string, vehicleID int64, limit, offset int) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM maintenance_jobs WHERE 1=1`
	args := []any{}
	if status != "" {
		args = append(args, status)
		query += ` AND status = $1`
	}
	if vehicleID > 0 {
		args = append(args, vehicleID)
		if len(args) == 1 {
			query += ` AND vehicle_id = $1`
		} else {
			query += ` AND vehicle_id = $2`
		}
	}
	query += ` ORDER BY scheduled_at DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// SumCostByVehicle totals completed job costs for a vehicle within [from, to).
func (r *Repository) SumCostByVehicle(ctx context.Context, vehicleID int64, from, to time.Time) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost), 0) FROM maintenance_jobs
WHERE vehicle_id = $1 AND status = $2 AND completed_at >= $3 AND completed_at < $4`,
		vehicleID, JobCompleted, from, to).Scan(&total)
	return total, err
}

// SumDowntimeByVehicleDay totals downtime hours that completed on a given day.
func (r *Repository) SumDowntimeByVehicleDay(ctx context.Context, vehicleID int64, day time.Time) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(downtime_hours), 0) FROM maintenance_jobs
WHERE vehicle_id = $1 AND completed_at >= $2 AND completed_at < $3`,
		vehicleID, day, day.AddDate(0, 0, 1)).Scan(&total)
	return total, err
}

// ListScheduledBefore returns scheduled jobs due before the cutoff.
func (r *Repository) ListScheduledBefore(ctx context.Context, cutoff time.Time) ([]Job, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM maintenance_jobs
WHERE status = $1 AND scheduled_at < $2 ORDER BY scheduled_at ASC`,
		JobScheduled, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]Job, error) {
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}
