package rateplans

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the rate plan does not exist.
var ErrNotFound = errors.New("rateplans: rate plan not found")

// Repository provides PostgreSQL backed persistence for rate plans.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const planColumns = `id, name, vehicle_class, rate_type, base_rate, free_km,
overage_per_km, grace_period_hours, security_deposit, active, created_at, updated_at`

func scanPlan(row pgx.Row) (*RatePlan, error) {
	var p RatePlan
	err := row.Scan(&p.ID, &p.Name, &p.VehicleClass, &p.RateType, &p.BaseRate,
		&p.FreeKm, &p.OveragePerKm, &p.GracePeriodHours, &p.SecurityDeposit, &p.Active,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*RatePlan, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM rate_plans WHERE id = $1`, id)
	return scanPlan(row)
}

func (r *Repository) Create(ctx context.Context, p RatePlan) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO rate_plans
(name, vehicle_class, rate_type, base_rate, free_km, overage_per_km,
 grace_period_hours, security_deposit, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
RETURNING id`,
		p.Name, p.VehicleClass, p.RateType, p.BaseRate, p.FreeKm,
		p.OveragePerKm, p.GracePeriodHours, p.SecurityDeposit, p.Active).Scan(&id)
	return id, err
}

func (r *Repository) Update(ctx context.Context, p RatePlan) error {
	tag, err := r.pool.Exec(ctx, `UPDATE rate_plans SET
name = $2, vehicle_class = $3, rate_type = $4, base_rate = $5,
free_km = $6, overage_per_km = $7, grace_period_hours = $8,
security_deposit = $9, active = $10, updated_at = NOW()
WHERE id = $1`,
		p.ID, p.Name, p.VehicleClass, p.RateType, p.BaseRate,
		p.FreeKm, p.OveragePerKm, p.GracePeriodHours, p.SecurityDeposit, p.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, activeOnly bool) ([]RatePlan, error) {
	query := `SELECT ` + planColumns + ` FROM rate_plans`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RatePlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
