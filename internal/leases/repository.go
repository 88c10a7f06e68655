package leases

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleethire/fleethire/internal/platform/db"
)

// ErrNotFound indicates the lease contract does not exist.
var ErrNotFound = errors.New("leases: contract not found")

// Repository provides PostgreSQL backed persistence for lease contracts.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const contractColumns = `id, vehicle_id, customer_id, status, monthly_payment, billing_day,
term_months, lease_to_own, start_date, amount_paid, created_at, updated_at`

func scanContract(row pgx.Row) (*Contract, error) {
	var c Contract
	err := row.Scan(&c.ID, &c.VehicleID, &c.CustomerID, &c.Status, &c.MonthlyPayment,
		&c.BillingDay, &c.TermMonths, &c.LeaseToOwn, &c.StartDate, &c.AmountPaid,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Get returns a contract with its billing schedule.
func (r *Repository) Get(ctx context.Context, id int64) (*Contract, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+contractColumns+` FROM lease_contracts WHERE id = $1`, id)
	c, err := scanContract(row)
	if err != nil {
		return nil, err
	}
	c.Schedule, err = r.listSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts a contract and its generated schedule rows in one
// transaction. A contract without its full schedule must never be visible.
func (r *Repository) Create(ctx context.Context, c Contract) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `INSERT INTO lease_contracts
(vehicle_id, customer_id, status, monthly_payment, billing_day, term_months, lease_to_own,
 start_date, amount_paid, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
RETURNING id`,
			c.VehicleID, c.CustomerID, c.Status, c.MonthlyPayment, c.BillingDay, c.TermMonths,
			c.LeaseToOwn, c.StartDate, c.AmountPaid).Scan(&id); err != nil {
			return err
		}
		for _, row := range c.Schedule {
			if _, err := tx.Exec(ctx, `INSERT INTO lease_schedule_rows
(contract_id, period_start, period_end, amount, status)
VALUES ($1,$2,$3,$4,$5)`,
				id, row.PeriodStart, row.PeriodEnd, row.Amount, row.Status); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Repository) Update(ctx context.Context, c Contract) error {
	tag, err := r.pool.Exec(ctx, `UPDATE lease_contracts SET
status = $2, amount_paid = $3, updated_at = NOW()
WHERE id = $1`,
		c.ID, c.Status, c.AmountPaid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, status string, limit, offset int) ([]Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM lease_contracts`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ListActive returns active contracts with their schedules loaded.
func (r *Repository) ListActive(ctx context.Context) ([]Contract, error) {
	contracts, err := r.List(ctx, string(ContractActive), 0, 0)
	if err != nil {
		return nil, err
	}
	for i := range contracts {
		contracts[i].Schedule, err = r.listSchedule(ctx, contracts[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return contracts, nil
}

// MarkScheduleRowInvoiced flips a pending row to invoiced, recording the
// invoice. A row already invoiced is not touched, which keeps the monthly
// job idempotent.
func (r *Repository) MarkScheduleRowInvoiced(ctx context.Context, rowID, invoiceID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE lease_schedule_rows SET status = $2, invoice_id = $3
WHERE id = $1 AND status = $4`,
		rowID, ScheduleInvoiced, invoiceID, SchedulePending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) listSchedule(ctx context.Context, contractID int64) ([]ScheduleRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, contract_id, period_start, period_end, amount, status, invoice_id
FROM lease_schedule_rows WHERE contract_id = $1 ORDER BY period_start ASC`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduleRow
	for rows.Next() {
		var row ScheduleRow
		if err := rows.Scan(&row.ID, &row.ContractID, &row.PeriodStart, &row.PeriodEnd,
			&row.Amount, &row.Status, &row.InvoiceID); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
