package billing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the invoice does not exist.
var ErrNotFound = errors.New("billing: invoice not found")

// Repository provides PostgreSQL backed persistence for billing records.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = `id, number, customer_id, agreement_id, lease_id, total, amount_paid,
status, issued_at, due_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.AgreementID, &inv.LeaseID,
		&inv.Total, &inv.AmountPaid, &inv.Status, &inv.IssuedAt, &inv.DueAt,
		&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// Get returns an invoice with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		return nil, err
	}
	inv.Lines, err = r.listLines(ctx, id)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// GetByAgreement returns the invoice linked to an agreement, if any.
func (r *Repository) GetByAgreement(ctx context.Context, agreementID int64) (*Invoice, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE agreement_id = $1`, agreementID)
	inv, err := scanInvoice(row)
	if err != nil {
		return nil, err
	}
	inv.Lines, err = r.listLines(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *Repository) Create(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO invoices
(number, customer_id, agreement_id, lease_id, total, amount_paid, status, issued_at, due_at,
 created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
RETURNING id`,
		inv.Number, inv.CustomerID, inv.AgreementID, inv.LeaseID, inv.Total, inv.AmountPaid,
		inv.Status, inv.IssuedAt, inv.DueAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, line := range inv.Lines {
		if _, err := r.pool.Exec(ctx,
			`INSERT INTO invoice_lines (invoice_id, description, amount) VALUES ($1,$2,$3)`,
			id, line.Description, line.Amount); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Update persists totals, settlement and replaced lines.
func (r *Repository) Update(ctx context.Context, inv Invoice) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET
total = $2, amount_paid = $3, status = $4, due_at = $5, updated_at = NOW()
WHERE id = $1`,
		inv.ID, inv.Total, inv.AmountPaid, inv.Status, inv.DueAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if inv.Lines != nil {
		if _, err := r.pool.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id = $1`, inv.ID); err != nil {
			return err
		}
		for _, line := range inv.Lines {
			if _, err := r.pool.Exec(ctx,
				`INSERT INTO invoice_lines (invoice_id, description, amount) VALUES ($1,$2,$3)`,
				inv.ID, line.Description, line.Amount); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Repository) List(ctx context.Context, status string, limit, offset int) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`
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

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (r *Repository) listLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, invoice_id, description, amount
FROM invoice_lines WHERE invoice_id = $1 ORDER BY id ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InvoiceLine
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.Description, &line.Amount); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

// NextInvoiceNumber reserves the next value of the invoice number sequence.
func (r *Repository) NextInvoiceNumber(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&n)
	return n, err
}

func (r *Repository) CreateRefund(ctx context.Context, refund DepositRefund) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO deposit_refunds
(agreement_id, customer_id, amount, status, gateway_ref, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id`,
		refund.AgreementID, refund.CustomerID, refund.Amount, refund.Status,
		refund.GatewayRef, refund.CreatedAt).Scan(&id)
	return id, err
}

func (r *Repository) UpdateRefundStatus(ctx context.Context, id int64, status RefundStatus, gatewayRef string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE deposit_refunds SET status = $2, gateway_ref = $3 WHERE id = $1`,
		id, status, gatewayRef)
	return err
}

// ListPendingRefunds returns refunds awaiting a successful payout.
func (r *Repository) ListPendingRefunds(ctx context.Context) ([]DepositRefund, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, agreement_id, customer_id, amount, status, gateway_ref, created_at
FROM deposit_refunds WHERE status = $1 ORDER BY id ASC`, RefundPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DepositRefund
	for rows.Next() {
		var ref DepositRefund
		if err := rows.Scan(&ref.ID, &ref.AgreementID, &ref.CustomerID, &ref.Amount,
			&ref.Status, &ref.GatewayRef, &ref.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (r *Repository) CreatePayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO payments
(agreement_id, invoice_id, amount, method, gateway_ref, received_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id`,
		p.AgreementID, p.InvoiceID, p.Amount, p.Method, p.GatewayRef, p.ReceivedAt).Scan(&id)
	return id, err
}

// LatestGatewayPayment returns the most recent online payment for an
// agreement, used to route refunds back through the gateway.
func (r *Repository) LatestGatewayPayment(ctx context.Context, agreementID int64) (*Payment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, agreement_id, invoice_id, amount, method, gateway_ref, received_at
FROM payments WHERE agreement_id = $1 AND gateway_ref <> ''
ORDER BY received_at DESC LIMIT 1`, agreementID)
	var p Payment
	err := row.Scan(&p.ID, &p.AgreementID, &p.InvoiceID, &p.Amount, &p.Method, &p.GatewayRef, &p.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
