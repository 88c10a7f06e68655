package customers

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

// ErrNotFound indicates the customer does not exist.
var ErrNotFound = errors.New("customers: customer not found")

// Repository provides PostgreSQL backed persistence for customers.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const customerColumns = `id, name, type, email, phone, address, national_id, license_no, license_expiry,
tax_id, contact_person, blacklisted, blacklist_reason, kyc_verified,
lifetime_rentals, lifetime_revenue, outstanding_total, created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Type, &c.Email, &c.Phone, &c.Address,
		&c.NationalID, &c.LicenseNo, &c.LicenseExpiry, &c.TaxID, &c.ContactPerson,
		&c.Blacklisted, &c.BlacklistReason, &c.KYCVerified,
		&c.LifetimeRentals, &c.LifetimeRevenue, &c.OutstandingTotal,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*Customer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	return scanCustomer(row)
}

func (r *Repository) Create(ctx context.Context, c Customer) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO customers
(name, type, email, phone, address, national_id, license_no, license_expiry,
 tax_id, contact_person, blacklisted, blacklist_reason, kyc_verified, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),NOW())
RETURNING id`,
		c.Name, c.Type, c.Email, c.Phone, c.Address, c.NationalID, c.LicenseNo, c.LicenseExpiry,
		c.TaxID, c.ContactPerson, c.Blacklisted, c.BlacklistReason, c.KYCVerified).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: email %s already registered", httpx.ErrDuplicate, c.Email)
		}
		return 0, err
	}
	return id, nil
}

func (r *Repository) Update(ctx context.Context, c Customer) error {
	tag, err := r.pool.Exec(ctx, `UPDATE customers SET
name = $2, type = $3, email = $4, phone = $5, address = $6, national_id = $7,
license_no = $8, license_expiry = $9, tax_id = $10, contact_person = $11,
kyc_verified = $12, updated_at = NOW()
WHERE id = $1`,
		c.ID, c.Name, c.Type, c.Email, c.Phone, c.Address, c.NationalID,
		c.LicenseNo, c.LicenseExpiry, c.TaxID, c.ContactPerson, c.KYCVerified)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns customers filtered by an optional search term on name, email or phone.
func (r *Repository) List(ctx context.Context, search string, limit, offset int) ([]Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers`
	args := []any{}
	if search != "" {
		query += ` WHERE name ILIKE $1 OR email ILIKE $1 OR phone ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	if limit > 0 {
		args = append(args, limit, offset)
		query += fmt.Sprintf(` ORDER BY name ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	} else {
		query += ` ORDER BY name ASC`
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ListLicenseExpiring returns customers whose license expires before the cutoff.
func (r *Repository) ListLicenseExpiring(ctx context.Context, before time.Time) ([]Customer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+customerColumns+` FROM customers
WHERE license_expiry IS NOT NULL AND license_expiry < $1 AND NOT blacklisted
ORDER BY license_expiry ASC`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *Repository) SetBlacklist(ctx context.Context, id int64, blacklisted bool, reason string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE customers SET blacklisted = $2, blacklist_reason = $3, updated_at = NOW() WHERE id = $1`,
		id, blacklisted, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddLifetimeTotals accumulates rental counters after an agreement closes.
func (r *Repository) AddLifetimeTotals(ctx context.Context, id int64, rentals int, revenue float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE customers SET lifetime_rentals = lifetime_rentals + $2,
lifetime_revenue = lifetime_revenue + $3, updated_at = NOW() WHERE id = $1`,
		id, rentals, revenue)
	return err
}

// AddOutstanding adjusts the customer's open balance by delta, which may be negative.
func (r *Repository) AddOutstanding(ctx context.Context, id int64, delta float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE customers SET outstanding_total = outstanding_total + $2, updated_at = NOW() WHERE id = $1`,
		id, delta)
	return err
}
