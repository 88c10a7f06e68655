package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for the audit trail.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one audit entry. Entries are immutable once written.
func (r *Repository) Insert(ctx context.Context, e Entry) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO audit_entries
(at, actor_id, actor, action, entity, entity_id, detail)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.At, e.ActorID, e.Actor, e.Action, e.Entity, e.EntityID, e.Detail)
	return err
}

// Window returns up to limit entries matching the filters, newest first.
func (r *Repository) Window(ctx context.Context, f TimelineFilters, limit, offset int) ([]Entry, error) {
	var conditions []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}
	if !f.From.IsZero() {
		add("at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("at < $%d", f.To)
	}
	if actor := strings.TrimSpace(f.Actor); actor != "" {
		add("actor = $%d", actor)
	}
	if entity := strings.TrimSpace(f.Entity); entity != "" {
		add("entity = $%d", entity)
	}
	if action := strings.TrimSpace(f.Action); action != "" {
		add("action = $%d", action)
	}

	query := `SELECT id, at, actor_id, actor, action, entity, entity_id, detail FROM audit_entries`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.At, &e.ActorID, &e.Actor, &e.Action,
			&e.Entity, &e.EntityID, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
