package anomaly

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nhis/claims/internal/platform/db"
	"github.com/nhis/claims/pkg/apperror"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const recordCols = `id, claim_id, batch_id, error_type, category, severity, description,
	expected_amount, actual_amount, deviation_pct,
	status, resolution, acted_by, acted_at, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, rec *ErrorRecord) error {
	rec.ID = uuid.New()
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO error_records (
			id, claim_id, batch_id, error_type, category, severity, description,
			expected_amount, actual_amount, deviation_pct,
			status, resolution, acted_by, acted_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		rec.ID, rec.ClaimID, rec.BatchID, rec.Type, rec.Category, rec.Severity, rec.Description,
		rec.ExpectedAmount, rec.ActualAmount, rec.DeviationPct,
		rec.Status, rec.Resolution, rec.ActedBy, rec.ActedAt, rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ErrorRecord, error) {
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM error_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("error record", id.String())
	}
	return rec, err
}

func (r *repoPG) Update(ctx context.Context, rec *ErrorRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE error_records SET
			status = $1, resolution = $2, acted_by = $3, acted_at = $4, updated_at = $5
		WHERE id = $6`,
		rec.Status, rec.Resolution, rec.ActedBy, rec.ActedAt, rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("error record", rec.ID.String())
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*ErrorRecord, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	n := 0
	add := func(clause string, v interface{}) {
		n++
		where += fmt.Sprintf(" AND %s = $%d", clause, n)
		args = append(args, v)
	}
	if f.ClaimID != nil {
		add("claim_id", *f.ClaimID)
	}
	if f.BatchID != nil {
		add("batch_id", *f.BatchID)
	}
	if f.Type != "" {
		add("error_type", f.Type)
	}
	if f.Category != "" {
		add("category", f.Category)
	}
	if f.Severity != "" {
		add("severity", f.Severity)
	}
	if f.Status != "" {
		add("status", f.Status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM error_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + recordCols + ` FROM error_records` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*ErrorRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func scanRecord(row pgx.Row) (*ErrorRecord, error) {
	var rec ErrorRecord
	err := row.Scan(
		&rec.ID, &rec.ClaimID, &rec.BatchID, &rec.Type, &rec.Category, &rec.Severity, &rec.Description,
		&rec.ExpectedAmount, &rec.ActualAmount, &rec.DeviationPct,
		&rec.Status, &rec.Resolution, &rec.ActedBy, &rec.ActedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
