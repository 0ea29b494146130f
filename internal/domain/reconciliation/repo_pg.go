package reconciliation

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

const reimbCols = `id, reimbursement_number, tpa_id, total_claims_amount,
	admin_fee_pct, admin_fee_amount, net_amount,
	purpose, notes, status, receipt_url, version_id, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, rb *Reimbursement) error {
	rb.ID = uuid.New()
	if rb.ReimbursementNumber == "" {
		rb.ReimbursementNumber = fmt.Sprintf("RBM-%s", rb.ID.String()[:8])
	}
	now := time.Now().UTC()
	rb.CreatedAt = now
	rb.UpdatedAt = now
	rb.VersionID = 1

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO reimbursements (
			id, reimbursement_number, tpa_id, total_claims_amount,
			admin_fee_pct, admin_fee_amount, net_amount,
			purpose, notes, status, receipt_url, version_id, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		rb.ID, rb.ReimbursementNumber, rb.TPAID, rb.TotalClaimsAmount,
		rb.AdminFeePct, rb.AdminFeeAmount, rb.NetAmount,
		rb.Purpose, rb.Notes, rb.Status, rb.ReceiptURL, rb.VersionID, rb.CreatedAt, rb.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for _, batchID := range rb.BatchIDs {
		if _, err := r.conn(ctx).Exec(ctx,
			`INSERT INTO reimbursement_batches (reimbursement_id, batch_id) VALUES ($1, $2)`,
			rb.ID, batchID); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Reimbursement, error) {
	rb, err := scanReimbursement(r.conn(ctx).QueryRow(ctx,
		`SELECT `+reimbCols+` FROM reimbursements WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("reimbursement", id.String())
	}
	if err != nil {
		return nil, err
	}
	rb.BatchIDs, err = r.batchIDs(ctx, rb.ID)
	return rb, err
}

func (r *repoPG) batchIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT batch_id FROM reimbursement_batches WHERE reimbursement_id = $1 ORDER BY batch_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var bid uuid.UUID
		if err := rows.Scan(&bid); err != nil {
			return nil, err
		}
		out = append(out, bid)
	}
	return out, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, rb *Reimbursement) error {
	rb.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE reimbursements SET
			status = $1, notes = $2, receipt_url = $3,
			version_id = version_id + 1, updated_at = $4
		WHERE id = $5 AND version_id = $6`,
		rb.Status, rb.Notes, rb.ReceiptURL, rb.UpdatedAt, rb.ID, rb.VersionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.Conflict(rb.ID.String(), "reimbursement was modified concurrently")
	}
	rb.VersionID++
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Reimbursement, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	n := 0
	if f.TPAID != nil {
		n++
		where += fmt.Sprintf(" AND tpa_id = $%d", n)
		args = append(args, *f.TPAID)
	}
	if f.Status != "" {
		n++
		where += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, f.Status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM reimbursements`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + reimbCols + ` FROM reimbursements` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Reimbursement
	for rows.Next() {
		rb, err := scanReimbursement(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rb)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, rb := range out {
		if rb.BatchIDs, err = r.batchIDs(ctx, rb.ID); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

func (r *repoPG) CreateAdvance(ctx context.Context, a *AdvancePayment) error {
	a.ID = uuid.New()
	if a.AdvanceNumber == "" {
		a.AdvanceNumber = fmt.Sprintf("ADV-%s", a.ID.String()[:8])
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO advance_payments (
			id, advance_number, tpa_id, amount, purpose, status, reference, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.AdvanceNumber, a.TPAID, a.Amount, a.Purpose, a.Status, a.Reference, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

const advanceCols = `id, advance_number, tpa_id, amount, purpose, status, reference, created_at, updated_at`

func (r *repoPG) GetAdvance(ctx context.Context, id uuid.UUID) (*AdvancePayment, error) {
	a, err := scanAdvance(r.conn(ctx).QueryRow(ctx,
		`SELECT `+advanceCols+` FROM advance_payments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("advance payment", id.String())
	}
	return a, err
}

func (r *repoPG) UpdateAdvance(ctx context.Context, a *AdvancePayment) error {
	a.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE advance_payments SET status = $1, reference = $2, updated_at = $3 WHERE id = $4`,
		a.Status, a.Reference, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("advance payment", a.ID.String())
	}
	return nil
}

func (r *repoPG) ListAdvances(ctx context.Context, tpaID *uuid.UUID, limit, offset int) ([]*AdvancePayment, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	n := 0
	if tpaID != nil {
		n++
		where += fmt.Sprintf(" AND tpa_id = $%d", n)
		args = append(args, *tpaID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM advance_payments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + advanceCols + ` FROM advance_payments` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*AdvancePayment
	for rows.Next() {
		a, err := scanAdvance(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func scanReimbursement(row pgx.Row) (*Reimbursement, error) {
	var rb Reimbursement
	err := row.Scan(
		&rb.ID, &rb.ReimbursementNumber, &rb.TPAID, &rb.TotalClaimsAmount,
		&rb.AdminFeePct, &rb.AdminFeeAmount, &rb.NetAmount,
		&rb.Purpose, &rb.Notes, &rb.Status, &rb.ReceiptURL, &rb.VersionID, &rb.CreatedAt, &rb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rb, nil
}

func scanAdvance(row pgx.Row) (*AdvancePayment, error) {
	var a AdvancePayment
	err := row.Scan(
		&a.ID, &a.AdvanceNumber, &a.TPAID, &a.Amount, &a.Purpose, &a.Status, &a.Reference, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
