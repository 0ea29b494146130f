package batch

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

const batchCols = `id, batch_number, tpa_id, facility_id, week_start, week_end,
	status, admin_state, total_claims, total_amount, approved_amount,
	admin_fee_pct, admin_fee_amount, net_amount,
	cover_letter_url, cover_letter_filename, submission_emails, submission_notes,
	reimbursement_id, version_id, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, b *Batch) error {
	b.ID = uuid.New()
	if b.BatchNumber == "" {
		b.BatchNumber = fmt.Sprintf("BAT-%s", b.ID.String()[:8])
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	b.VersionID = 1

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO batches (
			id, batch_number, tpa_id, facility_id, week_start, week_end,
			status, admin_state, total_claims, total_amount, approved_amount,
			admin_fee_pct, admin_fee_amount, net_amount,
			cover_letter_url, cover_letter_filename, submission_emails, submission_notes,
			reimbursement_id, version_id, created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,
			$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22
		)`,
		b.ID, b.BatchNumber, b.TPAID, b.FacilityID, b.WeekStart, b.WeekEnd,
		b.Status, b.AdminState, b.TotalClaims, b.TotalAmount, b.ApprovedAmount,
		b.AdminFeePct, b.AdminFeeAmount, b.NetAmount,
		b.CoverLetterURL, b.CoverLetterFilename, b.SubmissionEmails, b.SubmissionNotes,
		b.ReimbursementID, b.VersionID, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Batch, error) {
	b, err := scanBatch(r.conn(ctx).QueryRow(ctx, `SELECT `+batchCols+` FROM batches WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("batch", id.String())
	}
	return b, err
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Batch, error) {
	b, err := scanBatch(r.conn(ctx).QueryRow(ctx,
		`SELECT `+batchCols+` FROM batches WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("batch", id.String())
	}
	return b, err
}

func (r *repoPG) Update(ctx context.Context, b *Batch) error {
	b.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE batches SET
			week_start = $1, week_end = $2, status = $3, admin_state = $4,
			total_claims = $5, total_amount = $6, approved_amount = $7,
			admin_fee_pct = $8, admin_fee_amount = $9, net_amount = $10,
			cover_letter_url = $11, cover_letter_filename = $12,
			submission_emails = $13, submission_notes = $14,
			reimbursement_id = $15, version_id = version_id + 1, updated_at = $16
		WHERE id = $17 AND version_id = $18`,
		b.WeekStart, b.WeekEnd, b.Status, b.AdminState,
		b.TotalClaims, b.TotalAmount, b.ApprovedAmount,
		b.AdminFeePct, b.AdminFeeAmount, b.NetAmount,
		b.CoverLetterURL, b.CoverLetterFilename,
		b.SubmissionEmails, b.SubmissionNotes,
		b.ReimbursementID, b.UpdatedAt,
		b.ID, b.VersionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.Conflict(b.ID.String(), "batch was modified concurrently")
	}
	b.VersionID++
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Batch, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	n := 0
	add := func(col string, v interface{}) {
		n++
		where += fmt.Sprintf(" AND %s = $%d", col, n)
		args = append(args, v)
	}
	if f.TPAID != nil {
		add("tpa_id", *f.TPAID)
	}
	if f.FacilityID != nil {
		add("facility_id", *f.FacilityID)
	}
	if f.Status != "" {
		add("status", f.Status)
	}
	if f.AdminState != "" {
		add("admin_state", f.AdminState)
	}
	if f.Unattached {
		where += " AND status = 'closed' AND reimbursement_id IS NULL"
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM batches`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + batchCols + ` FROM batches` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

func (r *repoPG) CreateClosureReport(ctx context.Context, rep *ClosureReport) error {
	rep.ID = uuid.New()
	rep.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO closure_reports (
			id, batch_id, review_summary, payment_justification, rejection_breakdown,
			paid_amount, paid_claims_count, beneficiaries_paid,
			payment_date, payment_method, payment_reference,
			cover_letter_url, cover_letter_filename,
			signature, signed_at, status, created_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
		)`,
		rep.ID, rep.BatchID, rep.ReviewSummary, rep.PaymentJustification, rep.RejectionBreakdown,
		rep.PaidAmount, rep.PaidClaimsCount, rep.BeneficiariesPaid,
		rep.PaymentDate, rep.PaymentMethod, rep.PaymentReference,
		rep.CoverLetterURL, rep.CoverLetterFilename,
		rep.Signature, rep.SignedAt, rep.Status, rep.CreatedAt,
	)
	return err
}

func (r *repoPG) GetClosureReport(ctx context.Context, batchID uuid.UUID) (*ClosureReport, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT id, batch_id, review_summary, payment_justification, rejection_breakdown,
			paid_amount, paid_claims_count, beneficiaries_paid,
			payment_date, payment_method, payment_reference,
			cover_letter_url, cover_letter_filename,
			signature, signed_at, admin_signature, admin_notes, admin_reviewed_at,
			status, created_at
		FROM closure_reports WHERE batch_id = $1`, batchID)

	var rep ClosureReport
	err := row.Scan(
		&rep.ID, &rep.BatchID, &rep.ReviewSummary, &rep.PaymentJustification, &rep.RejectionBreakdown,
		&rep.PaidAmount, &rep.PaidClaimsCount, &rep.BeneficiariesPaid,
		&rep.PaymentDate, &rep.PaymentMethod, &rep.PaymentReference,
		&rep.CoverLetterURL, &rep.CoverLetterFilename,
		&rep.Signature, &rep.SignedAt, &rep.AdminSignature, &rep.AdminNotes, &rep.AdminReviewedAt,
		&rep.Status, &rep.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("closure report", batchID.String())
	}
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

func (r *repoPG) UpdateClosureReport(ctx context.Context, rep *ClosureReport) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE closure_reports SET
			admin_signature = $1, admin_notes = $2, admin_reviewed_at = $3, status = $4
		WHERE id = $5`,
		rep.AdminSignature, rep.AdminNotes, rep.AdminReviewedAt, rep.Status, rep.ID,
	)
	return err
}

func (r *repoPG) AttachReimbursement(ctx context.Context, batchID, reimbursementID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE batches SET reimbursement_id = $1, version_id = version_id + 1, updated_at = $2
		WHERE id = $3 AND status = 'closed' AND reimbursement_id IS NULL`,
		reimbursementID, time.Now().UTC(), batchID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.IneligibleBatch(batchID.String(), "batch is not closed or already reimbursed")
	}
	return nil
}

func (r *repoPG) ReleaseByReimbursement(ctx context.Context, reimbursementID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE batches SET reimbursement_id = NULL, version_id = version_id + 1, updated_at = $1
		WHERE reimbursement_id = $2`,
		time.Now().UTC(), reimbursementID,
	)
	return err
}

func scanBatch(row pgx.Row) (*Batch, error) {
	var b Batch
	err := row.Scan(
		&b.ID, &b.BatchNumber, &b.TPAID, &b.FacilityID, &b.WeekStart, &b.WeekEnd,
		&b.Status, &b.AdminState, &b.TotalClaims, &b.TotalAmount, &b.ApprovedAmount,
		&b.AdminFeePct, &b.AdminFeeAmount, &b.NetAmount,
		&b.CoverLetterURL, &b.CoverLetterFilename, &b.SubmissionEmails, &b.SubmissionNotes,
		&b.ReimbursementID, &b.VersionID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
