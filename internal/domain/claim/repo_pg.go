package claim

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

const claimCols = `id, claim_number, beneficiary_id, beneficiary_name, facility_id, tpa_id, batch_id,
	procedure_description, diagnosis, treatment_start, treatment_end,
	investigation_cost, procedure_cost, medication_cost, other_services_cost, total_cost,
	approved_total, status, decision, rejection_reason, payment_date,
	version_id, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, c *Claim) error {
	c.ID = uuid.New()
	if c.ClaimNumber == "" {
		c.ClaimNumber = fmt.Sprintf("CLM-%s", c.ID.String()[:8])
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.VersionID = 1

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claims (
			id, claim_number, beneficiary_id, beneficiary_name, facility_id, tpa_id, batch_id,
			procedure_description, diagnosis, treatment_start, treatment_end,
			investigation_cost, procedure_cost, medication_cost, other_services_cost, total_cost,
			approved_total, status, decision, rejection_reason, payment_date,
			version_id, created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,
			$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24
		)`,
		c.ID, c.ClaimNumber, c.BeneficiaryID, c.BeneficiaryName, c.FacilityID, c.TPAID, c.BatchID,
		c.Procedure, c.Diagnosis, c.TreatmentStart, c.TreatmentEnd,
		c.InvestigationCost, c.ProcedureCost, c.MedicationCost, c.OtherServicesCost, c.TotalCost,
		c.ApprovedTotal, c.Status, c.Decision, c.RejectionReason, c.PaymentDate,
		c.VersionID, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c, err := scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM claims WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("claim", id.String())
	}
	return c, err
}

func (r *repoPG) GetByClaimNumber(ctx context.Context, number string) (*Claim, error) {
	c, err := scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM claims WHERE claim_number = $1`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("claim", number)
	}
	return c, err
}

func (r *repoPG) Update(ctx context.Context, c *Claim) error {
	c.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE claims SET
			beneficiary_id = $1, beneficiary_name = $2, batch_id = $3,
			procedure_description = $4, diagnosis = $5, treatment_start = $6, treatment_end = $7,
			investigation_cost = $8, procedure_cost = $9, medication_cost = $10,
			other_services_cost = $11, total_cost = $12,
			approved_total = $13, status = $14, decision = $15, rejection_reason = $16,
			payment_date = $17, version_id = version_id + 1, updated_at = $18
		WHERE id = $19 AND version_id = $20`,
		c.BeneficiaryID, c.BeneficiaryName, c.BatchID,
		c.Procedure, c.Diagnosis, c.TreatmentStart, c.TreatmentEnd,
		c.InvestigationCost, c.ProcedureCost, c.MedicationCost,
		c.OtherServicesCost, c.TotalCost,
		c.ApprovedTotal, c.Status, c.Decision, c.RejectionReason,
		c.PaymentDate, c.UpdatedAt,
		c.ID, c.VersionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.Conflict(c.ID.String(), "claim was modified concurrently")
	}
	c.VersionID++
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	n := 0
	add := func(clause string, v interface{}) {
		n++
		where += fmt.Sprintf(" AND %s = $%d", clause, n)
		args = append(args, v)
	}
	if f.TPAID != nil {
		add("tpa_id", *f.TPAID)
	}
	if f.FacilityID != nil {
		add("facility_id", *f.FacilityID)
	}
	if f.BatchID != nil {
		add("batch_id", *f.BatchID)
	}
	if f.BeneficiaryID != "" {
		add("beneficiary_id", f.BeneficiaryID)
	}
	if f.Status != "" {
		add("status", f.Status)
	}
	if f.Decision != "" {
		add("decision", f.Decision)
	}
	if f.Unassigned {
		where += " AND batch_id IS NULL"
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claims`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + claimCols + ` FROM claims` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repoPG) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*Claim, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+claimCols+` FROM claims WHERE batch_id = $1 ORDER BY created_at`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	err := row.Scan(
		&c.ID, &c.ClaimNumber, &c.BeneficiaryID, &c.BeneficiaryName, &c.FacilityID, &c.TPAID, &c.BatchID,
		&c.Procedure, &c.Diagnosis, &c.TreatmentStart, &c.TreatmentEnd,
		&c.InvestigationCost, &c.ProcedureCost, &c.MedicationCost, &c.OtherServicesCost, &c.TotalCost,
		&c.ApprovedTotal, &c.Status, &c.Decision, &c.RejectionReason, &c.PaymentDate,
		&c.VersionID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
