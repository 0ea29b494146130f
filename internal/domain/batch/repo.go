package batch

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows batch listings.
type Filter struct {
	TPAID      *uuid.UUID
	FacilityID *uuid.UUID
	Status     string
	AdminState string
	// Unattached selects closed batches not referenced by any active
	// reimbursement.
	Unattached bool
}

type Repository interface {
	Create(ctx context.Context, b *Batch) error
	GetByID(ctx context.Context, id uuid.UUID) (*Batch, error)
	// GetForUpdate locks the batch row for the lifetime of the transaction
	// on the context. Serializes membership changes, closure, and
	// reimbursement attachment.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Batch, error)
	// Update persists the batch with an optimistic version check and bumps
	// VersionID. A stale VersionID yields apperror.KindConflict.
	Update(ctx context.Context, b *Batch) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Batch, int, error)

	CreateClosureReport(ctx context.Context, r *ClosureReport) error
	GetClosureReport(ctx context.Context, batchID uuid.UUID) (*ClosureReport, error)
	UpdateClosureReport(ctx context.Context, r *ClosureReport) error

	// AttachReimbursement marks the batch as consumed by a reimbursement.
	AttachReimbursement(ctx context.Context, batchID, reimbursementID uuid.UUID) error
	// ReleaseByReimbursement frees every batch attached to the given
	// reimbursement, making them eligible for re-bundling.
	ReleaseByReimbursement(ctx context.Context, reimbursementID uuid.UUID) error
}
