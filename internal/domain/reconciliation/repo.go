package reconciliation

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows reimbursement listings.
type Filter struct {
	TPAID  *uuid.UUID
	Status string
}

type Repository interface {
	Create(ctx context.Context, r *Reimbursement) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reimbursement, error)
	// Update persists the reimbursement with an optimistic version check and
	// bumps VersionID. A stale VersionID yields apperror.KindConflict.
	Update(ctx context.Context, r *Reimbursement) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Reimbursement, int, error)

	CreateAdvance(ctx context.Context, a *AdvancePayment) error
	GetAdvance(ctx context.Context, id uuid.UUID) (*AdvancePayment, error)
	UpdateAdvance(ctx context.Context, a *AdvancePayment) error
	ListAdvances(ctx context.Context, tpaID *uuid.UUID, limit, offset int) ([]*AdvancePayment, int, error)
}
