package claim

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows claim listings.
type Filter struct {
	TPAID         *uuid.UUID
	FacilityID    *uuid.UUID
	BatchID       *uuid.UUID
	BeneficiaryID string
	Status        string
	Decision      string
	Unassigned    bool
}

type Repository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	GetByClaimNumber(ctx context.Context, number string) (*Claim, error)
	// Update persists the claim with an optimistic version check and bumps
	// VersionID. A stale VersionID yields apperror.KindConflict.
	Update(ctx context.Context, c *Claim) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*Claim, error)
}
