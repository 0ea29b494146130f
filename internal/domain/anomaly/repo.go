package anomaly

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows error record listings.
type Filter struct {
	ClaimID  *uuid.UUID
	BatchID  *uuid.UUID
	Type     string
	Category string
	Severity string
	Status   string
}

type Repository interface {
	Create(ctx context.Context, r *ErrorRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*ErrorRecord, error)
	Update(ctx context.Context, r *ErrorRecord) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*ErrorRecord, int, error)
}
