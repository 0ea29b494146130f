// Package auth consumes session identity for the claims core. Token issuance
// and verification live in an external identity provider; this package only
// parses the presented token into an Actor and enforces role guards.
package auth

import (
	"context"

	"github.com/google/uuid"
)

// Roles recognized by the claims core.
const (
	RoleFacility  = "facility"
	RoleTPA       = "tpa"
	RoleOversight = "oversight"
	RoleAdmin     = "admin"
)

// Actor is the role-scoped caller of a core operation.
type Actor struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Role       string     `json:"role"`
	TPAID      *uuid.UUID `json:"tpa_id,omitempty"`
	FacilityID *uuid.UUID `json:"facility_id,omitempty"`
}

// IsAdministrative reports whether the actor may perform oversight actions
// (escalation workflow, batch admin track, reconciliation).
func (a Actor) IsAdministrative() bool {
	return a.Role == RoleOversight || a.Role == RoleAdmin
}

// ScopedToTPA reports whether the actor may act on records owned by tpaID.
// Administrative actors are scoped to every TPA.
func (a Actor) ScopedToTPA(tpaID uuid.UUID) bool {
	if a.IsAdministrative() {
		return true
	}
	return a.TPAID != nil && *a.TPAID == tpaID
}

// ScopedToFacility reports whether the actor may act on records owned by
// facilityID.
func (a Actor) ScopedToFacility(facilityID uuid.UUID) bool {
	if a.IsAdministrative() {
		return true
	}
	return a.FacilityID != nil && *a.FacilityID == facilityID
}

type contextKey string

const actorKey contextKey = "actor"

// WithActor returns a child context carrying the actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext retrieves the authenticated actor from context. The second
// return is false when no actor is present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}
