package mpi

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the record-store contract the identity-resolution core
// needs. Lookups return *NotFoundError when no row matches; Create returns
// *DuplicateError when the (external patient id, source system) unique index
// rejects the insert.
type Repository interface {
	Create(ctx context.Context, i *Identity) error
	Update(ctx context.Context, i *Identity) error
	// Merge persists a computed master/duplicate pair as one atomic unit.
	Merge(ctx context.Context, master, duplicate *Identity) error
	GetByID(ctx context.Context, id uuid.UUID) (*Identity, error)
	GetByMPIID(ctx context.Context, mpiID string) (*Identity, error)
	GetByExternalID(ctx context.Context, externalPatientID, sourceSystem string) (*Identity, error)
	GetByFHIRID(ctx context.Context, fhirResourceID string) (*Identity, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Identity, int, error)
	ListByStatus(ctx context.Context, status IdentityStatus, limit, offset int) ([]*Identity, int, error)
	// FindCandidates returns the widened match pool: same first+last name,
	// same date of birth, or same ssn (OR semantics), excluding the identity
	// itself and anything archived or merged.
	FindCandidates(ctx context.Context, i *Identity) ([]*Identity, error)
	IncrementAccess(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context) (*Stats, error)

	CreateMatch(ctx context.Context, m *Match) error
	GetMatch(ctx context.Context, id uuid.UUID) (*Match, error)
	UpdateMatch(ctx context.Context, m *Match) error
	ListMatches(ctx context.Context, identityID uuid.UUID) ([]*Match, error)
	MatchExists(ctx context.Context, identityID, candidateID uuid.UUID) (bool, error)

	CreateAlias(ctx context.Context, a *Alias) error
	// DeleteAlias is a no-op when the alias does not exist.
	DeleteAlias(ctx context.Context, identityID, aliasID uuid.UUID) error
	ListAliases(ctx context.Context, identityID uuid.UUID) ([]*Alias, error)
}
