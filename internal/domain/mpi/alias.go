package mpi

import (
	"context"

	"github.com/google/uuid"
)

// AddAlias records an alternate name for an identity. Aliases are history,
// not identity data: adding one never touches the identity's scores or
// current name, and repeated identical aliases are all kept.
func (s *Service) AddAlias(ctx context.Context, identityID uuid.UUID, req *AliasRequest, actor string) (*Alias, error) {
	if req.FirstName == "" && req.LastName == "" {
		return nil, validationErr("first_name", "alias requires at least one name part")
	}
	if _, err := s.repo.GetByID(ctx, identityID); err != nil {
		return nil, err
	}

	now := s.now()
	alias := &Alias{
		ID:          uuid.New(),
		IdentityID:  identityID,
		AliasType:   req.AliasType,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		FullName:    req.FullName(),
		Reason:      req.Reason,
		EffectiveAt: now,
		CreatedBy:   actor,
		CreatedAt:   now,
	}
	if alias.AliasType == "" {
		alias.AliasType = AliasTypeOther
	}

	if err := s.repo.CreateAlias(ctx, alias); err != nil {
		return nil, err
	}
	return alias, nil
}

// RemoveAlias deletes an alias entry. Removing an absent alias succeeds.
func (s *Service) RemoveAlias(ctx context.Context, identityID, aliasID uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, identityID); err != nil {
		return err
	}
	return s.repo.DeleteAlias(ctx, identityID, aliasID)
}

// ListAliases returns an identity's alias history, newest first.
func (s *Service) ListAliases(ctx context.Context, identityID uuid.UUID) ([]*Alias, error) {
	if _, err := s.repo.GetByID(ctx, identityID); err != nil {
		return nil, err
	}
	return s.repo.ListAliases(ctx, identityID)
}
