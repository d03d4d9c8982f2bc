package mpi

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MergeService groups identities under a master record. Merging is a
// pointer-level operation: the duplicate is retired into the master's group,
// no field values move between records.
type MergeService struct {
	repo Repository
	log  zerolog.Logger
	now  func() time.Time
}

func NewMergeService(repo Repository, log zerolog.Logger) *MergeService {
	return &MergeService{repo: repo, log: log, now: time.Now}
}

// Merge retires duplicate into master's group. The master is promoted to a
// self-referential group head if it is not already in one, the duplicate
// becomes MERGED, and the master's confidence absorbs the duplicate's when
// higher. Both writes land atomically.
func (s *MergeService) Merge(ctx context.Context, masterID, duplicateID uuid.UUID, actor string) (*Identity, error) {
	if masterID == duplicateID {
		return nil, validationErr("duplicate_id", "cannot merge an identity into itself")
	}

	master, err := s.repo.GetByID(ctx, masterID)
	if err != nil {
		return nil, err
	}
	duplicate, err := s.repo.GetByID(ctx, duplicateID)
	if err != nil {
		return nil, err
	}
	if duplicate.IdentityStatus == StatusMerged {
		return nil, validationErr("duplicate_id", "identity is already merged")
	}

	now := s.now()

	// Group id: the master's existing group, or the master itself when it
	// heads a fresh group.
	groupID := master.ID
	if master.MasterPatientID != nil {
		groupID = *master.MasterPatientID
	}
	master.MasterPatientID = &groupID
	master.IsMasterIdentity = true
	if duplicate.ConfidenceScore > master.ConfidenceScore {
		master.ConfidenceScore = duplicate.ConfidenceScore
	}
	master.ModifiedBy = actor
	master.UpdatedAt = now

	duplicate.IdentityStatus = StatusMerged
	duplicate.MasterPatientID = &groupID
	duplicate.IsMasterIdentity = false
	duplicate.ModifiedBy = actor
	duplicate.UpdatedAt = now

	if err := s.repo.Merge(ctx, master, duplicate); err != nil {
		return nil, fmt.Errorf("merge identities: %w", err)
	}

	s.log.Info().Str("master_mpi_id", master.MPIID).Str("duplicate_mpi_id", duplicate.MPIID).
		Str("actor", actor).Msg("identities merged")
	return master, nil
}

// Link points an identity at a master group without retiring it: the
// identity stays ACTIVE, only its group pointer changes. Linking always
// demotes the identity from master standing.
func (s *MergeService) Link(ctx context.Context, id, masterID uuid.UUID, actor string) (*Identity, error) {
	identity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetByID(ctx, masterID); err != nil {
		return nil, err
	}

	identity.MasterPatientID = &masterID
	identity.IsMasterIdentity = false
	identity.ModifiedBy = actor
	identity.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// Unlink clears the group pointer, restoring the identity to standalone.
func (s *MergeService) Unlink(ctx context.Context, id uuid.UUID, actor string) (*Identity, error) {
	identity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	identity.MasterPatientID = nil
	identity.IsMasterIdentity = false
	identity.ModifiedBy = actor
	identity.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// ConfirmMatch accepts a pending or auto-confirmed match.
func (s *MergeService) ConfirmMatch(ctx context.Context, matchID uuid.UUID, reviewer string) (*Match, error) {
	return s.reviewMatch(ctx, matchID, MatchConfirmed, reviewer)
}

// RejectMatch dismisses a pending or auto-confirmed match.
func (s *MergeService) RejectMatch(ctx context.Context, matchID uuid.UUID, reviewer string) (*Match, error) {
	return s.reviewMatch(ctx, matchID, MatchRejected, reviewer)
}

func (s *MergeService) reviewMatch(ctx context.Context, matchID uuid.UUID, status MatchStatus, reviewer string) (*Match, error) {
	match, err := s.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status != MatchPending && match.Status != MatchAutoConfirmed {
		return nil, validationErr("status",
			fmt.Sprintf("match in status %s cannot be reviewed", match.Status))
	}

	match.Status = status
	match.ReviewedBy = &reviewer
	at := s.now()
	match.ReviewedAt = &at

	if err := s.repo.UpdateMatch(ctx, match); err != nil {
		return nil, err
	}
	return match, nil
}

// ListMatches returns the match rows owned by an identity.
func (s *MergeService) ListMatches(ctx context.Context, identityID uuid.UUID) ([]*Match, error) {
	if _, err := s.repo.GetByID(ctx, identityID); err != nil {
		return nil, err
	}
	return s.repo.ListMatches(ctx, identityID)
}
