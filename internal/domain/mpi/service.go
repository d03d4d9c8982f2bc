package mpi

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mpi/mpi/internal/platform/tasks"
)

const dateLayout = "2006-01-02"

// Service is the identity lifecycle manager. It validates input, owns MPI id
// generation and score recomputation, and hands post-write matching to the
// task runner so a matching failure can never fail the write.
type Service struct {
	repo    Repository
	matcher *Matcher
	runner  *tasks.Runner
	log     zerolog.Logger

	idPrefix string
	now      func() time.Time
	// suffix yields the 4-digit tail of a new MPI id. Injected so identifier
	// generation is deterministic under test; uniqueness is enforced by the
	// store's index, not by this generator.
	suffix func() int
}

func NewService(repo Repository, matcher *Matcher, runner *tasks.Runner, log zerolog.Logger, idPrefix string) *Service {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Service{
		repo:     repo,
		matcher:  matcher,
		runner:   runner,
		log:      log,
		idPrefix: idPrefix,
		now:      time.Now,
		suffix:   func() int { return 1000 + src.Intn(9000) },
	}
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetSuffixSource overrides the MPI id suffix source. Tests only.
func (s *Service) SetSuffixSource(fn func() int) { s.suffix = fn }

// newMPIID builds the durable identifier: prefix, compact timestamp, 4-digit
// suffix. Advisory uniqueness only.
func (s *Service) newMPIID() string {
	return fmt.Sprintf("%s%s%04d", s.idPrefix, s.now().Format("20060102150405"), s.suffix())
}

// parseRequest validates the request fields and parses the date of birth.
// When required is true the mandatory fields must all be present.
func (s *Service) parseRequest(req *IdentityRequest, required bool) (*time.Time, error) {
	if required {
		switch {
		case req.ExternalPatientID == "":
			return nil, validationErr("external_patient_id", "required")
		case req.SourceSystem == "":
			return nil, validationErr("source_system", "required")
		case req.FirstName == "":
			return nil, validationErr("first_name", "required")
		case req.LastName == "":
			return nil, validationErr("last_name", "required")
		case req.DateOfBirth == "":
			return nil, validationErr("date_of_birth", "required")
		}
	}

	if req.DateOfBirth == "" {
		return nil, nil
	}
	dob, err := time.Parse(dateLayout, req.DateOfBirth)
	if err != nil {
		return nil, validationErr("date_of_birth", "must be YYYY-MM-DD")
	}
	if dob.After(s.now()) {
		return nil, validationErr("date_of_birth", "must not be in the future")
	}
	return &dob, nil
}

// Create validates the request, assigns a durable MPI id, scores the record,
// persists it, and triggers matching in the background.
func (s *Service) Create(ctx context.Context, req *IdentityRequest, actor string) (*Identity, error) {
	dob, err := s.parseRequest(req, true)
	if err != nil {
		return nil, err
	}

	// Pre-check the natural key; the store's unique index is the authority
	// under concurrency.
	if _, err := s.repo.GetByExternalID(ctx, req.ExternalPatientID, req.SourceSystem); err == nil {
		return nil, &DuplicateError{ExternalPatientID: req.ExternalPatientID, SourceSystem: req.SourceSystem}
	} else if nf := (*NotFoundError)(nil); !errors.As(err, &nf) {
		return nil, fmt.Errorf("check existing identity: %w", err)
	}

	now := s.now()
	identity := &Identity{
		ID:                 uuid.New(),
		MPIID:              s.newMPIID(),
		ExternalPatientID:  req.ExternalPatientID,
		SourceSystem:       req.SourceSystem,
		FirstName:          req.FirstName,
		MiddleName:         req.MiddleName,
		LastName:           req.LastName,
		DateOfBirth:        dob,
		Gender:             req.Gender,
		SSN:                req.SSN,
		Email:              req.Email,
		PhoneHome:          req.PhoneHome,
		PhoneMobile:        req.PhoneMobile,
		PhoneWork:          req.PhoneWork,
		AddressLine1:       req.AddressLine1,
		AddressLine2:       req.AddressLine2,
		City:               req.City,
		State:              req.State,
		PostalCode:         req.PostalCode,
		IdentityStatus:     StatusActive,
		VerificationStatus: VerificationUnverified,
		CreatedBy:          actor,
		ModifiedBy:         actor,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.AutoVerify {
		identity.VerificationStatus = VerificationAuto
	}
	if req.FHIRResourceID != nil && *req.FHIRResourceID != "" {
		identity.FHIRResourceID = req.FHIRResourceID
		synced := now
		identity.FHIRSyncedAt = &synced
	}
	Rescore(identity)

	if err := s.repo.Create(ctx, identity); err != nil {
		return nil, err
	}

	s.log.Info().Str("mpi_id", identity.MPIID).Str("source_system", identity.SourceSystem).
		Str("actor", actor).Msg("identity created")

	// Best-effort: a matching failure is logged by the runner, never
	// surfaced to the caller of Create.
	snapshot := *identity
	s.runner.Submit("identity-matching", func(taskCtx context.Context) error {
		_, err := s.matcher.Run(taskCtx, &snapshot, actor)
		return err
	})

	return identity, nil
}

// Update overlays the provided fields, revalidates, recomputes all scores,
// and stamps the FHIR sync time when the external-standard id appears or
// changes. Matching is not re-triggered on update.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req *IdentityRequest, actor string) (*Identity, error) {
	identity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	dob, err := s.parseRequest(req, false)
	if err != nil {
		return nil, err
	}

	overlayString(&identity.FirstName, req.FirstName)
	overlayString(&identity.MiddleName, req.MiddleName)
	overlayString(&identity.LastName, req.LastName)
	overlayString(&identity.Gender, req.Gender)
	overlayString(&identity.SSN, req.SSN)
	overlayString(&identity.Email, req.Email)
	overlayString(&identity.PhoneHome, req.PhoneHome)
	overlayString(&identity.PhoneMobile, req.PhoneMobile)
	overlayString(&identity.PhoneWork, req.PhoneWork)
	overlayString(&identity.AddressLine1, req.AddressLine1)
	overlayString(&identity.AddressLine2, req.AddressLine2)
	overlayString(&identity.City, req.City)
	overlayString(&identity.State, req.State)
	overlayString(&identity.PostalCode, req.PostalCode)
	if dob != nil {
		identity.DateOfBirth = dob
	}

	if req.FHIRResourceID != nil && *req.FHIRResourceID != "" {
		if identity.FHIRResourceID == nil || *identity.FHIRResourceID != *req.FHIRResourceID {
			identity.FHIRResourceID = req.FHIRResourceID
			synced := s.now()
			identity.FHIRSyncedAt = &synced
		}
	}

	Rescore(identity)
	identity.ModifiedBy = actor
	identity.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

func overlayString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Identity, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByMPIID(ctx context.Context, mpiID string) (*Identity, error) {
	return s.repo.GetByMPIID(ctx, mpiID)
}

func (s *Service) GetByFHIRID(ctx context.Context, fhirResourceID string) (*Identity, error) {
	return s.repo.GetByFHIRID(ctx, fhirResourceID)
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Identity, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}

// Verify marks the identity manually verified and raises its confidence
// score by 10 points (clamped).
func (s *Service) Verify(ctx context.Context, id uuid.UUID, verifier string) (*Identity, error) {
	identity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	identity.VerificationStatus = VerificationManual
	identity.VerifiedBy = &verifier
	at := s.now()
	identity.VerifiedAt = &at
	identity.VerificationReason = nil
	identity.ConfidenceScore = clampScore(identity.ConfidenceScore + 10)
	identity.ModifiedBy = verifier
	identity.UpdatedAt = at

	if err := s.repo.Update(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// MarkForVerification flags the identity for manual review.
func (s *Service) MarkForVerification(ctx context.Context, id uuid.UUID, reason, actor string) (*Identity, error) {
	identity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	identity.VerificationStatus = VerificationRequired
	identity.VerificationReason = &reason
	identity.ModifiedBy = actor
	identity.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// UpdateVerificationStatus sets an explicit verification state.
func (s *Service) UpdateVerificationStatus(ctx context.Context, id uuid.UUID, status VerificationStatus, actor string) (*Identity, error) {
	switch status {
	case VerificationUnverified, VerificationAuto, VerificationRequired, VerificationManual:
	default:
		return nil, validationErr("verification_status", fmt.Sprintf("unknown status %q", status))
	}

	identity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	identity.VerificationStatus = status
	identity.ModifiedBy = actor
	identity.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// Archive is the reversible "delete": ACTIVE -> ARCHIVED. Records are never
// physically removed.
func (s *Service) Archive(ctx context.Context, id uuid.UUID, actor string) (*Identity, error) {
	identity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if identity.IdentityStatus != StatusActive {
		return nil, validationErr("identity_status",
			fmt.Sprintf("cannot archive identity in status %s", identity.IdentityStatus))
	}

	identity.IdentityStatus = StatusArchived
	identity.ModifiedBy = actor
	identity.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// Restore reverses an archive: ARCHIVED -> ACTIVE.
func (s *Service) Restore(ctx context.Context, id uuid.UUID, actor string) (*Identity, error) {
	identity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if identity.IdentityStatus != StatusArchived {
		return nil, validationErr("identity_status",
			fmt.Sprintf("cannot restore identity in status %s", identity.IdentityStatus))
	}

	identity.IdentityStatus = StatusActive
	identity.ModifiedBy = actor
	identity.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// TrackAccess bumps the access counter. Best-effort: failures are logged and
// swallowed, the caller always gets success.
func (s *Service) TrackAccess(ctx context.Context, id uuid.UUID) {
	if err := s.repo.IncrementAccess(ctx, id); err != nil {
		s.log.Error().Str("identity_id", id.String()).Err(err).Msg("access tracking failed")
	}
}

// Stats reports aggregate counts and score averages.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.repo.Stats(ctx)
}

// sweepPageSize is the batch size for the deduplication sweep.
const sweepPageSize = 200

// DeduplicationSweep re-runs matching for every ACTIVE identity. A single
// identity's failure is recorded in its item and the sweep continues; the
// aggregate counts summarize the batch.
func (s *Service) DeduplicationSweep(ctx context.Context, actor string) (*SweepResult, error) {
	result := &SweepResult{}

	for offset := 0; ; offset += sweepPageSize {
		page, total, err := s.repo.ListByStatus(ctx, StatusActive, sweepPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list active identities: %w", err)
		}
		for _, identity := range page {
			item := SweepItem{IdentityID: identity.ID, MPIID: identity.MPIID}
			matches, err := s.matcher.Run(ctx, identity, actor)
			if err != nil {
				item.Error = err.Error()
				result.Failed++
				s.log.Error().Str("mpi_id", identity.MPIID).Err(err).Msg("sweep item failed")
			} else {
				item.Matches = len(matches)
				if len(matches) > 0 {
					result.Matched++
				}
			}
			result.Scanned++
			result.Items = append(result.Items, item)
		}
		if offset+sweepPageSize >= total || len(page) == 0 {
			break
		}
	}

	s.log.Info().Int("scanned", result.Scanned).Int("matched", result.Matched).
		Int("failed", result.Failed).Msg("deduplication sweep finished")
	return result, nil
}
