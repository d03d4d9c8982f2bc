package mpi

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// mockRepo is an in-memory Repository honoring the same typed-error
// contracts as the postgres implementation.
type mockRepo struct {
	identities map[uuid.UUID]*Identity
	matches    map[uuid.UUID]*Match
	aliases    map[uuid.UUID]*Alias

	failCandidates error // when set, FindCandidates returns it
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		identities: make(map[uuid.UUID]*Identity),
		matches:    make(map[uuid.UUID]*Match),
		aliases:    make(map[uuid.UUID]*Alias),
	}
}

func (m *mockRepo) Create(_ context.Context, i *Identity) error {
	for _, existing := range m.identities {
		if existing.ExternalPatientID == i.ExternalPatientID &&
			existing.SourceSystem == i.SourceSystem &&
			existing.IdentityStatus != StatusArchived {
			return &DuplicateError{ExternalPatientID: i.ExternalPatientID, SourceSystem: i.SourceSystem}
		}
	}
	clone := *i
	m.identities[i.ID] = &clone
	return nil
}

func (m *mockRepo) Update(_ context.Context, i *Identity) error {
	if _, ok := m.identities[i.ID]; !ok {
		return &NotFoundError{Kind: "identity", ID: i.ID.String()}
	}
	clone := *i
	m.identities[i.ID] = &clone
	return nil
}

func (m *mockRepo) Merge(ctx context.Context, master, duplicate *Identity) error {
	if err := m.Update(ctx, master); err != nil {
		return err
	}
	return m.Update(ctx, duplicate)
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Identity, error) {
	i, ok := m.identities[id]
	if !ok {
		return nil, &NotFoundError{Kind: "identity", ID: id.String()}
	}
	clone := *i
	return &clone, nil
}

func (m *mockRepo) GetByMPIID(_ context.Context, mpiID string) (*Identity, error) {
	for _, i := range m.identities {
		if i.MPIID == mpiID {
			clone := *i
			return &clone, nil
		}
	}
	return nil, &NotFoundError{Kind: "identity", ID: mpiID}
}

func (m *mockRepo) GetByExternalID(_ context.Context, externalPatientID, sourceSystem string) (*Identity, error) {
	for _, i := range m.identities {
		if i.ExternalPatientID == externalPatientID && i.SourceSystem == sourceSystem &&
			i.IdentityStatus != StatusArchived {
			clone := *i
			return &clone, nil
		}
	}
	return nil, &NotFoundError{Kind: "identity", ID: externalPatientID + "/" + sourceSystem}
}

func (m *mockRepo) GetByFHIRID(_ context.Context, fhirResourceID string) (*Identity, error) {
	for _, i := range m.identities {
		if i.FHIRResourceID != nil && *i.FHIRResourceID == fhirResourceID {
			clone := *i
			return &clone, nil
		}
	}
	return nil, &NotFoundError{Kind: "identity", ID: fhirResourceID}
}

func (m *mockRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Identity, int, error) {
	var result []*Identity
	for _, i := range m.identities {
		if v, ok := params["last_name"]; ok && !strings.EqualFold(i.LastName, v) {
			continue
		}
		if v, ok := params["source_system"]; ok && i.SourceSystem != v {
			continue
		}
		if v, ok := params["status"]; ok && string(i.IdentityStatus) != v {
			continue
		}
		clone := *i
		result = append(result, &clone)
	}
	total := len(result)
	if offset > len(result) {
		offset = len(result)
	}
	result = result[offset:]
	if limit < len(result) {
		result = result[:limit]
	}
	return result, total, nil
}

func (m *mockRepo) ListByStatus(ctx context.Context, status IdentityStatus, limit, offset int) ([]*Identity, int, error) {
	return m.Search(ctx, map[string]string{"status": string(status)}, limit, offset)
}

func (m *mockRepo) FindCandidates(_ context.Context, i *Identity) ([]*Identity, error) {
	if m.failCandidates != nil {
		return nil, m.failCandidates
	}
	var candidates []*Identity
	for _, c := range m.identities {
		if c.ID == i.ID {
			continue
		}
		if c.IdentityStatus == StatusArchived || c.IdentityStatus == StatusMerged {
			continue
		}
		nameMatch := strings.EqualFold(c.FirstName, i.FirstName) && strings.EqualFold(c.LastName, i.LastName)
		dobMatch := i.DateOfBirth != nil && c.DateOfBirth != nil && c.DateOfBirth.Equal(*i.DateOfBirth)
		ssnMatch := i.SSN != "" && c.SSN == i.SSN
		if nameMatch || dobMatch || ssnMatch {
			clone := *c
			candidates = append(candidates, &clone)
		}
	}
	return candidates, nil
}

func (m *mockRepo) IncrementAccess(_ context.Context, id uuid.UUID) error {
	i, ok := m.identities[id]
	if !ok {
		return &NotFoundError{Kind: "identity", ID: id.String()}
	}
	i.AccessCount++
	return nil
}

func (m *mockRepo) Stats(_ context.Context) (*Stats, error) {
	s := &Stats{}
	for _, i := range m.identities {
		s.TotalIdentities++
		switch i.IdentityStatus {
		case StatusActive:
			s.Active++
		case StatusMerged:
			s.Merged++
		case StatusDuplicate:
			s.Duplicates++
		case StatusArchived:
			s.Archived++
		}
		if i.IsMasterIdentity {
			s.MasterRecords++
		}
	}
	for _, match := range m.matches {
		if match.Status == MatchPending {
			s.PendingMatches++
		}
	}
	return s, nil
}

func (m *mockRepo) CreateMatch(_ context.Context, match *Match) error {
	clone := *match
	m.matches[match.ID] = &clone
	return nil
}

func (m *mockRepo) GetMatch(_ context.Context, id uuid.UUID) (*Match, error) {
	match, ok := m.matches[id]
	if !ok {
		return nil, &NotFoundError{Kind: "match", ID: id.String()}
	}
	clone := *match
	return &clone, nil
}

func (m *mockRepo) UpdateMatch(_ context.Context, match *Match) error {
	if _, ok := m.matches[match.ID]; !ok {
		return &NotFoundError{Kind: "match", ID: match.ID.String()}
	}
	clone := *match
	m.matches[match.ID] = &clone
	return nil
}

func (m *mockRepo) ListMatches(_ context.Context, identityID uuid.UUID) ([]*Match, error) {
	var result []*Match
	for _, match := range m.matches {
		if match.IdentityID == identityID {
			clone := *match
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (m *mockRepo) MatchExists(_ context.Context, identityID, candidateID uuid.UUID) (bool, error) {
	for _, match := range m.matches {
		if match.IdentityID == identityID && match.CandidateID == candidateID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) CreateAlias(_ context.Context, a *Alias) error {
	clone := *a
	m.aliases[a.ID] = &clone
	return nil
}

func (m *mockRepo) DeleteAlias(_ context.Context, identityID, aliasID uuid.UUID) error {
	if a, ok := m.aliases[aliasID]; ok && a.IdentityID == identityID {
		delete(m.aliases, aliasID)
	}
	return nil
}

func (m *mockRepo) ListAliases(_ context.Context, identityID uuid.UUID) ([]*Alias, error) {
	var result []*Alias
	for _, a := range m.aliases {
		if a.IdentityID == identityID {
			clone := *a
			result = append(result, &clone)
		}
	}
	return result, nil
}
