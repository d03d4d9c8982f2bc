package mpi

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// IdentityStatus is the lifecycle state of an identity record.
type IdentityStatus string

const (
	StatusActive    IdentityStatus = "ACTIVE"
	StatusMerged    IdentityStatus = "MERGED"
	StatusDuplicate IdentityStatus = "DUPLICATE"
	StatusArchived  IdentityStatus = "ARCHIVED"
)

// VerificationStatus tracks how an identity's demographics were verified.
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "UNVERIFIED"
	VerificationAuto       VerificationStatus = "AUTO_VERIFIED"
	VerificationRequired   VerificationStatus = "VERIFICATION_REQUIRED"
	VerificationManual     VerificationStatus = "MANUALLY_VERIFIED"
)

// MatchStatus is the adjudication state of a match proposal.
type MatchStatus string

const (
	MatchPending       MatchStatus = "PENDING"
	MatchAutoConfirmed MatchStatus = "AUTO_CONFIRMED"
	MatchConfirmed     MatchStatus = "CONFIRMED"
	MatchRejected      MatchStatus = "REJECTED"
)

// MatchType distinguishes exact-identifier matches from demographic ones.
type MatchType string

const (
	MatchDeterministic MatchType = "DETERMINISTIC"
	MatchProbabilistic MatchType = "PROBABILISTIC"
)

// Identity is one source system's view of a patient, keyed by the composite
// (external patient id, source system) and carrying the durable MPI id.
type Identity struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	MPIID             string     `db:"mpi_id" json:"mpi_id"`
	ExternalPatientID string     `db:"external_patient_id" json:"external_patient_id"`
	SourceSystem      string     `db:"source_system" json:"source_system"`
	FirstName         string     `db:"first_name" json:"first_name"`
	MiddleName        string     `db:"middle_name" json:"middle_name,omitempty"`
	LastName          string     `db:"last_name" json:"last_name"`
	DateOfBirth       *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender            string     `db:"gender" json:"gender,omitempty"`
	SSN               string     `db:"ssn" json:"ssn,omitempty"`
	Email             string     `db:"email" json:"email,omitempty"`
	PhoneHome         string     `db:"phone_home" json:"phone_home,omitempty"`
	PhoneMobile       string     `db:"phone_mobile" json:"phone_mobile,omitempty"`
	PhoneWork         string     `db:"phone_work" json:"phone_work,omitempty"`
	AddressLine1      string     `db:"address_line1" json:"address_line1,omitempty"`
	AddressLine2      string     `db:"address_line2" json:"address_line2,omitempty"`
	City              string     `db:"city" json:"city,omitempty"`
	State             string     `db:"state" json:"state,omitempty"`
	PostalCode        string     `db:"postal_code" json:"postal_code,omitempty"`

	// External-standard (FHIR) resource linkage.
	FHIRResourceID *string    `db:"fhir_resource_id" json:"fhir_resource_id,omitempty"`
	FHIRSyncedAt   *time.Time `db:"fhir_synced_at" json:"fhir_synced_at,omitempty"`

	ConfidenceScore   float64 `db:"confidence_score" json:"confidence_score"`
	DataQualityScore  float64 `db:"data_quality_score" json:"data_quality_score"`
	CompletenessScore float64 `db:"completeness_score" json:"completeness_score"`

	IdentityStatus     IdentityStatus     `db:"identity_status" json:"identity_status"`
	VerificationStatus VerificationStatus `db:"verification_status" json:"verification_status"`
	VerificationReason *string            `db:"verification_reason" json:"verification_reason,omitempty"`
	VerifiedBy         *string            `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt         *time.Time         `db:"verified_at" json:"verified_at,omitempty"`

	// Master-group linkage. A master identity points at itself.
	MasterPatientID  *uuid.UUID `db:"master_patient_id" json:"master_patient_id,omitempty"`
	IsMasterIdentity bool       `db:"is_master_identity" json:"is_master_identity"`

	AccessCount    int64      `db:"access_count" json:"access_count"`
	LastAccessedAt *time.Time `db:"last_accessed_at" json:"last_accessed_at,omitempty"`

	CreatedBy  string    `db:"created_by" json:"created_by,omitempty"`
	ModifiedBy string    `db:"modified_by" json:"modified_by,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Phones returns the non-empty phone numbers of the identity.
func (i *Identity) Phones() []string {
	var phones []string
	for _, p := range []string{i.PhoneHome, i.PhoneMobile, i.PhoneWork} {
		if p != "" {
			phones = append(phones, p)
		}
	}
	return phones
}

// Match is a scored proposal that two identities describe the same person.
// It is owned by the identity that triggered matching; no reciprocal edge is
// created for the candidate.
type Match struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	IdentityID  uuid.UUID   `db:"identity_id" json:"identity_id"`
	CandidateID uuid.UUID   `db:"candidate_id" json:"candidate_id"`
	Score       float64     `db:"score" json:"score"`
	Algorithm   string      `db:"algorithm" json:"algorithm"`
	MatchType   MatchType   `db:"match_type" json:"match_type"`
	Auto        bool        `db:"auto" json:"auto"`
	Status      MatchStatus `db:"status" json:"status"`
	CreatedBy   string      `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	ReviewedBy  *string     `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time  `db:"reviewed_at" json:"reviewed_at,omitempty"`
}

// Well-known alias types. The column is free text; these are conventions.
const (
	AliasTypeMaiden   = "MAIDEN"
	AliasTypeNickname = "NICKNAME"
	AliasTypeLegal    = "LEGAL"
	AliasTypeOther    = "OTHER"
)

// Alias is an alternate-name history entry attached to an identity.
type Alias struct {
	ID          uuid.UUID `db:"id" json:"id"`
	IdentityID  uuid.UUID `db:"identity_id" json:"identity_id"`
	AliasType   string    `db:"alias_type" json:"alias_type"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	FullName    string    `db:"full_name" json:"full_name"`
	Reason      string    `db:"reason" json:"reason,omitempty"`
	EffectiveAt time.Time `db:"effective_at" json:"effective_at"`
	CreatedBy   string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// IdentityRequest is the create/update payload accepted by the lifecycle
// manager. DateOfBirth is a YYYY-MM-DD string; empty fields are ignored on
// update.
type IdentityRequest struct {
	ExternalPatientID string  `json:"external_patient_id"`
	SourceSystem      string  `json:"source_system"`
	FirstName         string  `json:"first_name"`
	MiddleName        string  `json:"middle_name"`
	LastName          string  `json:"last_name"`
	DateOfBirth       string  `json:"date_of_birth"`
	Gender            string  `json:"gender"`
	SSN               string  `json:"ssn"`
	Email             string  `json:"email"`
	PhoneHome         string  `json:"phone_home"`
	PhoneMobile       string  `json:"phone_mobile"`
	PhoneWork         string  `json:"phone_work"`
	AddressLine1      string  `json:"address_line1"`
	AddressLine2      string  `json:"address_line2"`
	City              string  `json:"city"`
	State             string  `json:"state"`
	PostalCode        string  `json:"postal_code"`
	FHIRResourceID    *string `json:"fhir_resource_id,omitempty"`
	AutoVerify        bool    `json:"auto_verify,omitempty"`
}

// AliasRequest is the payload for adding an alias.
type AliasRequest struct {
	AliasType string `json:"alias_type"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Reason    string `json:"reason"`
}

// FullName joins the alias name parts into the denormalized display form.
func (r AliasRequest) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
}

// Stats are the aggregate counts and score averages reported by the index.
type Stats struct {
	TotalIdentities int64   `json:"total_identities"`
	Active          int64   `json:"active"`
	Merged          int64   `json:"merged"`
	Duplicates      int64   `json:"duplicates"`
	Archived        int64   `json:"archived"`
	MasterRecords   int64   `json:"master_records"`
	PendingMatches  int64   `json:"pending_matches"`
	AvgConfidence   float64 `json:"avg_confidence"`
	AvgDataQuality  float64 `json:"avg_data_quality"`
	AvgCompleteness float64 `json:"avg_completeness"`
}

// SweepItem is the per-identity outcome of a deduplication sweep.
type SweepItem struct {
	IdentityID uuid.UUID `json:"identity_id"`
	MPIID      string    `json:"mpi_id"`
	Matches    int       `json:"matches"`
	Error      string    `json:"error,omitempty"`
}

// SweepResult aggregates a deduplication sweep. Item failures never abort
// the sweep.
type SweepResult struct {
	Scanned int         `json:"scanned"`
	Matched int         `json:"matched"`
	Failed  int         `json:"failed"`
	Items   []SweepItem `json:"items"`
}
