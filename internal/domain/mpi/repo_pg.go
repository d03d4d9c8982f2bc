package mpi

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpi/mpi/internal/platform/db"
	"github.com/mpi/mpi/pkg/query"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const identityCols = `id, mpi_id, external_patient_id, source_system,
	first_name, middle_name, last_name, date_of_birth, gender, ssn, email,
	phone_home, phone_mobile, phone_work,
	address_line1, address_line2, city, state, postal_code,
	fhir_resource_id, fhir_synced_at,
	confidence_score, data_quality_score, completeness_score,
	identity_status, verification_status, verification_reason, verified_by, verified_at,
	master_patient_id, is_master_identity,
	access_count, last_accessed_at,
	created_by, modified_by, created_at, updated_at`

func scanIdentity(row pgx.Row) (*Identity, error) {
	var i Identity
	err := row.Scan(
		&i.ID, &i.MPIID, &i.ExternalPatientID, &i.SourceSystem,
		&i.FirstName, &i.MiddleName, &i.LastName, &i.DateOfBirth, &i.Gender, &i.SSN, &i.Email,
		&i.PhoneHome, &i.PhoneMobile, &i.PhoneWork,
		&i.AddressLine1, &i.AddressLine2, &i.City, &i.State, &i.PostalCode,
		&i.FHIRResourceID, &i.FHIRSyncedAt,
		&i.ConfidenceScore, &i.DataQualityScore, &i.CompletenessScore,
		&i.IdentityStatus, &i.VerificationStatus, &i.VerificationReason, &i.VerifiedBy, &i.VerifiedAt,
		&i.MasterPatientID, &i.IsMasterIdentity,
		&i.AccessCount, &i.LastAccessedAt,
		&i.CreatedBy, &i.ModifiedBy, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *repoPG) Create(ctx context.Context, i *Identity) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO identities (
			id, mpi_id, external_patient_id, source_system,
			first_name, middle_name, last_name, date_of_birth, gender, ssn, email,
			phone_home, phone_mobile, phone_work,
			address_line1, address_line2, city, state, postal_code,
			fhir_resource_id, fhir_synced_at,
			confidence_score, data_quality_score, completeness_score,
			identity_status, verification_status,
			master_patient_id, is_master_identity,
			created_by, modified_by, created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,
			$5,$6,$7,$8,$9,$10,$11,
			$12,$13,$14,
			$15,$16,$17,$18,$19,
			$20,$21,
			$22,$23,$24,
			$25,$26,
			$27,$28,
			$29,$30,$31,$32
		)`,
		i.ID, i.MPIID, i.ExternalPatientID, i.SourceSystem,
		i.FirstName, i.MiddleName, i.LastName, i.DateOfBirth, i.Gender, i.SSN, i.Email,
		i.PhoneHome, i.PhoneMobile, i.PhoneWork,
		i.AddressLine1, i.AddressLine2, i.City, i.State, i.PostalCode,
		i.FHIRResourceID, i.FHIRSyncedAt,
		i.ConfidenceScore, i.DataQualityScore, i.CompletenessScore,
		i.IdentityStatus, i.VerificationStatus,
		i.MasterPatientID, i.IsMasterIdentity,
		i.CreatedBy, i.ModifiedBy, i.CreatedAt, i.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return &DuplicateError{ExternalPatientID: i.ExternalPatientID, SourceSystem: i.SourceSystem}
	}
	return err
}

func (r *repoPG) Update(ctx context.Context, i *Identity) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE identities SET
			first_name=$2, middle_name=$3, last_name=$4, date_of_birth=$5, gender=$6, ssn=$7, email=$8,
			phone_home=$9, phone_mobile=$10, phone_work=$11,
			address_line1=$12, address_line2=$13, city=$14, state=$15, postal_code=$16,
			fhir_resource_id=$17, fhir_synced_at=$18,
			confidence_score=$19, data_quality_score=$20, completeness_score=$21,
			identity_status=$22, verification_status=$23, verification_reason=$24, verified_by=$25, verified_at=$26,
			master_patient_id=$27, is_master_identity=$28,
			modified_by=$29, updated_at=$30
		WHERE id = $1`,
		i.ID,
		i.FirstName, i.MiddleName, i.LastName, i.DateOfBirth, i.Gender, i.SSN, i.Email,
		i.PhoneHome, i.PhoneMobile, i.PhoneWork,
		i.AddressLine1, i.AddressLine2, i.City, i.State, i.PostalCode,
		i.FHIRResourceID, i.FHIRSyncedAt,
		i.ConfidenceScore, i.DataQualityScore, i.CompletenessScore,
		i.IdentityStatus, i.VerificationStatus, i.VerificationReason, i.VerifiedBy, i.VerifiedAt,
		i.MasterPatientID, i.IsMasterIdentity,
		i.ModifiedBy, i.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "identity", ID: i.ID.String()}
	}
	return nil
}

// Merge commits the master and duplicate updates in one transaction.
func (r *repoPG) Merge(ctx context.Context, master, duplicate *Identity) error {
	return db.WithTx(ctx, r.pool, func(txCtx context.Context) error {
		if err := r.Update(txCtx, master); err != nil {
			return err
		}
		return r.Update(txCtx, duplicate)
	})
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	i, err := scanIdentity(r.conn(ctx).QueryRow(ctx,
		`SELECT `+identityCols+` FROM identities WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Kind: "identity", ID: id.String()}
	}
	return i, err
}

func (r *repoPG) GetByMPIID(ctx context.Context, mpiID string) (*Identity, error) {
	i, err := scanIdentity(r.conn(ctx).QueryRow(ctx,
		`SELECT `+identityCols+` FROM identities WHERE mpi_id = $1`, mpiID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Kind: "identity", ID: mpiID}
	}
	return i, err
}

func (r *repoPG) GetByExternalID(ctx context.Context, externalPatientID, sourceSystem string) (*Identity, error) {
	i, err := scanIdentity(r.conn(ctx).QueryRow(ctx,
		`SELECT `+identityCols+` FROM identities
		 WHERE external_patient_id = $1 AND source_system = $2 AND identity_status <> 'ARCHIVED'`,
		externalPatientID, sourceSystem))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Kind: "identity", ID: externalPatientID + "/" + sourceSystem}
	}
	return i, err
}

func (r *repoPG) GetByFHIRID(ctx context.Context, fhirResourceID string) (*Identity, error) {
	i, err := scanIdentity(r.conn(ctx).QueryRow(ctx,
		`SELECT `+identityCols+` FROM identities WHERE fhir_resource_id = $1`, fhirResourceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Kind: "identity", ID: fhirResourceID}
	}
	return i, err
}

var searchParams = map[string]query.ParamConfig{
	"first_name":          {Type: query.ParamString, Column: "first_name"},
	"last_name":           {Type: query.ParamString, Column: "last_name"},
	"date_of_birth":       {Type: query.ParamDate, Column: "date_of_birth"},
	"ssn":                 {Type: query.ParamExact, Column: "ssn"},
	"source_system":       {Type: query.ParamExact, Column: "source_system"},
	"external_patient_id": {Type: query.ParamExact, Column: "external_patient_id"},
	"status":              {Type: query.ParamExact, Column: "identity_status"},
	"verification_status": {Type: query.ParamExact, Column: "verification_status"},
	"city":                {Type: query.ParamString, Column: "city"},
	"postal_code":         {Type: query.ParamExact, Column: "postal_code"},
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Identity, int, error) {
	b := query.New("identities", identityCols)
	b.ApplyParams(params, searchParams)
	b.OrderBy("updated_at DESC")
	return r.page(ctx, b, limit, offset)
}

func (r *repoPG) ListByStatus(ctx context.Context, status IdentityStatus, limit, offset int) ([]*Identity, int, error) {
	b := query.New("identities", identityCols)
	b.AddExact("identity_status", string(status))
	b.OrderBy("created_at ASC")
	return r.page(ctx, b, limit, offset)
}

func (r *repoPG) page(ctx context.Context, b *query.Builder, limit, offset int) ([]*Identity, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, b.CountSQL(), b.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count identities: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, b.DataSQL(limit, offset), b.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var identities []*Identity
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, 0, err
		}
		identities = append(identities, i)
	}
	return identities, total, rows.Err()
}

// FindCandidates widens the pool with OR semantics: exact name pair, exact
// date of birth, or exact ssn. Archived and merged records never match.
func (r *repoPG) FindCandidates(ctx context.Context, i *Identity) ([]*Identity, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+identityCols+` FROM identities
		WHERE id <> $1
		  AND identity_status NOT IN ('ARCHIVED','MERGED')
		  AND (
			(LOWER(first_name) = LOWER($2) AND LOWER(last_name) = LOWER($3))
			OR ($4::date IS NOT NULL AND date_of_birth = $4)
			OR ($5 <> '' AND ssn = $5)
		  )`,
		i.ID, i.FirstName, i.LastName, i.DateOfBirth, i.SSN)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*Identity
	for rows.Next() {
		c, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func (r *repoPG) IncrementAccess(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE identities SET access_count = access_count + 1, last_accessed_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "identity", ID: id.String()}
	}
	return nil
}

func (r *repoPG) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE identity_status = 'ACTIVE'),
			COUNT(*) FILTER (WHERE identity_status = 'MERGED'),
			COUNT(*) FILTER (WHERE identity_status = 'DUPLICATE'),
			COUNT(*) FILTER (WHERE identity_status = 'ARCHIVED'),
			COUNT(*) FILTER (WHERE is_master_identity),
			COALESCE(AVG(confidence_score), 0),
			COALESCE(AVG(data_quality_score), 0),
			COALESCE(AVG(completeness_score), 0)
		FROM identities`).Scan(
		&s.TotalIdentities, &s.Active, &s.Merged, &s.Duplicates, &s.Archived,
		&s.MasterRecords, &s.AvgConfidence, &s.AvgDataQuality, &s.AvgCompleteness,
	)
	if err != nil {
		return nil, fmt.Errorf("identity stats: %w", err)
	}

	err = r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM identity_matches WHERE status = 'PENDING'`).Scan(&s.PendingMatches)
	if err != nil {
		return nil, fmt.Errorf("pending match count: %w", err)
	}
	return &s, nil
}

// -- Matches --

const matchCols = `id, identity_id, candidate_id, score, algorithm, match_type, auto, status,
	created_by, created_at, reviewed_by, reviewed_at`

func scanMatch(row pgx.Row) (*Match, error) {
	var m Match
	err := row.Scan(
		&m.ID, &m.IdentityID, &m.CandidateID, &m.Score, &m.Algorithm, &m.MatchType, &m.Auto, &m.Status,
		&m.CreatedBy, &m.CreatedAt, &m.ReviewedBy, &m.ReviewedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repoPG) CreateMatch(ctx context.Context, m *Match) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO identity_matches (
			id, identity_id, candidate_id, score, algorithm, match_type, auto, status, created_by, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		m.ID, m.IdentityID, m.CandidateID, m.Score, m.Algorithm, m.MatchType, m.Auto, m.Status,
		m.CreatedBy, m.CreatedAt,
	)
	return err
}

func (r *repoPG) GetMatch(ctx context.Context, id uuid.UUID) (*Match, error) {
	m, err := scanMatch(r.conn(ctx).QueryRow(ctx,
		`SELECT `+matchCols+` FROM identity_matches WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Kind: "match", ID: id.String()}
	}
	return m, err
}

func (r *repoPG) UpdateMatch(ctx context.Context, m *Match) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE identity_matches SET status=$2, reviewed_by=$3, reviewed_at=$4
		WHERE id = $1`,
		m.ID, m.Status, m.ReviewedBy, m.ReviewedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "match", ID: m.ID.String()}
	}
	return nil
}

func (r *repoPG) ListMatches(ctx context.Context, identityID uuid.UUID) ([]*Match, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+matchCols+` FROM identity_matches WHERE identity_id = $1 ORDER BY score DESC, created_at DESC`,
		identityID)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var matches []*Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *repoPG) MatchExists(ctx context.Context, identityID, candidateID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM identity_matches WHERE identity_id = $1 AND candidate_id = $2)`,
		identityID, candidateID).Scan(&exists)
	return exists, err
}

// -- Aliases --

func (r *repoPG) CreateAlias(ctx context.Context, a *Alias) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO identity_aliases (
			id, identity_id, alias_type, first_name, last_name, full_name, reason, effective_at, created_by, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.IdentityID, a.AliasType, a.FirstName, a.LastName, a.FullName, a.Reason,
		a.EffectiveAt, a.CreatedBy, a.CreatedAt,
	)
	return err
}

func (r *repoPG) DeleteAlias(ctx context.Context, identityID, aliasID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM identity_aliases WHERE id = $1 AND identity_id = $2`, aliasID, identityID)
	return err
}

func (r *repoPG) ListAliases(ctx context.Context, identityID uuid.UUID) ([]*Alias, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, identity_id, alias_type, first_name, last_name, full_name, reason, effective_at, created_by, created_at
		 FROM identity_aliases WHERE identity_id = $1 ORDER BY effective_at DESC`,
		identityID)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	defer rows.Close()

	var aliases []*Alias
	for rows.Next() {
		var a Alias
		if err := rows.Scan(&a.ID, &a.IdentityID, &a.AliasType, &a.FirstName, &a.LastName,
			&a.FullName, &a.Reason, &a.EffectiveAt, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		aliases = append(aliases, &a)
	}
	return aliases, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
