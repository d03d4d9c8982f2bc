package mpi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AlgorithmDemographic tags matches produced by the additive demographic
// comparison below.
const AlgorithmDemographic = "demographic-v1"

// Thresholds carries the match-engine cut points on the 0-100 score scale.
// It is an explicit value object so tests and deployments can vary it.
type Thresholds struct {
	Confirm     float64 // minimum score that produces a Match record
	AutoConfirm float64 // score at which a Match is created AUTO_CONFIRMED
	Quality     float64 // data-quality floor used for verification triage
}

// DefaultThresholds returns the production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Confirm: 85, AutoConfirm: 95, Quality: 70}
}

// Matcher computes pairwise match scores and records match proposals. One
// invocation considers candidates for a single identity; it does not
// deduplicate across owners, so matching both sides of a pair yields one
// proposal per owner.
type Matcher struct {
	repo       Repository
	thresholds Thresholds
	log        zerolog.Logger
}

func NewMatcher(repo Repository, thresholds Thresholds, log zerolog.Logger) *Matcher {
	return &Matcher{repo: repo, thresholds: thresholds, log: log}
}

// Thresholds returns the configured cut points.
func (m *Matcher) Thresholds() Thresholds { return m.thresholds }

// MatchScore compares two identities signal by signal. Each signal is
// additive and independent, and contributes only when both sides have the
// field populated. The result is clamped to 100.
func MatchScore(a, b *Identity) float64 {
	var score float64

	if a.SSN != "" && b.SSN != "" && a.SSN == b.SSN {
		score += 40
	}
	if a.Email != "" && b.Email != "" && strings.EqualFold(a.Email, b.Email) {
		score += 20
	}
	if a.DateOfBirth != nil && b.DateOfBirth != nil && a.DateOfBirth.Equal(*b.DateOfBirth) {
		score += 25
	}
	score += nameScore(a.FirstName, b.FirstName, 10, 5)
	score += nameScore(a.LastName, b.LastName, 15, 7)
	if phoneOverlap(a, b) {
		score += 10
	}

	return clampScore(score)
}

// nameScore awards equal points for case-insensitive equality and partial
// points for a near-miss: substring containment in either direction, or a
// single-character edit. The edit tolerance covers short-form spellings like
// Jon/John that containment alone cannot see.
func nameScore(x, y string, equal, partial float64) float64 {
	if x == "" || y == "" {
		return 0
	}
	lx, ly := strings.ToLower(x), strings.ToLower(y)
	if lx == ly {
		return equal
	}
	if strings.Contains(lx, ly) || strings.Contains(ly, lx) || withinOneEdit(lx, ly) {
		return partial
	}
	return 0
}

// withinOneEdit reports whether two strings differ by exactly one
// substitution, insertion, or deletion.
func withinOneEdit(x, y string) bool {
	if len(x) > len(y) {
		x, y = y, x
	}
	switch len(y) - len(x) {
	case 0:
		diff := 0
		for i := range x {
			if x[i] != y[i] {
				diff++
			}
		}
		return diff == 1
	case 1:
		// One insertion: skip the first mismatch in the longer string and
		// require the tails to line up.
		for i := range x {
			if x[i] != y[i] {
				return x[i:] == y[i+1:]
			}
		}
		return true
	default:
		return false
	}
}

// phoneOverlap reports whether any phone number appears in both identities'
// phone sets. Awarded once regardless of how many numbers line up.
func phoneOverlap(a, b *Identity) bool {
	for _, pa := range a.Phones() {
		for _, pb := range b.Phones() {
			if pa == pb {
				return true
			}
		}
	}
	return false
}

// Run fetches the widened candidate pool for the identity, scores each
// candidate, and records a Match for every score at or above the confirm
// threshold. Scores at or above the auto-confirm threshold are created
// AUTO_CONFIRMED, but only when both records also clear the data-quality
// floor; a qualifying score on thin records is created PENDING instead.
// All other matches wait PENDING for adjudication. Scores below the
// confirm threshold are discarded silently. An existing proposal for the
// same (owner, candidate) pair is not recreated, which keeps repeated runs
// idempotent per owner.
func (m *Matcher) Run(ctx context.Context, identity *Identity, actor string) ([]*Match, error) {
	candidates, err := m.repo.FindCandidates(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("find candidates for %s: %w", identity.MPIID, err)
	}

	var created []*Match
	for _, candidate := range candidates {
		if candidate.ID == identity.ID {
			continue
		}

		score := MatchScore(identity, candidate)
		if score < m.thresholds.Confirm {
			continue
		}

		exists, err := m.repo.MatchExists(ctx, identity.ID, candidate.ID)
		if err != nil {
			return created, fmt.Errorf("check existing match: %w", err)
		}
		if exists {
			continue
		}

		match := &Match{
			ID:          uuid.New(),
			IdentityID:  identity.ID,
			CandidateID: candidate.ID,
			Score:       score,
			Algorithm:   AlgorithmDemographic,
			MatchType:   matchType(identity, candidate),
			Status:      MatchPending,
			CreatedBy:   actor,
			CreatedAt:   time.Now(),
		}
		// Auto-confirmation additionally requires both records to clear the
		// data-quality floor; a high score on thin records still goes to a
		// human.
		if score >= m.thresholds.AutoConfirm &&
			identity.DataQualityScore >= m.thresholds.Quality &&
			candidate.DataQualityScore >= m.thresholds.Quality {
			match.Status = MatchAutoConfirmed
			match.Auto = true
		}

		if err := m.repo.CreateMatch(ctx, match); err != nil {
			return created, fmt.Errorf("create match %s -> %s: %w", identity.MPIID, candidate.MPIID, err)
		}

		m.log.Info().
			Str("mpi_id", identity.MPIID).
			Str("candidate_mpi_id", candidate.MPIID).
			Float64("score", score).
			Str("status", string(match.Status)).
			Msg("match proposal recorded")

		created = append(created, match)
	}

	return created, nil
}

// matchType is DETERMINISTIC when an exact shared identifier (ssn) drove the
// pair together, PROBABILISTIC otherwise.
func matchType(a, b *Identity) MatchType {
	if a.SSN != "" && a.SSN == b.SSN {
		return MatchDeterministic
	}
	return MatchProbabilistic
}
