package mpi

// The three scores are independent projections of one identity record. Each
// is recomputed in full on every create and update; none is derived from
// another.

// ConfidenceScore rates how strongly identifying the populated fields are.
// Additive point scale, clamped to 100.
func ConfidenceScore(i *Identity) float64 {
	var score float64
	if i.FirstName != "" {
		score += 15
	}
	if i.LastName != "" {
		score += 15
	}
	if i.DateOfBirth != nil {
		score += 20
	}
	if i.SSN != "" {
		score += 25
	}
	if i.Email != "" {
		score += 10
	}
	if len(i.Phones()) > 0 {
		score += 10
	}
	if i.AddressLine1 != "" {
		score += 5
	}
	return clampScore(score)
}

// dataQualityOptional are the nine optional fields worth 2 points each.
func dataQualityOptional(i *Identity) []string {
	return []string{
		i.MiddleName, i.Gender, i.SSN, i.Email,
		i.PhoneHome, i.PhoneMobile, i.PhoneWork,
		i.AddressLine1, i.AddressLine2,
	}
}

// DataQualityScore weights required-field presence (20 points each, plus 20
// for date of birth) over optional completeness (2 points per optional
// field). Required fields dominate the scale on purpose.
func DataQualityScore(i *Identity) float64 {
	var score float64
	for _, required := range []string{i.ExternalPatientID, i.SourceSystem, i.FirstName, i.LastName} {
		if required != "" {
			score += 20
		}
	}
	if i.DateOfBirth != nil {
		score += 20
	}
	for _, optional := range dataQualityOptional(i) {
		if optional != "" {
			score += 2
		}
	}
	return clampScore(score)
}

// CompletenessScore is the filled fraction of the seventeen tracked fields
// (fifteen demographic/contact strings, date of birth, gender) as a
// percentage.
func CompletenessScore(i *Identity) float64 {
	fields := []string{
		i.ExternalPatientID, i.SourceSystem,
		i.FirstName, i.MiddleName, i.LastName,
		i.SSN, i.Email,
		i.PhoneHome, i.PhoneMobile, i.PhoneWork,
		i.AddressLine1, i.AddressLine2, i.City, i.State, i.PostalCode,
	}
	total := len(fields) + 2 // + date of birth + gender

	filled := 0
	for _, f := range fields {
		if f != "" {
			filled++
		}
	}
	if i.DateOfBirth != nil {
		filled++
	}
	if i.Gender != "" {
		filled++
	}
	return clampScore(float64(filled) / float64(total) * 100)
}

// Rescore recomputes all three score projections in place.
func Rescore(i *Identity) {
	i.ConfidenceScore = ConfidenceScore(i)
	i.DataQualityScore = DataQualityScore(i)
	i.CompletenessScore = CompletenessScore(i)
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
